package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/kilupskalvis/qcat/internal/core"
	"github.com/kilupskalvis/qcat/internal/ledger"
	"github.com/kilupskalvis/qcat/internal/models"
)

var (
	addedColor   = color.New(color.FgGreen)
	updatedColor = color.New(color.FgYellow)
	deletedColor = color.New(color.FgRed, color.CrossedOut)
	hintColor    = color.New(color.FgCyan)
	errorColor   = color.New(color.FgRed)
)

// truncate shortens s to at most n runes on a single line.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func rowTag(status ledger.RowStatus) (string, *color.Color) {
	switch status {
	case ledger.StatusAdded:
		return "+", addedColor
	case ledger.StatusUpdated:
		return "~", updatedColor
	case ledger.StatusDeleted:
		return "-", deletedColor
	}
	return " ", nil
}

// printRows prints one line per projected row, tagged with its staged change.
func printRows(w io.Writer, rows []ledger.EffectiveRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "  (no pairs)")
		return
	}
	for _, r := range rows {
		tag, c := rowTag(r.Status)
		line := fmt.Sprintf("%s %-8s  %-40s  %s", tag, shortID(r.ID), truncate(r.Question, 40), truncate(r.ExpectedOutput, 40))
		if c == nil {
			fmt.Fprintln(w, line)
			continue
		}
		c.Fprintln(w, line)
	}
}

// printPair prints every field of a pair.
func printPair(w io.Writer, p models.QAPair) {
	fmt.Fprintf(w, "id:              %s\n", p.ID)
	fmt.Fprintf(w, "question:        %s\n", p.Question)
	fmt.Fprintf(w, "expected_output: %s\n", p.ExpectedOutput)
	for i, c := range p.Contexts {
		fmt.Fprintf(w, "context[%d]:      %s\n", i, c)
	}
	for k, v := range p.MetaData {
		fmt.Fprintf(w, "meta.%s: %v\n", k, v)
	}
}

// printBanner prints the page position and the staged change counts.
func printBanner(w io.Writer, s *core.Session) {
	c := s.Catalog()
	fmt.Fprintf(w, "%s (%s, revision %d)  page %d/%d  %d rows\n",
		c.Name, c.ShortID(), c.Revision, s.Page()+1, s.PageCount(), s.TotalRows())

	counts := s.Counts()
	if counts.Total() == 0 {
		fmt.Fprintln(w, "no staged changes")
		return
	}
	addedColor.Fprintf(w, "%d added", counts.Additions)
	fmt.Fprint(w, ", ")
	updatedColor.Fprintf(w, "%d updated", counts.Updates)
	fmt.Fprint(w, ", ")
	errorColor.Fprintf(w, "%d deleted", counts.Deletions)
	fmt.Fprintf(w, "  (%d staged)\n", counts.Total())
}

// printChanges lists the staged changes in ledger order.
func printChanges(w io.Writer, changes []ledger.PendingChange) {
	for _, ch := range changes {
		switch ch := ch.(type) {
		case ledger.Addition:
			addedColor.Fprintf(w, "  added    %-8s  %s\n", ch.SyntheticID, truncate(ch.Data.Question, 60))
		case ledger.Update:
			updatedColor.Fprintf(w, "  updated  %-8s  %s\n", shortID(ch.ID), truncate(ch.Data.Question, 60))
		case ledger.Deletion:
			errorColor.Fprintf(w, "  deleted  %-8s  %s\n", shortID(ch.ID), truncate(ch.Original.Question, 60))
		}
	}
}

func printHistory(w io.Writer, h *models.VersionHistory, current string) {
	for _, v := range h.Versions {
		marker := " "
		if v.VersionID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "%s r%-4d %s  %s\n", marker, v.Revision, v.VersionID, v.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}
