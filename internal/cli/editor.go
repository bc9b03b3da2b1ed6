package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/kilupskalvis/qcat/internal/core"
	"github.com/kilupskalvis/qcat/internal/models"
)

var (
	// errQuit ends the editing loop.
	errQuit = errors.New("quit")

	errAdditionMetaData = errors.New("additions carry no meta_data; save first, then update the new pair")
)

// command is one parsed console line.
type command struct {
	name    string
	id      string
	payload string
	page    int
}

// rowCommands take the id of a row on the page or of a staged change.
var rowCommands = map[string]bool{
	"update": true,
	"delete": true,
	"undo":   true,
}

const editorHelp = `Commands:
  add <json>                 stage a new pair, e.g. add {"question":"Q","expected_output":"A","contexts":[]}
  update <id> <json-patch>   stage new values for a pair, e.g. update 3f2a {"question":"Q2"}
  delete <id>                stage a deletion (drops a staged addition)
  undo <id>                  remove the staged change for a pair
  discard                    remove every staged change
  page <n>                   show page n
  version <id>               switch to another version (discards staged changes)
  show [id]                  show the current page, or one pair
  refresh                    reload the current page from the server
  status                     show the staged changes
  history                    list the versions of this catalog
  save                       submit the staged changes
  quit                       leave (quit! leaves with unsaved changes)
Ids may be shortened to any unique prefix.`

// parseCommand splits a console line into a command. Blank lines and lines
// starting with # parse to an empty command.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return command{}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	cmd := command{name: strings.ToLower(name)}

	switch cmd.name {
	case "add":
		if rest == "" {
			return command{}, fmt.Errorf("usage: add <json>")
		}
		cmd.payload = rest
	case "update":
		id, patch, _ := strings.Cut(rest, " ")
		patch = strings.TrimSpace(patch)
		if id == "" || patch == "" {
			return command{}, fmt.Errorf("usage: update <id> <json-patch>")
		}
		cmd.id, cmd.payload = id, patch
	case "delete", "undo", "version":
		if rest == "" || strings.Contains(rest, " ") {
			return command{}, fmt.Errorf("usage: %s <id>", cmd.name)
		}
		cmd.id = rest
	case "page":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return command{}, fmt.Errorf("usage: page <n> (n >= 1)")
		}
		cmd.page = n
	case "show":
		cmd.id = rest
	case "discard", "status", "history", "refresh", "save", "quit", "quit!", "help":
		if rest != "" {
			return command{}, fmt.Errorf("%s takes no arguments", cmd.name)
		}
	default:
		return command{}, fmt.Errorf("unknown command %q (try help)", name)
	}
	return cmd, nil
}

// pairPatch holds the fields an update may set. A null meta_data value
// removes that key.
type pairPatch struct {
	Question       *string        `json:"question"`
	ExpectedOutput *string        `json:"expected_output"`
	Contexts       *[]string      `json:"contexts"`
	MetaData       map[string]any `json:"meta_data"`
}

func decodeStrict(payload string, v any) error {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (p pairPatch) apply(pair models.QAPair) models.QAPair {
	if p.Question != nil {
		pair.Question = *p.Question
	}
	if p.ExpectedOutput != nil {
		pair.ExpectedOutput = *p.ExpectedOutput
	}
	if p.Contexts != nil {
		pair.Contexts = *p.Contexts
		if pair.Contexts == nil {
			pair.Contexts = []string{}
		}
	}
	if len(p.MetaData) > 0 && pair.MetaData == nil {
		pair.MetaData = make(map[string]any, len(p.MetaData))
	}
	for k, v := range p.MetaData {
		if v == nil {
			delete(pair.MetaData, k)
			continue
		}
		pair.MetaData[k] = v
	}
	return pair
}

// resolveRowID expands a unique id prefix to the full id of a row on the
// current page or of a staged change.
func resolveRowID(s *core.Session, prefix string) (string, error) {
	seen := make(map[string]bool)
	for _, r := range s.Rows() {
		seen[r.ID] = true
	}
	for _, c := range s.Changes() {
		seen[c.Key()] = true
	}
	if seen[prefix] {
		return prefix, nil
	}

	var matches []string
	for id := range seen {
		if strings.HasPrefix(id, prefix) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: %s", core.ErrRecordNotFound, prefix)
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return "", fmt.Errorf("ambiguous id %q matches %s", prefix, strings.Join(matches, ", "))
}

// editor drives a session from console commands.
type editor struct {
	s   *core.Session
	out io.Writer
}

func newEditor(s *core.Session, out io.Writer) *editor {
	return &editor{s: s, out: out}
}

// run reads commands from in until EOF or quit. Interactive mode prompts
// and reports errors without stopping; otherwise the first error aborts
// with its line number.
func (e *editor) run(ctx context.Context, in io.Reader, interactive bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for n := 1; ; n++ {
		if interactive {
			fmt.Fprint(e.out, "qcat> ")
		}
		if !scanner.Scan() {
			break
		}

		cmd, err := parseCommand(scanner.Text())
		if err == nil && cmd.name != "" {
			err = e.exec(ctx, cmd)
		}
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			if !interactive {
				return fmt.Errorf("line %d: %w", n, err)
			}
			errorColor.Fprintf(e.out, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if e.s.HasChanges() {
		hintColor.Fprintf(e.out, "%d staged changes were not saved\n", e.s.Counts().Total())
	}
	return nil
}

func (e *editor) exec(ctx context.Context, cmd command) error {
	if rowCommands[cmd.name] {
		id, err := resolveRowID(e.s, cmd.id)
		if err != nil {
			return err
		}
		cmd.id = id
	}

	switch cmd.name {
	case "add":
		return e.add(cmd.payload)
	case "update":
		return e.update(cmd.id, cmd.payload)
	case "delete":
		return e.delete(cmd.id)
	case "undo":
		if err := e.s.Undo(cmd.id); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "Unstaged %s\n", shortID(cmd.id))
	case "discard":
		n := e.s.Counts().Total()
		if err := e.s.Discard(); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "Discarded %d staged changes\n", n)
	case "page":
		if cmd.page > e.s.PageCount() {
			return fmt.Errorf("page %d out of range (1-%d)", cmd.page, e.s.PageCount())
		}
		if err := e.s.SetPage(ctx, cmd.page-1); err != nil {
			return err
		}
		e.show()
	case "version":
		return e.switchVersion(ctx, cmd.id)
	case "show":
		if cmd.id == "" {
			e.show()
			return nil
		}
		id, err := resolveRowID(e.s, cmd.id)
		if err != nil {
			return err
		}
		pair, _ := e.s.Effective(id)
		printPair(e.out, pair)
	case "status":
		printBanner(e.out, e.s)
		printChanges(e.out, e.s.Changes())
	case "history":
		h, err := e.s.History(ctx)
		if err != nil {
			return err
		}
		printHistory(e.out, h, e.s.Catalog().ID)
	case "refresh":
		if err := e.s.Refresh(ctx); err != nil {
			return err
		}
		e.show()
	case "save":
		return e.save(ctx)
	case "quit":
		if e.s.HasChanges() {
			return fmt.Errorf("%d staged changes; save, discard, or use quit! to leave anyway", e.s.Counts().Total())
		}
		return errQuit
	case "quit!":
		return errQuit
	case "help":
		fmt.Fprintln(e.out, editorHelp)
	}
	return nil
}

func (e *editor) show() {
	printBanner(e.out, e.s)
	fmt.Fprintln(e.out)
	printRows(e.out, e.s.Rows())
}

func (e *editor) add(payload string) error {
	var data models.NewQAPair
	if err := decodeStrict(payload, &data); err != nil {
		return err
	}
	if data.Contexts == nil {
		data.Contexts = []string{}
	}

	id, err := e.s.Add(data)
	if err != nil {
		return err
	}
	addedColor.Fprintf(e.out, "Staged addition %s\n", id)
	return nil
}

func (e *editor) update(id, payload string) error {
	var patch pairPatch
	if err := decodeStrict(payload, &patch); err != nil {
		return err
	}
	if patch.MetaData != nil && models.IsSyntheticID(id) {
		return errAdditionMetaData
	}
	if !e.s.CanEdit(id) {
		return core.ErrRecordDeleted
	}
	current, ok := e.s.Effective(id)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRecordNotFound, id)
	}

	if err := e.s.Edit(id, patch.apply(current)); err != nil {
		return err
	}
	updatedColor.Fprintf(e.out, "Staged update %s\n", shortID(id))
	return nil
}

func (e *editor) delete(id string) error {
	if err := e.s.Delete(id); err != nil {
		return err
	}
	if models.IsSyntheticID(id) {
		fmt.Fprintf(e.out, "Dropped staged addition %s\n", id)
		return nil
	}
	deletedColor.Fprintf(e.out, "Staged deletion %s\n", shortID(id))
	return nil
}

func (e *editor) switchVersion(ctx context.Context, id string) error {
	if n := e.s.Counts().Total(); n > 0 {
		hintColor.Fprintf(e.out, "Discarding %d staged changes\n", n)
	}
	if err := e.s.SwitchVersion(ctx, id); err != nil {
		return err
	}
	e.show()
	return nil
}

func (e *editor) save(ctx context.Context) error {
	result, err := e.s.Save(ctx)
	if errors.Is(err, core.ErrEmptyLedger) {
		fmt.Fprintln(e.out, "Nothing to save")
		return nil
	}
	if result == nil {
		return fmt.Errorf("changes could not be saved: %w", err)
	}

	addedColor.Fprintf(e.out, "Saved revision %d: %d added, %d updated, %d deleted\n",
		result.Revision, result.Counts.Additions, result.Counts.Updates, result.Counts.Deletions)
	if result.Forked() && err == nil {
		hintColor.Fprintf(e.out, "Saved as a new version %s (was %s); now editing the new version\n",
			result.CatalogID, result.PreviousID)
	} else if result.Forked() {
		hintColor.Fprintf(e.out, "Saved as a new version %s (was %s)\n", result.CatalogID, result.PreviousID)
	}
	if err != nil {
		return fmt.Errorf("saved, but reloading failed (run refresh to retry): %w", err)
	}
	return nil
}
