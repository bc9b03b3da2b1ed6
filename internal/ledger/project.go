package ledger

import "github.com/kilupskalvis/qcat/internal/models"

// RowStatus tags a projected row with the kind of change staged for it.
type RowStatus string

const (
	StatusNone    RowStatus = ""
	StatusAdded   RowStatus = "added"
	StatusUpdated RowStatus = "updated"
	StatusDeleted RowStatus = "deleted"
)

// EffectiveRow is a pair as it will look after the staged changes commit.
type EffectiveRow struct {
	models.QAPair
	Status RowStatus
}

// Staged reports whether the row carries a staged change and can be undone.
func (r EffectiveRow) Staged() bool {
	return r.Status != StatusNone
}

// Project merges a server page with the staged changes. Base rows keep
// their position; updates replace their values, deletions only tag them.
// Additions follow the base rows in ledger order. Changes for ids that are
// not on the page leave it untouched.
func Project(base []models.QAPair, changes []PendingChange) []EffectiveRow {
	rows := make([]EffectiveRow, len(base), len(base)+len(changes))
	pos := make(map[string]int, len(base))
	for i, p := range base {
		rows[i] = EffectiveRow{QAPair: p.Clone()}
		pos[p.ID] = i
	}

	for _, c := range changes {
		switch c := c.(type) {
		case Update:
			if i, ok := pos[c.ID]; ok {
				rows[i] = EffectiveRow{QAPair: c.Data.Clone(), Status: StatusUpdated}
			}
		case Deletion:
			if i, ok := pos[c.ID]; ok {
				rows[i].Status = StatusDeleted
			}
		case Addition:
		}
	}

	for _, c := range changes {
		if a, ok := c.(Addition); ok {
			rows = append(rows, EffectiveRow{QAPair: a.Data.WithID(a.SyntheticID), Status: StatusAdded})
		}
	}

	return rows
}

// Project merges base with the ledger's current entries.
func (l *Ledger) Project(base []models.QAPair) []EffectiveRow {
	return Project(base, l.entries)
}

// TotalRows is the row count to paginate over: deletions and updates keep
// their rows, additions add one each.
func TotalRows(baseTotal int, c Counts) int {
	return baseTotal + c.Additions
}
