package ledger

import (
	"slices"

	"github.com/kilupskalvis/qcat/internal/models"
)

// Ledger is an ordered log of staged changes holding at most one entry per
// identity. It is owned by a single editing session and is not safe for
// concurrent use.
type Ledger struct {
	entries []PendingChange
	nextID  uint64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Counts is the number of staged changes of each kind.
type Counts struct {
	Additions int
	Updates   int
	Deletions int
}

// Total returns the total number of staged changes
func (c Counts) Total() int {
	return c.Additions + c.Updates + c.Deletions
}

// StageAddition appends a new pair under a freshly allocated synthetic id
// and returns that id.
func (l *Ledger) StageAddition(data models.NewQAPair) string {
	l.nextID++
	id := models.SyntheticID(l.nextID)
	l.entries = append(l.entries, Addition{SyntheticID: id, Data: data.Clone()})
	return id
}

// StageUpdate stages new values for id. base is the pair as shown by the
// server and is recorded as the original only when id has no entry yet.
//
// Editing a pending addition rewrites the addition in place. Editing a pair
// staged for deletion, or a synthetic id that is no longer staged, is
// refused: the ledger is left unchanged and false is returned. Callers are
// expected to consult CanEdit first.
func (l *Ledger) StageUpdate(id string, data, base models.QAPair) bool {
	data = data.Clone()
	data.ID = id

	i := l.index(id)
	if i < 0 {
		if models.IsSyntheticID(id) {
			return false
		}
		l.entries = append(l.entries, Update{ID: id, Data: data, Original: base.Clone()})
		return true
	}

	switch existing := l.entries[i].(type) {
	case Addition:
		existing.Data = data.Content()
		l.entries[i] = existing
	case Update:
		existing.Data = data
		l.entries[i] = existing
	case Deletion:
		return false
	}
	return true
}

// StageDeletion marks id for removal. A pending addition is dropped
// entirely, a pending update turns into a deletion of its original, and a
// repeated deletion changes nothing. Synthetic ids without an entry are
// ignored since there is nothing on the server to delete.
func (l *Ledger) StageDeletion(id string, base models.QAPair) {
	i := l.index(id)
	if i < 0 {
		if models.IsSyntheticID(id) {
			return
		}
		l.entries = append(l.entries, Deletion{ID: id, Original: base.Clone()})
		return
	}

	switch existing := l.entries[i].(type) {
	case Addition:
		l.entries = slices.Delete(l.entries, i, i+1)
	case Update:
		l.entries[i] = Deletion{ID: id, Original: existing.Original}
	case Deletion:
	}
}

// Unstage removes whatever entry occupies id and reports whether there was one.
func (l *Ledger) Unstage(id string) bool {
	i := l.index(id)
	if i < 0 {
		return false
	}
	l.entries = slices.Delete(l.entries, i, i+1)
	return true
}

// Clear empties the ledger. Synthetic ids are not reused afterwards.
func (l *Ledger) Clear() {
	l.entries = nil
}

// Entry returns a copy of the change staged for id.
func (l *Ledger) Entry(id string) (PendingChange, bool) {
	i := l.index(id)
	if i < 0 {
		return nil, false
	}
	return clone(l.entries[i]), true
}

// CanEdit reports whether an update may be staged for id.
func (l *Ledger) CanEdit(id string) bool {
	i := l.index(id)
	if i < 0 {
		return !models.IsSyntheticID(id)
	}
	return l.entries[i].Kind() != KindDeletion
}

// IsAddition reports whether id is a pending addition.
func (l *Ledger) IsAddition(id string) bool {
	i := l.index(id)
	return i >= 0 && l.entries[i].Kind() == KindAddition
}

// Changes returns a copy of the staged changes in ledger order.
func (l *Ledger) Changes() []PendingChange {
	out := make([]PendingChange, len(l.entries))
	for i, c := range l.entries {
		out[i] = clone(c)
	}
	return out
}

// Len returns the number of staged changes.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// IsEmpty reports whether nothing is staged.
func (l *Ledger) IsEmpty() bool {
	return len(l.entries) == 0
}

// Counts tallies the staged changes by kind.
func (l *Ledger) Counts() Counts {
	var c Counts
	for _, e := range l.entries {
		switch e.(type) {
		case Addition:
			c.Additions++
		case Update:
			c.Updates++
		case Deletion:
			c.Deletions++
		}
	}
	return c
}

func (l *Ledger) index(id string) int {
	return slices.IndexFunc(l.entries, func(c PendingChange) bool {
		return c.Key() == id
	})
}
