// Package ledger implements the staged-edit overlay for catalog editing:
// an ordered log of pending additions, updates and deletions against a
// server-owned catalog, and the projection of that log onto a page of
// server data.
package ledger

import "github.com/kilupskalvis/qcat/internal/models"

// ChangeKind names the variant of a PendingChange.
type ChangeKind string

const (
	KindAddition ChangeKind = "addition"
	KindUpdate   ChangeKind = "update"
	KindDeletion ChangeKind = "deletion"
)

// PendingChange is one staged operation. The set of implementations is
// closed: Addition, Update and Deletion.
type PendingChange interface {
	// Key is the identity the change occupies in the ledger.
	Key() string
	Kind() ChangeKind
	sealed()
}

// Addition stages a pair the server does not know yet.
type Addition struct {
	SyntheticID string
	Data        models.NewQAPair
}

// Update stages new values for an existing pair. Original is the pair as
// it was before any staging began.
type Update struct {
	ID       string
	Data     models.QAPair
	Original models.QAPair
}

// Deletion marks an existing pair for removal. Original is the pair as it
// was before any staging began.
type Deletion struct {
	ID       string
	Original models.QAPair
}

func (a Addition) Key() string { return a.SyntheticID }
func (u Update) Key() string   { return u.ID }
func (d Deletion) Key() string { return d.ID }

func (Addition) Kind() ChangeKind { return KindAddition }
func (Update) Kind() ChangeKind   { return KindUpdate }
func (Deletion) Kind() ChangeKind { return KindDeletion }

func (Addition) sealed() {}
func (Update) sealed()   {}
func (Deletion) sealed() {}

// clone deep-copies a change so that callers never share slices or maps
// with the ledger.
func clone(c PendingChange) PendingChange {
	switch c := c.(type) {
	case Addition:
		return Addition{SyntheticID: c.SyntheticID, Data: c.Data.Clone()}
	case Update:
		return Update{ID: c.ID, Data: c.Data.Clone(), Original: c.Original.Clone()}
	case Deletion:
		return Deletion{ID: c.ID, Original: c.Original.Clone()}
	default:
		panic("ledger: unknown change type")
	}
}
