package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/qcat/internal/ledger"
	"github.com/kilupskalvis/qcat/internal/models"
)

// ErrEmptyLedger is returned when a commit is requested with nothing staged.
var ErrEmptyLedger = errors.New("nothing to commit")

// EditSubmitter applies an edit batch to a catalog as one atomic operation
// and returns the resulting catalog version.
type EditSubmitter interface {
	EditCatalog(ctx context.Context, catalogID string, edit *models.CatalogEdit) (*models.Catalog, error)
}

// CommitResult describes the catalog version produced by a commit.
type CommitResult struct {
	PreviousID string
	CatalogID  string
	Revision   int
	Counts     ledger.Counts
}

// Forked reports whether the server answered with a new catalog identity.
// The caller must switch to CatalogID; PreviousID stays readable as history.
func (r *CommitResult) Forked() bool {
	return r.CatalogID != r.PreviousID
}

// BuildEdit partitions staged changes into the submission payload.
// Synthetic ids are not sent; the server assigns real ids to additions.
func BuildEdit(changes []ledger.PendingChange) *models.CatalogEdit {
	edit := &models.CatalogEdit{
		Additions: make([]models.NewQAPair, 0),
		Updates:   make([]models.QAPair, 0),
		Deletions: make([]string, 0),
	}

	for _, c := range changes {
		switch c := c.(type) {
		case ledger.Addition:
			edit.Additions = append(edit.Additions, c.Data)
		case ledger.Update:
			edit.Updates = append(edit.Updates, c.Data)
		case ledger.Deletion:
			edit.Deletions = append(edit.Deletions, c.ID)
		}
	}

	return edit
}

// Commit submits everything staged in l against catalogID. The ledger is
// cleared only after the server acknowledged the batch; on any error it is
// left exactly as it was.
func Commit(ctx context.Context, l *ledger.Ledger, catalogID string, sub EditSubmitter) (*CommitResult, error) {
	if l.IsEmpty() {
		return nil, ErrEmptyLedger
	}

	counts := l.Counts()
	edit := BuildEdit(l.Changes())

	catalog, err := sub.EditCatalog(ctx, catalogID, edit)
	if err != nil {
		return nil, fmt.Errorf("submit changes: %w", err)
	}
	if catalog == nil || catalog.ID == "" {
		return nil, fmt.Errorf("submit changes: server returned no catalog")
	}

	l.Clear()

	return &CommitResult{
		PreviousID: catalogID,
		CatalogID:  catalog.ID,
		Revision:   catalog.Revision,
		Counts:     counts,
	}, nil
}
