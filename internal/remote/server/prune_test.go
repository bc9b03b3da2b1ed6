package server

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/kilupskalvis/qcat/internal/models"
	"github.com/kilupskalvis/qcat/internal/remote/metastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPruneStore(t *testing.T) metastore.CatalogStore {
	t.Helper()
	s, err := metastore.NewBboltStore(filepath.Join(t.TempDir(), "meta.db"), metastore.EditFork)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// forkVersions creates a catalog and edits it n-1 times, returning every
// version id oldest first.
func forkVersions(t *testing.T, s metastore.CatalogStore, n int) []string {
	t.Helper()
	ctx := context.Background()
	c, err := s.CreateCatalog(ctx, "support", []models.QAPair{{Question: "Q0", ExpectedOutput: "A0"}})
	require.NoError(t, err)
	ids := []string{c.ID}
	for i := 1; i < n; i++ {
		c, err = s.EditCatalog(ctx, c.ID, &models.CatalogEdit{
			Additions: []models.NewQAPair{{Question: "Q", ExpectedOutput: "A"}},
		})
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	return ids
}

func TestPruneHistory_KeepsNewest(t *testing.T) {
	ctx := context.Background()
	s := newPruneStore(t)
	ids := forkVersions(t, s, 5)

	result, err := PruneHistory(ctx, s, ids[4], 2, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, 5, result.VersionsScanned)
	assert.Equal(t, 3, result.VersionsDeleted)
	assert.ElementsMatch(t, ids[:3], result.Deleted)

	history, err := s.GetHistory(ctx, ids[4])
	require.NoError(t, err)
	require.Len(t, history.Versions, 2)
	assert.Equal(t, ids[4], history.Versions[0].VersionID)
	assert.Equal(t, ids[3], history.Versions[1].VersionID)
}

func TestPruneHistory_NothingToDelete(t *testing.T) {
	s := newPruneStore(t)
	ids := forkVersions(t, s, 2)

	result, err := PruneHistory(context.Background(), s, ids[0], 5, slog.Default())
	require.NoError(t, err)

	assert.Equal(t, 2, result.VersionsScanned)
	assert.Zero(t, result.VersionsDeleted)
	assert.Empty(t, result.Deleted)
}

func TestPruneHistory_InvalidKeep(t *testing.T) {
	s := newPruneStore(t)
	ids := forkVersions(t, s, 1)

	_, err := PruneHistory(context.Background(), s, ids[0], 0, slog.Default())
	assert.ErrorIs(t, err, ErrInvalidKeep)
}

func TestPruneHistory_UnknownCatalog(t *testing.T) {
	s := newPruneStore(t)

	_, err := PruneHistory(context.Background(), s, "missing", 1, slog.Default())
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}
