package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kilupskalvis/qcat/internal/ledger"
	"github.com/kilupskalvis/qcat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService is an in-memory collection service. With fork set every
// edit produces a new catalog id.
type fakeService struct {
	mu       sync.Mutex
	catalogs map[string]*models.Catalog
	pairs    map[string][]models.QAPair
	fork     bool
	editErr  error
	edits    []*models.CatalogEdit
	seq      int

	// listErr fails ListPairs for the given catalog ids.
	listErr map[string]error

	// block, when set, is received from inside EditCatalog.
	block chan struct{}
}

func newFakeService(id string, n int) *fakeService {
	pairs := make([]models.QAPair, n)
	for i := range pairs {
		pairs[i] = qa(fmt.Sprintf("p%02d", i), fmt.Sprintf("Q%d", i))
	}
	return &fakeService{
		catalogs: map[string]*models.Catalog{id: {ID: id, Name: "test", Revision: 1, Status: models.CatalogReady}},
		pairs:    map[string][]models.QAPair{id: pairs},
	}
}

func (f *fakeService) GetCatalog(_ context.Context, id string) (*models.Catalog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.catalogs[id]
	if !ok {
		return nil, fmt.Errorf("catalog %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeService) GetPreview(_ context.Context, id string) (*models.CatalogPreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.catalogs[id]
	if !ok {
		return nil, fmt.Errorf("catalog %s not found", id)
	}
	return &models.CatalogPreview{ID: id, Name: c.Name, Length: len(f.pairs[id]), Revision: c.Revision}, nil
}

func (f *fakeService) ListPairs(_ context.Context, id string, offset, limit int) ([]models.QAPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[id]; err != nil {
		return nil, err
	}
	all := f.pairs[id]
	if offset >= len(all) {
		return []models.QAPair{}, nil
	}
	end := min(offset+limit, len(all))
	out := make([]models.QAPair, 0, end-offset)
	for _, p := range all[offset:end] {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (f *fakeService) GetHistory(_ context.Context, id string) (*models.VersionHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &models.VersionHistory{}
	for cur := f.catalogs[id]; cur != nil; cur = f.catalogs[cur.PreviousVersionID] {
		h.Versions = append(h.Versions, models.VersionHistoryItem{VersionID: cur.ID, Revision: cur.Revision})
	}
	return h, nil
}

func (f *fakeService) EditCatalog(_ context.Context, id string, edit *models.CatalogEdit) (*models.Catalog, error) {
	if f.block != nil {
		<-f.block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, edit)
	if f.editErr != nil {
		return nil, f.editErr
	}

	deleted := map[string]bool{}
	for _, d := range edit.Deletions {
		deleted[d] = true
	}
	updated := map[string]models.QAPair{}
	for _, u := range edit.Updates {
		updated[u.ID] = u
	}

	var kept []models.QAPair
	for _, p := range f.pairs[id] {
		if deleted[p.ID] {
			continue
		}
		if u, ok := updated[p.ID]; ok {
			p = u
		}
		kept = append(kept, p)
	}
	for _, a := range edit.Additions {
		f.seq++
		kept = append(kept, a.WithID(fmt.Sprintf("n%02d", f.seq)))
	}

	old := f.catalogs[id]
	next := &models.Catalog{
		ID:                id,
		Name:              old.Name,
		Revision:          old.Revision + 1,
		Status:            models.CatalogReady,
		PreviousVersionID: old.PreviousVersionID,
	}
	if f.fork {
		next.ID = fmt.Sprintf("%s.%d", id, old.Revision+1)
		next.PreviousVersionID = id
	}
	target := next.ID
	f.catalogs[target] = next
	f.pairs[target] = kept

	cp := *f.catalogs[target]
	return &cp, nil
}

func openSession(t *testing.T, svc *fakeService, id string) *Session {
	t.Helper()
	s := NewSession(svc, 20, nil)
	require.NoError(t, s.Open(context.Background(), id))
	return s
}

func TestSession_OpenLoadsFirstPage(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 45), "cat-1")

	assert.Equal(t, "cat-1", s.Catalog().ID)
	assert.Len(t, s.Rows(), 20)
	assert.Equal(t, 45, s.TotalRows())
	assert.Equal(t, 3, s.PageCount())
	assert.False(t, s.HasChanges())
}

func TestSession_EditFromPage(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 3), "cat-1")

	edited := qa("p01", "changed")
	require.NoError(t, s.Edit("p01", edited))

	row, ok := s.Row("p01")
	require.True(t, ok)
	assert.Equal(t, "changed", row.Question)
	assert.Equal(t, ledger.StatusUpdated, row.Status)

	c, ok := s.ledger.Entry("p01")
	require.True(t, ok)
	assert.Equal(t, "Q1", c.(ledger.Update).Original.Question)
}

func TestSession_EditUnknownRecord(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 3), "cat-1")

	assert.ErrorIs(t, s.Edit("missing", qa("missing", "x")), ErrRecordNotFound)
	assert.ErrorIs(t, s.Delete("missing"), ErrRecordNotFound)
	assert.ErrorIs(t, s.Edit(models.SyntheticID(9), qa("", "x")), ErrRecordNotFound)
	assert.False(t, s.HasChanges())
}

func TestSession_EditDeletedRecordRefused(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 3), "cat-1")
	require.NoError(t, s.Delete("p00"))

	err := s.Edit("p00", qa("p00", "x"))

	assert.ErrorIs(t, err, ErrRecordDeleted)
	assert.False(t, s.CanEdit("p00"))
	assert.Equal(t, ledger.Counts{Deletions: 1}, s.Counts())
}

func TestSession_StagedRecordSurvivesPageChange(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 30), "cat-1")
	ctx := context.Background()

	require.NoError(t, s.Edit("p00", qa("p00", "first")))
	require.NoError(t, s.SetPage(ctx, 1))
	assert.Equal(t, 1, s.Page())
	_, onPage := s.Row("p00")
	assert.False(t, onPage)

	// The original recorded on page 0 is still used for the deletion.
	require.NoError(t, s.Delete("p00"))
	c, ok := s.ledger.Entry("p00")
	require.True(t, ok)
	assert.Equal(t, ledger.Deletion{ID: "p00", Original: qa("p00", "Q0")}, c)
}

func TestSession_EffectiveFollowsStaging(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 30), "cat-1")
	ctx := context.Background()

	got, ok := s.Effective("p01")
	require.True(t, ok)
	assert.Equal(t, "Q1", got.Question)

	require.NoError(t, s.Edit("p01", qa("p01", "staged")))
	require.NoError(t, s.SetPage(ctx, 1))

	got, ok = s.Effective("p01")
	require.True(t, ok)
	assert.Equal(t, "staged", got.Question)

	id, err := s.Add(models.NewQAPair{Question: "added", Contexts: []string{}})
	require.NoError(t, err)
	got, ok = s.Effective(id)
	require.True(t, ok)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "added", got.Question)

	_, ok = s.Effective("p02")
	assert.False(t, ok)
}

func TestSession_AddThenDelete(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 2), "cat-1")

	id, err := s.Add(models.NewQAPair{Question: "new", Contexts: []string{}})
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalRows())
	assert.Len(t, s.Rows(), 3)

	require.NoError(t, s.Delete(id))
	assert.False(t, s.HasChanges())
	assert.Equal(t, 2, s.TotalRows())
}

func TestSession_UndoAndDiscard(t *testing.T) {
	s := openSession(t, newFakeService("cat-1", 3), "cat-1")
	require.NoError(t, s.Edit("p00", qa("p00", "x")))
	require.NoError(t, s.Delete("p01"))

	require.NoError(t, s.Undo("p00"))
	assert.ErrorIs(t, s.Undo("p00"), ErrNothingStaged)
	assert.Equal(t, ledger.Counts{Deletions: 1}, s.Counts())

	require.NoError(t, s.Discard())
	assert.False(t, s.HasChanges())
	for _, r := range s.Rows() {
		assert.Equal(t, ledger.StatusNone, r.Status)
	}
}

func TestSession_SaveInPlace(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	s := openSession(t, svc, "cat-1")
	require.NoError(t, s.Edit("p00", qa("p00", "edited")))
	require.NoError(t, s.Delete("p02"))

	result, err := s.Save(context.Background())

	require.NoError(t, err)
	assert.False(t, result.Forked())
	assert.Equal(t, "cat-1", s.Catalog().ID)
	assert.Equal(t, 2, s.Catalog().Revision)
	assert.False(t, s.HasChanges())
	require.Len(t, s.Rows(), 2)
	assert.Equal(t, "edited", s.Rows()[0].Question)
	assert.Equal(t, ledger.StatusNone, s.Rows()[0].Status)
}

func TestSession_SaveFollowsVersionFork(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	svc.fork = true
	s := openSession(t, svc, "cat-1")
	_, err := s.Add(models.NewQAPair{Question: "added", Contexts: []string{}})
	require.NoError(t, err)

	result, err := s.Save(context.Background())

	require.NoError(t, err)
	assert.True(t, result.Forked())
	assert.Equal(t, "cat-1", result.PreviousID)
	assert.Equal(t, result.CatalogID, s.Catalog().ID)
	assert.Equal(t, 4, s.TotalRows())
	assert.False(t, s.HasChanges())

	history, err := s.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history.Versions, 2)
	assert.Equal(t, "cat-1", history.Versions[1].VersionID)
}

func TestSession_SaveFailureKeepsChanges(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	svc.editErr = errors.New("unavailable")
	s := openSession(t, svc, "cat-1")
	require.NoError(t, s.Edit("p00", qa("p00", "edited")))
	before := s.Changes()

	_, err := s.Save(context.Background())

	require.Error(t, err)
	assert.Equal(t, before, s.Changes())
	assert.Equal(t, "cat-1", s.Catalog().ID)
	row, _ := s.Row("p00")
	assert.Equal(t, ledger.StatusUpdated, row.Status)
}

func TestSession_SaveEmpty(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	s := openSession(t, svc, "cat-1")

	_, err := s.Save(context.Background())

	assert.ErrorIs(t, err, ErrEmptyLedger)
	assert.Empty(t, svc.edits)
}

func TestSession_RefusesStagingWhileSaving(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	svc.block = make(chan struct{})
	s := openSession(t, svc, "cat-1")
	require.NoError(t, s.Delete("p00"))

	saved := make(chan error, 1)
	go func() {
		_, err := s.Save(context.Background())
		saved <- err
	}()

	require.Eventually(t, func() bool { return s.committing.Load() }, time.Second, time.Millisecond)

	_, err := s.Save(context.Background())
	assert.ErrorIs(t, err, ErrCommitInFlight)
	assert.ErrorIs(t, s.Undo("p00"), ErrCommitInFlight)
	_, err = s.Add(models.NewQAPair{Question: "x"})
	assert.ErrorIs(t, err, ErrCommitInFlight)

	close(svc.block)
	require.NoError(t, <-saved)
	assert.Len(t, svc.edits, 1)
}

func TestSession_SwitchVersionDiscards(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	svc.fork = true
	s := openSession(t, svc, "cat-1")
	require.NoError(t, s.Delete("p00"))
	_, err := s.Save(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Edit(s.Rows()[0].ID, qa("", "pending")))
	require.NoError(t, s.SwitchVersion(context.Background(), "cat-1"))

	assert.Equal(t, "cat-1", s.Catalog().ID)
	assert.False(t, s.HasChanges())
	assert.Equal(t, 3, s.TotalRows())
}

func TestFetchAllPairs_KeepsOrder(t *testing.T) {
	svc := newFakeService("cat-1", 47)
	var calls int

	pairs, err := FetchAllPairs(context.Background(), svc, "cat-1", 10, func(done, total int) {
		calls++
		assert.Equal(t, 5, total)
	})

	require.NoError(t, err)
	require.Len(t, pairs, 47)
	for i, p := range pairs {
		assert.Equal(t, fmt.Sprintf("p%02d", i), p.ID)
	}
	assert.Equal(t, 6, calls)
}

func TestFetchAllPairs_Empty(t *testing.T) {
	svc := newFakeService("cat-1", 0)

	pairs, err := FetchAllPairs(context.Background(), svc, "cat-1", 10, nil)

	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func TestSession_FailedSwitchKeepsCurrentVersion(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	svc.catalogs["cat-2"] = &models.Catalog{ID: "cat-2", Name: "test", Revision: 2, Status: models.CatalogReady}
	svc.pairs["cat-2"] = []models.QAPair{qa("x00", "other")}
	svc.listErr = map[string]error{"cat-2": errors.New("network down")}
	s := openSession(t, svc, "cat-1")
	require.NoError(t, s.Delete("p01"))

	err := s.SwitchVersion(context.Background(), "cat-2")

	require.Error(t, err)
	assert.Equal(t, "cat-1", s.Catalog().ID)
	assert.Equal(t, "p00", s.Rows()[0].ID)
	assert.True(t, s.HasChanges())
	require.NoError(t, s.Edit("p00", qa("p00", "still cat-1")))
}

func TestSession_FailedSetPageKeepsPage(t *testing.T) {
	svc := newFakeService("cat-1", 45)
	s := openSession(t, svc, "cat-1")
	svc.listErr = map[string]error{"cat-1": errors.New("network down")}

	require.Error(t, s.SetPage(context.Background(), 1))
	assert.Equal(t, 0, s.Page())
	assert.Equal(t, "p00", s.Rows()[0].ID)
}

func TestSession_ForkReloadFailureRequiresRefresh(t *testing.T) {
	svc := newFakeService("cat-1", 3)
	svc.fork = true
	svc.listErr = map[string]error{"cat-1.2": errors.New("network down")}
	s := openSession(t, svc, "cat-1")
	require.NoError(t, s.Delete("p00"))

	result, err := s.Save(context.Background())

	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "cat-1.2", result.CatalogID)
	assert.Equal(t, "cat-1.2", s.Redirect())
	assert.False(t, s.HasChanges())

	_, err = s.Add(models.NewQAPair{Question: "x"})
	assert.ErrorIs(t, err, ErrReloadRequired)
	assert.ErrorIs(t, s.Edit("p01", qa("p01", "stale")), ErrReloadRequired)
	_, err = s.Save(context.Background())
	assert.ErrorIs(t, err, ErrReloadRequired)
	assert.Len(t, svc.edits, 1)

	svc.mu.Lock()
	svc.listErr = nil
	svc.mu.Unlock()
	require.NoError(t, s.Refresh(context.Background()))

	assert.Equal(t, "cat-1.2", s.Catalog().ID)
	assert.Empty(t, s.Redirect())
	assert.Equal(t, 2, s.TotalRows())
	require.NoError(t, s.Delete(s.Rows()[0].ID))
}

func TestSession_NotOpen(t *testing.T) {
	s := NewSession(newFakeService("cat-1", 1), 20, nil)
	ctx := context.Background()

	assert.ErrorIs(t, s.Refresh(ctx), ErrNotOpen)
	assert.ErrorIs(t, s.SetPage(ctx, 0), ErrNotOpen)
	_, err := s.Save(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = s.History(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = s.Add(models.NewQAPair{Question: "x"})
	assert.ErrorIs(t, err, ErrNotOpen)
}
