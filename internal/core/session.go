package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/kilupskalvis/qcat/internal/ledger"
	"github.com/kilupskalvis/qcat/internal/models"
)

// Session errors. They are checked before the ledger is touched.
var (
	ErrCommitInFlight = errors.New("a save is already in progress")
	ErrRecordDeleted  = errors.New("pair is staged for deletion; undo the deletion to edit it")
	ErrRecordNotFound = errors.New("pair not found on the current page")
	ErrNothingStaged  = errors.New("no staged change for this pair")
	ErrNotOpen        = errors.New("session not open")
	ErrReloadRequired = errors.New("the catalog was saved as a new version that is not loaded yet; refresh to load it")
)

// DefaultPageSize is the number of pairs fetched per page.
const DefaultPageSize = 20

// CatalogService is the part of the collection service an editing session
// depends on.
type CatalogService interface {
	EditSubmitter
	GetCatalog(ctx context.Context, id string) (*models.Catalog, error)
	GetPreview(ctx context.Context, id string) (*models.CatalogPreview, error)
	ListPairs(ctx context.Context, id string, offset, limit int) ([]models.QAPair, error)
	GetHistory(ctx context.Context, id string) (*models.VersionHistory, error)
}

// Session is one catalog editing session. It owns the ledger, the current
// base page and the catalog identity being edited. Staging methods are
// meant to be driven from a single loop; while Save runs they are refused.
type Session struct {
	svc      CatalogService
	logger   *slog.Logger
	pageSize int

	catalog *models.Catalog
	page    int
	base    []models.QAPair
	total   int

	// redirect holds the new catalog id after a forking save whose reload
	// failed. Staging and saving are refused until it is loaded.
	redirect string

	ledger     *ledger.Ledger
	committing atomic.Bool
}

// NewSession creates a session bound to svc. Call Open before use.
func NewSession(svc CatalogService, pageSize int, logger *slog.Logger) *Session {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Session{
		svc:      svc,
		logger:   logger,
		pageSize: pageSize,
		ledger:   ledger.New(),
	}
}

// Open loads the first page of catalogID. Anything staged against the
// previous catalog is discarded. On failure the session is left unchanged.
func (s *Session) Open(ctx context.Context, catalogID string) error {
	if s.committing.Load() {
		return ErrCommitInFlight
	}

	v, err := s.load(ctx, catalogID, 0)
	if err != nil {
		return err
	}

	s.apply(v)
	s.ledger.Clear()
	s.redirect = ""
	return nil
}

// SwitchVersion moves the session to another version of the catalog.
// Staged changes are meaningless against a different base and are dropped.
func (s *Session) SwitchVersion(ctx context.Context, versionID string) error {
	return s.Open(ctx, versionID)
}

// Refresh re-fetches catalog metadata and the current page. If a save
// moved the catalog to a new version that could not be loaded at the
// time, Refresh opens that version instead.
func (s *Session) Refresh(ctx context.Context) error {
	if s.catalog == nil {
		return ErrNotOpen
	}
	if s.redirect != "" {
		return s.Open(ctx, s.redirect)
	}

	v, err := s.load(ctx, s.catalog.ID, s.page)
	if err != nil {
		return err
	}
	s.apply(v)
	return nil
}

// SetPage fetches another page. Staged changes are kept.
func (s *Session) SetPage(ctx context.Context, page int) error {
	if err := s.checkLoaded(); err != nil {
		return err
	}
	if page < 0 {
		return fmt.Errorf("invalid page %d", page)
	}

	v, err := s.load(ctx, s.catalog.ID, page)
	if err != nil {
		return err
	}
	s.apply(v)
	return nil
}

// view is one fully fetched page of a catalog version.
type view struct {
	catalog *models.Catalog
	page    int
	base    []models.QAPair
	total   int
}

func (s *Session) load(ctx context.Context, catalogID string, page int) (*view, error) {
	catalog, err := s.svc.GetCatalog(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", catalogID, err)
	}

	preview, err := s.svc.GetPreview(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("load catalog preview: %w", err)
	}

	pairs, err := s.svc.ListPairs(ctx, catalogID, page*s.pageSize, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}

	return &view{catalog: catalog, page: page, base: pairs, total: preview.Length}, nil
}

func (s *Session) apply(v *view) {
	s.catalog = v.catalog
	s.page = v.page
	s.base = v.base
	s.total = v.total
}

// checkLoaded refuses work before Open and while a forked version is
// still waiting to be loaded.
func (s *Session) checkLoaded() error {
	if s.catalog == nil {
		return ErrNotOpen
	}
	if s.redirect != "" {
		return fmt.Errorf("%w: %s", ErrReloadRequired, s.redirect)
	}
	return nil
}

// Redirect returns the id of a version produced by a save that has not
// been loaded yet, or "".
func (s *Session) Redirect() string {
	return s.redirect
}

// Catalog returns the catalog version being edited.
func (s *Session) Catalog() *models.Catalog {
	return s.catalog
}

// Page returns the zero-based index of the current page.
func (s *Session) Page() int {
	return s.page
}

// PageCount returns the number of pages over the effective row count.
func (s *Session) PageCount() int {
	total := s.TotalRows()
	if total == 0 {
		return 1
	}
	return (total + s.pageSize - 1) / s.pageSize
}

// Rows projects the current page through the staged changes.
func (s *Session) Rows() []ledger.EffectiveRow {
	return s.ledger.Project(s.base)
}

// Row returns the projected row for id.
func (s *Session) Row(id string) (ledger.EffectiveRow, bool) {
	for _, r := range s.Rows() {
		if r.ID == id {
			return r, true
		}
	}
	return ledger.EffectiveRow{}, false
}

// Effective returns the current values of id: its staged data if it has
// any, else the pair from the current page.
func (s *Session) Effective(id string) (models.QAPair, bool) {
	if c, ok := s.ledger.Entry(id); ok {
		switch c := c.(type) {
		case ledger.Addition:
			return c.Data.WithID(c.SyntheticID), true
		case ledger.Update:
			return c.Data.Clone(), true
		case ledger.Deletion:
			return c.Original.Clone(), true
		}
	}
	for _, p := range s.base {
		if p.ID == id {
			return p.Clone(), true
		}
	}
	return models.QAPair{}, false
}

// Counts returns the staged change counts for the summary banner.
func (s *Session) Counts() ledger.Counts {
	return s.ledger.Counts()
}

// TotalRows is the number of rows the catalog will show once committed,
// counting rows staged for deletion.
func (s *Session) TotalRows() int {
	return ledger.TotalRows(s.total, s.ledger.Counts())
}

// HasChanges reports whether anything is staged.
func (s *Session) HasChanges() bool {
	return !s.ledger.IsEmpty()
}

// Changes returns the staged changes in order.
func (s *Session) Changes() []ledger.PendingChange {
	return s.ledger.Changes()
}

// CanEdit reports whether the edit action should be offered for id.
func (s *Session) CanEdit(id string) bool {
	return s.ledger.CanEdit(id)
}

// Add stages a new pair and returns its synthetic id.
func (s *Session) Add(data models.NewQAPair) (string, error) {
	if s.committing.Load() {
		return "", ErrCommitInFlight
	}
	if err := s.checkLoaded(); err != nil {
		return "", err
	}
	return s.ledger.StageAddition(data), nil
}

// Edit stages data as the new content of id.
func (s *Session) Edit(id string, data models.QAPair) error {
	if s.committing.Load() {
		return ErrCommitInFlight
	}
	if err := s.checkLoaded(); err != nil {
		return err
	}
	if !s.ledger.CanEdit(id) {
		if models.IsSyntheticID(id) {
			return ErrRecordNotFound
		}
		return ErrRecordDeleted
	}

	var base models.QAPair
	if !s.ledger.IsAddition(id) {
		b, err := s.baseRecord(id)
		if err != nil {
			return err
		}
		base = b
	}

	s.ledger.StageUpdate(id, data, base)
	return nil
}

// Delete stages the removal of id. Deleting a pending addition drops it.
func (s *Session) Delete(id string) error {
	if s.committing.Load() {
		return ErrCommitInFlight
	}
	if err := s.checkLoaded(); err != nil {
		return err
	}
	if models.IsSyntheticID(id) {
		if !s.ledger.IsAddition(id) {
			return ErrRecordNotFound
		}
		s.ledger.StageDeletion(id, models.QAPair{})
		return nil
	}

	base, err := s.baseRecord(id)
	if err != nil {
		return err
	}
	s.ledger.StageDeletion(id, base)
	return nil
}

// Undo removes the staged change for id.
func (s *Session) Undo(id string) error {
	if s.committing.Load() {
		return ErrCommitInFlight
	}
	if !s.ledger.Unstage(id) {
		return ErrNothingStaged
	}
	return nil
}

// Discard drops every staged change.
func (s *Session) Discard() error {
	if s.committing.Load() {
		return ErrCommitInFlight
	}
	s.ledger.Clear()
	return nil
}

// Save commits the staged changes. On a version fork the session follows
// the new catalog id; otherwise it reloads the current catalog in place.
// A failed submission leaves every staged change in place for a retry.
// A reload failure after a successful commit is returned together with
// the result; after a fork the new id is kept so Refresh can retry.
func (s *Session) Save(ctx context.Context) (*CommitResult, error) {
	if err := s.checkLoaded(); err != nil {
		return nil, err
	}
	if !s.committing.CompareAndSwap(false, true) {
		return nil, ErrCommitInFlight
	}

	result, err := Commit(ctx, s.ledger, s.catalog.ID, s.svc)
	s.committing.Store(false)
	if err != nil {
		if !errors.Is(err, ErrEmptyLedger) {
			s.logger.Warn("commit failed", "catalog_id", s.catalog.ID, "error", err)
		}
		return nil, err
	}

	s.logger.Info("changes committed",
		"previous_id", result.PreviousID,
		"catalog_id", result.CatalogID,
		"revision", result.Revision,
		"forked", result.Forked(),
	)

	if result.Forked() {
		if err := s.Open(ctx, result.CatalogID); err != nil {
			s.redirect = result.CatalogID
			s.logger.Warn("reload after fork failed", "catalog_id", result.CatalogID, "error", err)
			return result, err
		}
		return result, nil
	}

	if err := s.Refresh(ctx); err != nil {
		return result, err
	}
	return result, nil
}

// History lists the versions of the catalog being edited.
func (s *Session) History(ctx context.Context) (*models.VersionHistory, error) {
	if s.catalog == nil {
		return nil, ErrNotOpen
	}
	return s.svc.GetHistory(ctx, s.catalog.ID)
}

// baseRecord returns the pristine server state of id: the original held by
// the ledger if the pair is already staged, else the pair on the current page.
func (s *Session) baseRecord(id string) (models.QAPair, error) {
	if c, ok := s.ledger.Entry(id); ok {
		switch c := c.(type) {
		case ledger.Update:
			return c.Original, nil
		case ledger.Deletion:
			return c.Original, nil
		}
	}
	for _, p := range s.base {
		if p.ID == id {
			return p, nil
		}
	}
	return models.QAPair{}, ErrRecordNotFound
}
