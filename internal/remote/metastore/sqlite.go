package metastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kilupskalvis/qcat/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS catalogs (
	id TEXT PRIMARY KEY,
	group_id TEXT NOT NULL,
	name TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	revision INTEGER NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	previous_version_id TEXT
);

CREATE TABLE IF NOT EXISTS qa_pairs (
	catalog_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	id TEXT NOT NULL,
	question TEXT NOT NULL,
	expected_output TEXT NOT NULL,
	contexts JSON NOT NULL,
	meta_data JSON NOT NULL,
	PRIMARY KEY (catalog_id, position),
	FOREIGN KEY (catalog_id) REFERENCES catalogs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_catalogs_group ON catalogs(group_id, revision);
`

const catalogColumns = `id, group_id, name, created_at, updated_at, revision, status, error, previous_version_id`

// SQLiteStore implements CatalogStore on SQLite.
type SQLiteStore struct {
	db   *sql.DB
	mode EditMode
	now  func() time.Time
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, mode EditMode) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create meta directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open meta database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	if mode == "" {
		mode = EditFork
	}
	return &SQLiteStore{db: db, mode: mode, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCatalog(row rowScanner) (*models.Catalog, error) {
	var c models.Catalog
	var createdAt, updatedAt, status string
	var errText, previous sql.NullString

	if err := row.Scan(&c.ID, &c.GroupID, &c.Name, &createdAt, &updatedAt, &c.Revision, &status, &errText, &previous); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	c.CreatedAt = parseTimestamp(createdAt)
	c.UpdatedAt = parseTimestamp(updatedAt)
	c.Status = models.CatalogStatus(status)
	c.Error = errText.String
	c.PreviousVersionID = previous.String
	return &c, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryCatalog(ctx context.Context, q querier, id string) (*models.Catalog, error) {
	return scanCatalog(q.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM catalogs WHERE id = ?`, id))
}

func queryCatalogs(ctx context.Context, q querier, where string, args ...any) ([]*models.Catalog, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+catalogColumns+` FROM catalogs `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Catalog
	for rows.Next() {
		c, err := scanCatalog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func insertCatalog(ctx context.Context, q querier, c *models.Catalog) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO catalogs (`+catalogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			revision = excluded.revision,
			status = excluded.status,
			error = excluded.error`,
		c.ID, c.GroupID, c.Name,
		c.CreatedAt.UTC().Format(time.RFC3339Nano), c.UpdatedAt.UTC().Format(time.RFC3339Nano),
		c.Revision, string(c.Status),
		sql.NullString{String: c.Error, Valid: c.Error != ""},
		sql.NullString{String: c.PreviousVersionID, Valid: c.PreviousVersionID != ""},
	)
	if err != nil {
		return fmt.Errorf("store catalog: %w", err)
	}
	return nil
}

func insertPairs(ctx context.Context, q querier, catalogID string, pairs []models.QAPair) error {
	for i, p := range pairs {
		contexts, err := json.Marshal(p.Contexts)
		if err != nil {
			return fmt.Errorf("marshal contexts: %w", err)
		}
		meta, err := json.Marshal(p.MetaData)
		if err != nil {
			return fmt.Errorf("marshal meta_data: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO qa_pairs (catalog_id, position, id, question, expected_output, contexts, meta_data)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			catalogID, i, p.ID, p.Question, p.ExpectedOutput, string(contexts), string(meta),
		); err != nil {
			return fmt.Errorf("store pair: %w", err)
		}
	}
	return nil
}

func queryPairs(ctx context.Context, q querier, catalogID string, offset, limit int) ([]models.QAPair, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, question, expected_output, contexts, meta_data
		FROM qa_pairs WHERE catalog_id = ?
		ORDER BY position
		LIMIT ? OFFSET ?`, catalogID, limit, max(offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pairs := []models.QAPair{}
	for rows.Next() {
		var p models.QAPair
		var contexts, meta string
		if err := rows.Scan(&p.ID, &p.Question, &p.ExpectedOutput, &contexts, &meta); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(contexts), &p.Contexts); err != nil {
			return nil, fmt.Errorf("unmarshal contexts: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &p.MetaData); err != nil {
			return nil, fmt.Errorf("unmarshal meta_data: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}

func countPairsSQL(ctx context.Context, q querier, catalogID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM qa_pairs WHERE catalog_id = ?`, catalogID).Scan(&n)
	return n, err
}

// CreateCatalog stores a new catalog at revision 1.
func (s *SQLiteStore) CreateCatalog(ctx context.Context, name string, pairs []models.QAPair) (*models.Catalog, error) {
	catalog, err := newCatalog(name, s.now())
	if err != nil {
		return nil, err
	}
	stored, err := freshPairs(pairs)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := insertCatalog(ctx, tx, catalog); err != nil {
		return nil, err
	}
	if err := insertPairs(ctx, tx, catalog.ID, stored); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return catalog, nil
}

// GetCatalog retrieves a catalog by ID. Returns ErrNotFound if missing.
func (s *SQLiteStore) GetCatalog(ctx context.Context, id string) (*models.Catalog, error) {
	return queryCatalog(ctx, s.db, id)
}

// GetPreview returns the catalog summary with its pair count.
func (s *SQLiteStore) GetPreview(ctx context.Context, id string) (*models.CatalogPreview, error) {
	c, err := queryCatalog(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	n, err := countPairsSQL(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return previewOf(c, n), nil
}

// ListCatalogs returns the newest version of every catalog.
func (s *SQLiteStore) ListCatalogs(ctx context.Context, opts ListOptions) ([]*models.CatalogPreview, error) {
	all, err := queryCatalogs(ctx, s.db, "")
	if err != nil {
		return nil, err
	}

	previews := []*models.CatalogPreview{}
	for _, c := range page(latestPerGroup(all, opts.Name), opts.Offset, opts.Limit) {
		n, err := countPairsSQL(ctx, s.db, c.ID)
		if err != nil {
			return nil, err
		}
		previews = append(previews, previewOf(c, n))
	}
	return previews, nil
}

// DeleteCatalog removes a version and its pairs.
func (s *SQLiteStore) DeleteCatalog(ctx context.Context, id string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	c, err := queryCatalog(ctx, tx, id)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM qa_pairs WHERE catalog_id = ?`, id); err != nil {
		return "", fmt.Errorf("delete pairs: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalogs WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("delete catalog: %w", err)
	}

	var previous string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM catalogs WHERE group_id = ? ORDER BY revision DESC LIMIT 1`, c.GroupID,
	).Scan(&previous)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	return previous, nil
}

// EditCatalog applies an edit batch in one transaction.
func (s *SQLiteStore) EditCatalog(ctx context.Context, id string, edit *models.CatalogEdit) (*models.Catalog, error) {
	return s.newVersion(ctx, id, func(pairs []models.QAPair) ([]models.QAPair, error) {
		if err := validateEdit(pairs, edit); err != nil {
			return nil, err
		}
		return applyEdit(pairs, edit, s.mode == EditFork), nil
	})
}

// ReplacePairs stores a new version whose pairs are exactly pairs.
func (s *SQLiteStore) ReplacePairs(ctx context.Context, id string, pairs []models.QAPair) (*models.Catalog, error) {
	return s.newVersion(ctx, id, func([]models.QAPair) ([]models.QAPair, error) {
		return freshPairs(pairs)
	})
}

func (s *SQLiteStore) newVersion(ctx context.Context, id string, build func([]models.QAPair) ([]models.QAPair, error)) (*models.Catalog, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	prev, err := queryCatalog(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	pairs, err := queryPairs(ctx, tx, id, 0, 0)
	if err != nil {
		return nil, err
	}
	result, err := build(pairs)
	if err != nil {
		return nil, err
	}

	next := nextVersion(prev, s.mode, s.now())
	if next.ID == prev.ID {
		if _, err := tx.ExecContext(ctx, `DELETE FROM qa_pairs WHERE catalog_id = ?`, id); err != nil {
			return nil, fmt.Errorf("delete pairs: %w", err)
		}
	}
	if err := insertCatalog(ctx, tx, next); err != nil {
		return nil, err
	}
	if err := insertPairs(ctx, tx, next.ID, result); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return next, nil
}

// GetHistory lists every version of the catalog's group, newest first.
func (s *SQLiteStore) GetHistory(ctx context.Context, id string) (*models.VersionHistory, error) {
	c, err := queryCatalog(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	group, err := queryCatalogs(ctx, s.db, "WHERE group_id = ?", c.GroupID)
	if err != nil {
		return nil, err
	}
	return sortHistory(group), nil
}

// ListPairs returns up to limit pairs starting at offset, in catalog order.
func (s *SQLiteStore) ListPairs(ctx context.Context, id string, offset, limit int) ([]models.QAPair, error) {
	if _, err := queryCatalog(ctx, s.db, id); err != nil {
		return nil, err
	}
	return queryPairs(ctx, s.db, id, offset, limit)
}

// parseTimestamp parses a timestamp string from SQLite in the formats it
// may come back in.
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
