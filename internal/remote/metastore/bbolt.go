package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kilupskalvis/qcat/internal/models"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCatalogs = []byte("catalogs")
	bucketPairs    = []byte("pairs")
)

// BboltStore implements CatalogStore using bbolt. Pairs are keyed by
// "<catalog id>:<position>" so a prefix scan yields them in order.
type BboltStore struct {
	db   *bolt.DB
	mode EditMode
	now  func() time.Time
}

// NewBboltStore opens or creates a bbolt database at the given path.
func NewBboltStore(dbPath string, mode EditMode) (*BboltStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create meta directory: %w", err)
		}
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open meta database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketCatalogs, bucketPairs} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	if mode == "" {
		mode = EditFork
	}
	return &BboltStore{db: db, mode: mode, now: time.Now}, nil
}

// Close releases the bbolt database.
func (s *BboltStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func pairKey(catalogID string, pos int) []byte {
	return []byte(fmt.Sprintf("%s:%08d", catalogID, pos))
}

func getCatalog(tx *bolt.Tx, id string) (*models.Catalog, error) {
	data := tx.Bucket(bucketCatalogs).Get([]byte(id))
	if data == nil {
		return nil, ErrNotFound
	}
	var c models.Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal catalog %s: %w", id, err)
	}
	return &c, nil
}

func putCatalog(tx *bolt.Tx, c *models.Catalog) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}
	return tx.Bucket(bucketCatalogs).Put([]byte(c.ID), data)
}

func allCatalogs(tx *bolt.Tx) ([]*models.Catalog, error) {
	var out []*models.Catalog
	err := tx.Bucket(bucketCatalogs).ForEach(func(_, v []byte) error {
		var c models.Catalog
		if err := json.Unmarshal(v, &c); err != nil {
			return fmt.Errorf("unmarshal catalog: %w", err)
		}
		out = append(out, &c)
		return nil
	})
	return out, err
}

// scanPairs walks the pairs of a catalog in position order, starting at
// position offset. fn returns false to stop.
func scanPairs(tx *bolt.Tx, catalogID string, offset int, fn func(p models.QAPair) bool) error {
	prefix := catalogID + ":"
	c := tx.Bucket(bucketPairs).Cursor()
	for k, v := c.Seek(pairKey(catalogID, offset)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
		var p models.QAPair
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("unmarshal pair: %w", err)
		}
		if !fn(p) {
			return nil
		}
	}
	return nil
}

func loadPairs(tx *bolt.Tx, catalogID string) ([]models.QAPair, error) {
	var pairs []models.QAPair
	err := scanPairs(tx, catalogID, 0, func(p models.QAPair) bool {
		pairs = append(pairs, p)
		return true
	})
	return pairs, err
}

func countPairs(tx *bolt.Tx, catalogID string) int {
	prefix := []byte(catalogID + ":")
	n := 0
	c := tx.Bucket(bucketPairs).Cursor()
	for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
		n++
	}
	return n
}

func deletePairs(tx *bolt.Tx, catalogID string) error {
	prefix := catalogID + ":"
	b := tx.Bucket(bucketPairs)
	var keys [][]byte
	c := b.Cursor()
	for k, _ := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
		keys = append(keys, append([]byte(nil), k...))
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("delete pair %s: %w", k, err)
		}
	}
	return nil
}

func putPairs(tx *bolt.Tx, catalogID string, pairs []models.QAPair) error {
	b := tx.Bucket(bucketPairs)
	for i, p := range pairs {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal pair: %w", err)
		}
		if err := b.Put(pairKey(catalogID, i), data); err != nil {
			return fmt.Errorf("store pair: %w", err)
		}
	}
	return nil
}

// CreateCatalog stores a new catalog at revision 1.
func (s *BboltStore) CreateCatalog(_ context.Context, name string, pairs []models.QAPair) (*models.Catalog, error) {
	catalog, err := newCatalog(name, s.now())
	if err != nil {
		return nil, err
	}
	stored, err := freshPairs(pairs)
	if err != nil {
		return nil, err
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := putCatalog(tx, catalog); err != nil {
			return err
		}
		return putPairs(tx, catalog.ID, stored)
	})
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

// GetCatalog retrieves a catalog by ID. Returns ErrNotFound if missing.
func (s *BboltStore) GetCatalog(_ context.Context, id string) (*models.Catalog, error) {
	var catalog *models.Catalog
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		catalog, err = getCatalog(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return catalog, nil
}

// GetPreview returns the catalog summary with its pair count.
func (s *BboltStore) GetPreview(_ context.Context, id string) (*models.CatalogPreview, error) {
	var preview *models.CatalogPreview
	err := s.db.View(func(tx *bolt.Tx) error {
		c, err := getCatalog(tx, id)
		if err != nil {
			return err
		}
		preview = previewOf(c, countPairs(tx, id))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return preview, nil
}

// ListCatalogs returns the newest version of every catalog.
func (s *BboltStore) ListCatalogs(_ context.Context, opts ListOptions) ([]*models.CatalogPreview, error) {
	var previews []*models.CatalogPreview
	err := s.db.View(func(tx *bolt.Tx) error {
		all, err := allCatalogs(tx)
		if err != nil {
			return err
		}
		for _, c := range page(latestPerGroup(all, opts.Name), opts.Offset, opts.Limit) {
			previews = append(previews, previewOf(c, countPairs(tx, c.ID)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if previews == nil {
		previews = []*models.CatalogPreview{}
	}
	return previews, nil
}

// DeleteCatalog removes a version and its pairs.
func (s *BboltStore) DeleteCatalog(_ context.Context, id string) (string, error) {
	var previous string
	err := s.db.Update(func(tx *bolt.Tx) error {
		c, err := getCatalog(tx, id)
		if err != nil {
			return err
		}
		if err := deletePairs(tx, id); err != nil {
			return err
		}
		if err := tx.Bucket(bucketCatalogs).Delete([]byte(id)); err != nil {
			return fmt.Errorf("delete catalog: %w", err)
		}

		all, err := allCatalogs(tx)
		if err != nil {
			return err
		}
		best := -1
		for _, other := range all {
			if other.GroupID == c.GroupID && other.Revision > best {
				best = other.Revision
				previous = other.ID
			}
		}
		return nil
	})
	return previous, err
}

// EditCatalog applies an edit batch in one transaction.
func (s *BboltStore) EditCatalog(_ context.Context, id string, edit *models.CatalogEdit) (*models.Catalog, error) {
	return s.newVersion(id, func(pairs []models.QAPair) ([]models.QAPair, error) {
		if err := validateEdit(pairs, edit); err != nil {
			return nil, err
		}
		return applyEdit(pairs, edit, s.mode == EditFork), nil
	})
}

// ReplacePairs stores a new version whose pairs are exactly pairs.
func (s *BboltStore) ReplacePairs(_ context.Context, id string, pairs []models.QAPair) (*models.Catalog, error) {
	return s.newVersion(id, func([]models.QAPair) ([]models.QAPair, error) {
		return freshPairs(pairs)
	})
}

func (s *BboltStore) newVersion(id string, build func([]models.QAPair) ([]models.QAPair, error)) (*models.Catalog, error) {
	var next *models.Catalog
	err := s.db.Update(func(tx *bolt.Tx) error {
		prev, err := getCatalog(tx, id)
		if err != nil {
			return err
		}
		pairs, err := loadPairs(tx, id)
		if err != nil {
			return err
		}
		result, err := build(pairs)
		if err != nil {
			return err
		}

		next = nextVersion(prev, s.mode, s.now())
		if next.ID == prev.ID {
			if err := deletePairs(tx, id); err != nil {
				return err
			}
		}
		if err := putCatalog(tx, next); err != nil {
			return err
		}
		return putPairs(tx, next.ID, result)
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// GetHistory lists every version of the catalog's group, newest first.
func (s *BboltStore) GetHistory(_ context.Context, id string) (*models.VersionHistory, error) {
	var history *models.VersionHistory
	err := s.db.View(func(tx *bolt.Tx) error {
		c, err := getCatalog(tx, id)
		if err != nil {
			return err
		}
		all, err := allCatalogs(tx)
		if err != nil {
			return err
		}
		var group []*models.Catalog
		for _, other := range all {
			if other.GroupID == c.GroupID {
				group = append(group, other)
			}
		}
		history = sortHistory(group)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// ListPairs returns up to limit pairs starting at offset, in catalog order.
func (s *BboltStore) ListPairs(_ context.Context, id string, offset, limit int) ([]models.QAPair, error) {
	pairs := []models.QAPair{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if _, err := getCatalog(tx, id); err != nil {
			return err
		}
		if offset < 0 {
			offset = 0
		}
		return scanPairs(tx, id, offset, func(p models.QAPair) bool {
			pairs = append(pairs, p)
			return limit <= 0 || len(pairs) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	return pairs, nil
}
