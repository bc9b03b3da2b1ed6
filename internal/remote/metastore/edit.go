package metastore

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kilupskalvis/qcat/internal/models"
)

// validateEdit checks an edit batch against the current pairs of a catalog.
// Any violation rejects the whole batch.
func validateEdit(pairs []models.QAPair, edit *models.CatalogEdit) error {
	existing := make(map[string]bool, len(pairs))
	for _, p := range pairs {
		existing[p.ID] = true
	}

	updated := make(map[string]bool, len(edit.Updates))
	for _, u := range edit.Updates {
		if !existing[u.ID] {
			return fmt.Errorf("%w: update of unknown pair %q", ErrValidation, u.ID)
		}
		if updated[u.ID] {
			return fmt.Errorf("%w: pair %q updated twice", ErrValidation, u.ID)
		}
		if strings.TrimSpace(u.Question) == "" {
			return fmt.Errorf("%w: pair %q has an empty question", ErrValidation, u.ID)
		}
		updated[u.ID] = true
	}

	for _, id := range edit.Deletions {
		if !existing[id] {
			return fmt.Errorf("%w: deletion of unknown pair %q", ErrValidation, id)
		}
		if updated[id] {
			return fmt.Errorf("%w: pair %q is both updated and deleted", ErrValidation, id)
		}
	}

	for i, a := range edit.Additions {
		if strings.TrimSpace(a.Question) == "" {
			return fmt.Errorf("%w: addition %d has an empty question", ErrValidation, i)
		}
	}

	return nil
}

// applyEdit returns the pair list that results from edit. Surviving pairs
// keep their order, updates replace their pair and additions are appended
// in request order. With fresh set every pair is assigned a new id.
func applyEdit(pairs []models.QAPair, edit *models.CatalogEdit, fresh bool) []models.QAPair {
	deleted := make(map[string]bool, len(edit.Deletions))
	for _, id := range edit.Deletions {
		deleted[id] = true
	}
	updates := make(map[string]models.QAPair, len(edit.Updates))
	for _, u := range edit.Updates {
		updates[u.ID] = u
	}

	out := make([]models.QAPair, 0, len(pairs)+len(edit.Additions))
	for _, p := range pairs {
		if deleted[p.ID] {
			continue
		}
		if u, ok := updates[p.ID]; ok {
			p = u
		}
		p = normalizePair(p)
		if fresh {
			p.ID = uuid.NewString()
		}
		out = append(out, p)
	}

	for _, a := range edit.Additions {
		out = append(out, normalizePair(a.WithID(uuid.NewString())))
	}

	return out
}

// freshPairs assigns new ids to uploaded pairs.
func freshPairs(pairs []models.QAPair) ([]models.QAPair, error) {
	out := make([]models.QAPair, len(pairs))
	for i, p := range pairs {
		if strings.TrimSpace(p.Question) == "" {
			return nil, fmt.Errorf("%w: pair %d has an empty question", ErrValidation, i)
		}
		p = normalizePair(p)
		p.ID = uuid.NewString()
		out[i] = p
	}
	return out, nil
}

func normalizePair(p models.QAPair) models.QAPair {
	p = p.Clone()
	if p.Contexts == nil {
		p.Contexts = []string{}
	}
	if p.MetaData == nil {
		p.MetaData = map[string]any{}
	}
	return p
}

func newCatalog(name string, now time.Time) (*models.Catalog, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: catalog name is required", ErrValidation)
	}
	return &models.Catalog{
		ID:        uuid.NewString(),
		GroupID:   uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
		Revision:  1,
		Status:    models.CatalogReady,
	}, nil
}

// nextVersion derives the catalog record that follows prev. In fork mode
// it is a new catalog of the same group pointing back at prev.
func nextVersion(prev *models.Catalog, mode EditMode, now time.Time) *models.Catalog {
	next := *prev
	next.Revision = prev.Revision + 1
	next.UpdatedAt = now
	next.Status = models.CatalogReady
	next.Error = ""
	if mode == EditFork {
		next.ID = uuid.NewString()
		next.PreviousVersionID = prev.ID
	}
	return &next
}

// sortHistory orders versions newest first.
func sortHistory(versions []*models.Catalog) *models.VersionHistory {
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Revision > versions[j].Revision
	})
	h := &models.VersionHistory{Versions: make([]models.VersionHistoryItem, 0, len(versions))}
	for _, v := range versions {
		h.Versions = append(h.Versions, models.VersionHistoryItem{
			VersionID: v.ID,
			CreatedAt: v.CreatedAt,
			Revision:  v.Revision,
		})
	}
	return h
}

// latestPerGroup keeps the highest revision of every group, filters by name
// and orders the result by name then id.
func latestPerGroup(all []*models.Catalog, name string) []*models.Catalog {
	latest := make(map[string]*models.Catalog)
	for _, c := range all {
		if cur, ok := latest[c.GroupID]; !ok || c.Revision > cur.Revision {
			latest[c.GroupID] = c
		}
	}

	needle := strings.ToLower(name)
	out := make([]*models.Catalog, 0, len(latest))
	for _, c := range latest {
		if needle != "" && !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func previewOf(c *models.Catalog, length int) *models.CatalogPreview {
	return &models.CatalogPreview{
		ID:        c.ID,
		Name:      c.Name,
		Length:    length,
		Revision:  c.Revision,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Status:    c.Status,
	}
}
