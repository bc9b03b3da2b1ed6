// Package metastore provides the server-side catalog storage abstraction.
package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/kilupskalvis/qcat/internal/models"
)

// Sentinel errors for expected conditions.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
)

// EditMode selects how an edit batch is materialized.
type EditMode string

const (
	// EditFork stores every edit as a new catalog version with a new id.
	EditFork EditMode = "fork"
	// EditInPlace keeps the catalog id and bumps its revision.
	EditInPlace EditMode = "in-place"
)

// ParseEditMode validates a mode name.
func ParseEditMode(s string) (EditMode, error) {
	switch EditMode(s) {
	case EditFork, EditInPlace:
		return EditMode(s), nil
	case "":
		return EditFork, nil
	}
	return "", fmt.Errorf("unknown edit mode %q (want %q or %q)", s, EditFork, EditInPlace)
}

// ListOptions filters and pages catalog listings.
type ListOptions struct {
	Offset int
	Limit  int
	// Name keeps catalogs whose name contains it, case-insensitively.
	Name string
}

// CatalogStore defines the contract for server-side catalog persistence.
type CatalogStore interface {
	// Catalogs
	CreateCatalog(ctx context.Context, name string, pairs []models.QAPair) (*models.Catalog, error)
	GetCatalog(ctx context.Context, id string) (*models.Catalog, error)
	GetPreview(ctx context.Context, id string) (*models.CatalogPreview, error)
	ListCatalogs(ctx context.Context, opts ListOptions) ([]*models.CatalogPreview, error)

	// DeleteCatalog removes one version and returns the id of the newest
	// remaining version of the same catalog, or "" if none is left.
	DeleteCatalog(ctx context.Context, id string) (string, error)

	// Versions
	EditCatalog(ctx context.Context, id string, edit *models.CatalogEdit) (*models.Catalog, error)
	ReplacePairs(ctx context.Context, id string, pairs []models.QAPair) (*models.Catalog, error)
	GetHistory(ctx context.Context, id string) (*models.VersionHistory, error)

	// Pairs
	ListPairs(ctx context.Context, id string, offset, limit int) ([]models.QAPair, error)

	// Close releases resources.
	Close() error
}
