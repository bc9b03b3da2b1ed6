// Package remote defines the protocol types and client for qcat-server communication.
package remote

import (
	"github.com/kilupskalvis/qcat/internal/models"
)

// CreateCatalogRequest creates a catalog, optionally populated with pairs.
// Ids on the supplied pairs are ignored; the server assigns new ones.
type CreateCatalogRequest struct {
	Name  string          `json:"name"`
	Pairs []models.QAPair `json:"pairs,omitempty"`
}

// ReplacePairsRequest stores a new version made of exactly these pairs.
type ReplacePairsRequest struct {
	Pairs []models.QAPair `json:"pairs"`
}

// DeleteCatalogResult names the version to fall back to after a delete.
// PreviousRevisionID is nil when no version of the catalog is left.
type DeleteCatalogResult struct {
	PreviousRevisionID *string `json:"previous_revision_id"`
}

// PruneResult contains the outcome of a history prune.
type PruneResult struct {
	VersionsScanned int      `json:"versions_scanned"`
	VersionsDeleted int      `json:"versions_deleted"`
	Deleted         []string `json:"deleted"`
}

// ErrorResponse is the structured error format returned by the server.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Detail  map[string]string `json:"detail,omitempty"`
}
