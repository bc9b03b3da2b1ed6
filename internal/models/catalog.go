package models

import "time"

// CatalogStatus is the lifecycle state of a catalog version.
type CatalogStatus string

const (
	CatalogReady      CatalogStatus = "READY"
	CatalogGenerating CatalogStatus = "GENERATING"
	CatalogFailure    CatalogStatus = "FAILURE"
)

// Catalog is one immutable version of a Q&A catalog.
// Versions of the same catalog share a GroupID.
type Catalog struct {
	ID                string        `json:"id"`
	GroupID           string        `json:"group_id,omitempty"`
	Name              string        `json:"name"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Revision          int           `json:"revision"`
	Status            CatalogStatus `json:"status"`
	Error             string        `json:"error,omitempty"`
	PreviousVersionID string        `json:"previous_version_id,omitempty"`
}

// ShortID returns a shortened catalog ID (first 8 characters)
func (c *Catalog) ShortID() string {
	if len(c.ID) > 8 {
		return c.ID[:8]
	}
	return c.ID
}

// CatalogPreview is a catalog summary including its pair count.
type CatalogPreview struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Length    int           `json:"length"`
	Revision  int           `json:"revision"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Status    CatalogStatus `json:"status"`
}

// VersionHistoryItem is one entry of a catalog's version chain.
type VersionHistoryItem struct {
	VersionID string    `json:"version_id"`
	CreatedAt time.Time `json:"created_at"`
	Revision  int       `json:"revision"`
}

// VersionHistory lists all versions of a catalog, newest first.
type VersionHistory struct {
	Versions []VersionHistoryItem `json:"versions"`
}
