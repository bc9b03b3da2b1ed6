package models

// CatalogEdit is the batch submitted to commit staged changes.
// Additions carry no ids, updates carry the real id, deletions are ids only.
type CatalogEdit struct {
	Additions []NewQAPair `json:"additions"`
	Updates   []QAPair    `json:"updates"`
	Deletions []string    `json:"deletions"`
}

// TotalChanges returns the total number of changes in the batch
func (e *CatalogEdit) TotalChanges() int {
	return len(e.Additions) + len(e.Updates) + len(e.Deletions)
}
