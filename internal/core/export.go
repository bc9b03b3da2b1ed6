package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilupskalvis/qcat/internal/models"
	"golang.org/x/sync/errgroup"
)

const maxFetchWorkers = 4

// PageLister fetches one page of pairs of a catalog.
type PageLister interface {
	GetPreview(ctx context.Context, id string) (*models.CatalogPreview, error)
	ListPairs(ctx context.Context, id string, offset, limit int) ([]models.QAPair, error)
}

// FetchProgress is called as pages complete.
type FetchProgress func(done, total int)

// FetchAllPairs downloads every pair of catalogID. Pages are fetched
// concurrently and reassembled in catalog order.
func FetchAllPairs(ctx context.Context, svc PageLister, catalogID string, pageSize int, progress FetchProgress) ([]models.QAPair, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if progress == nil {
		progress = func(int, int) {}
	}

	preview, err := svc.GetPreview(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("load catalog preview: %w", err)
	}

	pageCount := (preview.Length + pageSize - 1) / pageSize
	pages := make([][]models.QAPair, pageCount)
	progress(0, pageCount)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetchWorkers)

	var mu sync.Mutex
	done := 0
	for i := range pageCount {
		g.Go(func() error {
			pairs, err := svc.ListPairs(ctx, catalogID, i*pageSize, pageSize)
			if err != nil {
				return fmt.Errorf("fetch page %d: %w", i, err)
			}
			pages[i] = pairs

			mu.Lock()
			done++
			progress(done, pageCount)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.QAPair, 0, preview.Length)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, nil
}
