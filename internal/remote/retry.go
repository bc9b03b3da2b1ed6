package remote

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/kilupskalvis/qcat/internal/models"
)

// RetryConfig configures retry behavior for transient errors.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFraction float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		JitterFraction: 0.25,
	}
}

// RetryClient wraps a CatalogClient with automatic retry on transient errors.
// Calls that create a new catalog version are passed through unretried.
type RetryClient struct {
	inner  CatalogClient
	config *RetryConfig
}

// NewRetryClient creates a RetryClient that wraps the given CatalogClient.
func NewRetryClient(inner CatalogClient, cfg *RetryConfig) *RetryClient {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	return &RetryClient{inner: inner, config: cfg}
}

// isTransient returns true for errors that are worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status >= 500 || re.Status == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true // network errors are transient
}

// backoff computes the delay for the given attempt with jitter.
func (rc *RetryClient) backoff(attempt int) time.Duration {
	base := float64(rc.config.InitialBackoff) * math.Pow(2, float64(attempt))
	if base > float64(rc.config.MaxBackoff) {
		base = float64(rc.config.MaxBackoff)
	}
	jitter := base * rc.config.JitterFraction * (rand.Float64()*2 - 1)
	d := time.Duration(base + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// sleep waits for the given duration or until the context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retry executes fn with retry logic. Only retries transient errors.
func (rc *RetryClient) retry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= rc.config.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) {
			return lastErr
		}
		if attempt < rc.config.MaxRetries {
			d := rc.backoff(attempt)
			if err := sleep(ctx, d); err != nil {
				return fmt.Errorf("%s: %w (retry cancelled)", operation, lastErr)
			}
		}
	}
	return fmt.Errorf("%s: %w (after %d retries)", operation, lastErr, rc.config.MaxRetries)
}

func (rc *RetryClient) ListCatalogs(ctx context.Context, offset, limit int, name string) (previews []*models.CatalogPreview, err error) {
	err = rc.retry(ctx, "list catalogs", func() error {
		previews, err = rc.inner.ListCatalogs(ctx, offset, limit, name)
		return err
	})
	return
}

func (rc *RetryClient) CreateCatalog(ctx context.Context, name string, pairs []models.QAPair) (*models.Catalog, error) {
	// A timed-out create may still have succeeded; retrying would duplicate it.
	return rc.inner.CreateCatalog(ctx, name, pairs)
}

func (rc *RetryClient) GetCatalog(ctx context.Context, id string) (c *models.Catalog, err error) {
	err = rc.retry(ctx, "get catalog", func() error {
		c, err = rc.inner.GetCatalog(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) GetPreview(ctx context.Context, id string) (p *models.CatalogPreview, err error) {
	err = rc.retry(ctx, "get preview", func() error {
		p, err = rc.inner.GetPreview(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) ListPairs(ctx context.Context, id string, offset, limit int) (pairs []models.QAPair, err error) {
	err = rc.retry(ctx, "list pairs", func() error {
		pairs, err = rc.inner.ListPairs(ctx, id, offset, limit)
		return err
	})
	return
}

func (rc *RetryClient) EditCatalog(ctx context.Context, id string, edit *models.CatalogEdit) (*models.Catalog, error) {
	// Edit batches are NOT retried: each accepted batch forks a new version,
	// so a retry after a lost response would apply the batch twice.
	return rc.inner.EditCatalog(ctx, id, edit)
}

func (rc *RetryClient) ReplacePairs(ctx context.Context, id string, pairs []models.QAPair) (*models.Catalog, error) {
	return rc.inner.ReplacePairs(ctx, id, pairs)
}

func (rc *RetryClient) GetHistory(ctx context.Context, id string) (h *models.VersionHistory, err error) {
	err = rc.retry(ctx, "get history", func() error {
		h, err = rc.inner.GetHistory(ctx, id)
		return err
	})
	return
}

func (rc *RetryClient) DeleteCatalog(ctx context.Context, id string) (*DeleteCatalogResult, error) {
	// Not retried: a repeat after a lost response reports not_found for a
	// delete that went through.
	return rc.inner.DeleteCatalog(ctx, id)
}
