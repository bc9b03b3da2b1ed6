package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kilupskalvis/qcat/internal/remote"
	"github.com/kilupskalvis/qcat/internal/remote/metastore"
)

// ErrInvalidKeep is returned when a prune would keep no versions.
var ErrInvalidKeep = errors.New("keep must be at least 1")

// PruneHistory deletes all but the newest keep versions of the catalog that
// catalogID belongs to. A version that fails to delete is logged and skipped.
func PruneHistory(ctx context.Context, store metastore.CatalogStore, catalogID string, keep int, logger *slog.Logger) (*remote.PruneResult, error) {
	if keep < 1 {
		return nil, ErrInvalidKeep
	}

	history, err := store.GetHistory(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("get history: %w", err)
	}

	result := &remote.PruneResult{
		VersionsScanned: len(history.Versions),
		Deleted:         []string{},
	}
	if len(history.Versions) <= keep {
		return result, nil
	}

	for _, v := range history.Versions[keep:] {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, err := store.DeleteCatalog(ctx, v.VersionID); err != nil {
			logger.Warn("prune: failed to delete version", "version_id", v.VersionID, "error", err)
			continue
		}
		result.Deleted = append(result.Deleted, v.VersionID)
		result.VersionsDeleted++
	}

	logger.Info("prune complete",
		"catalog_id", catalogID,
		"scanned", result.VersionsScanned,
		"deleted", result.VersionsDeleted,
	)
	return result, nil
}
