// Package tools provides MCP tool handlers and registration.
package tools

import (
	"context"
	"log/slog"

	"github.com/raphaelgruber/pagewise/internal/capture"
	"github.com/raphaelgruber/pagewise/internal/db"
	"github.com/raphaelgruber/pagewise/internal/manager"
)

// SnapshotStore persists session exports. *db.Client implements it.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, name string, doc *manager.Export) (*db.SnapshotInfo, error)
	LoadSnapshot(ctx context.Context, name string) (*manager.Export, error)
}

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Manager   *manager.Manager
	Fetcher   capture.Fetcher
	Snapshots SnapshotStore
	Logger    *slog.Logger
}
