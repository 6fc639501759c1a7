package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/pagewise/internal/manager"
)

// SnapshotInfo describes a stored export without its payload.
type SnapshotInfo struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Pages         int       `json:"pages"`
	Conversations int       `json:"conversations"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

type snapshotRecord struct {
	Name          string    `json:"name"`
	Version       string    `json:"version"`
	Data          string    `json:"data"`
	Pages         int       `json:"pages"`
	Conversations int       `json:"conversations"`
	Created       time.Time `json:"created"`
	Updated       time.Time `json:"updated"`
}

func (r snapshotRecord) info() SnapshotInfo {
	return SnapshotInfo{
		Name:          r.Name,
		Version:       r.Version,
		Pages:         r.Pages,
		Conversations: r.Conversations,
		Created:       r.Created,
		Updated:       r.Updated,
	}
}

func checkName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidName
	}
	return name, nil
}

// SaveSnapshot stores doc under name, replacing any snapshot with the same
// name.
func (c *Client) SaveSnapshot(ctx context.Context, name string, doc *manager.Export) (*SnapshotInfo, error) {
	defer c.timed(time.Now())
	name, err := checkName(name)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	results, err := surrealdb.Query[[]snapshotRecord](ctx, c.db, `
		UPSERT type::record("snapshot", $name) SET
			name = $name,
			version = $version,
			data = $data,
			pages = $pages,
			conversations = $conversations,
			updated = time::now()
		RETURN AFTER
	`, map[string]any{
		"name":          name,
		"version":       doc.Version,
		"data":          string(data),
		"pages":         len(doc.ContextBuilder.SessionContext.Pages),
		"conversations": len(doc.ContextBuilder.SessionContext.Conversations),
	})
	if err != nil {
		return nil, fmt.Errorf("save snapshot: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("save snapshot: no record returned")
	}
	info := (*results)[0].Result[0].info()
	c.logger.Info("snapshot saved", "name", name, "bytes", len(data), "pages", info.Pages)
	return &info, nil
}

// LoadSnapshot returns the export stored under name.
func (c *Client) LoadSnapshot(ctx context.Context, name string) (*manager.Export, error) {
	defer c.timed(time.Now())
	name, err := checkName(name)
	if err != nil {
		return nil, err
	}
	results, err := surrealdb.Query[[]snapshotRecord](ctx, c.db, `
		SELECT name, version, data, pages, conversations, created, updated
		FROM type::record("snapshot", $name)
	`, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	var doc manager.Export
	if err := json.Unmarshal([]byte((*results)[0].Result[0].Data), &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	return &doc, nil
}

// ListSnapshots returns every snapshot, most recently updated first.
func (c *Client) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	defer c.timed(time.Now())
	results, err := surrealdb.Query[[]SnapshotInfo](ctx, c.db, `
		SELECT name, version, pages, conversations, created, updated
		FROM snapshot
		ORDER BY updated DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []SnapshotInfo{}, nil
	}
	return (*results)[0].Result, nil
}

// DeleteSnapshot removes the snapshot stored under name.
func (c *Client) DeleteSnapshot(ctx context.Context, name string) error {
	defer c.timed(time.Now())
	name, err := checkName(name)
	if err != nil {
		return err
	}
	results, err := surrealdb.Query[[]SnapshotInfo](ctx, c.db, `
		DELETE type::record("snapshot", $name) RETURN BEFORE
	`, map[string]any{"name": name})
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	c.logger.Info("snapshot deleted", "name", name)
	return nil
}
