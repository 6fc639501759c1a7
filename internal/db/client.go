// Package db persists session exports in SurrealDB.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/raphaelgruber/pagewise/internal/metrics"
)

func init() {
	// WebSocket upgrade fails when ALPN negotiates HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

// Config holds SurrealDB connection configuration.
type Config struct {
	URL       string
	Namespace string
	Database  string
	Username  string
	Password  string
	AuthLevel string // "root" or "database"
}

// Client wraps a SurrealDB connection that reconnects on failure.
type Client struct {
	conn    *rews.Connection[*gorillaws.Connection]
	db      *surrealdb.DB
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewClient connects, signs in and selects the namespace and database.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	sdkLogger := logger.New(log.Handler())
	codec := surrealcbor.New()

	// gorillaws appends /rpc itself.
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)

	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = 1 * time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	log.Info("connecting to SurrealDB", "url", cfg.URL)
	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("from connection: %w", err)
	}

	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("signin: %w", err)
	}

	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("use: %w", err)
	}

	log.Info("SurrealDB connection established",
		"namespace", cfg.Namespace, "database", cfg.Database, "auth_level", cfg.AuthLevel)
	return &Client{conn: conn, db: db, cfg: cfg, logger: log}, nil
}

// Close closes the connection.
func (c *Client) Close(ctx context.Context) error {
	c.logger.Info("closing SurrealDB connection")
	return c.conn.Close(ctx)
}

// InitSchema defines the snapshot table.
func (c *Client) InitSchema(ctx context.Context) error {
	if _, err := surrealdb.Query[any](ctx, c.db, SchemaSQL, nil); err != nil {
		return fmt.Errorf("init schema: %w", wrapQueryError(err))
	}
	c.logger.Debug("schema initialized")
	return nil
}

// SetMetrics records query timings under metrics.OpDBQuery.
func (c *Client) SetMetrics(mc *metrics.Collector) {
	c.metrics = mc
}

func (c *Client) timed(start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordTiming(metrics.OpDBQuery, time.Since(start))
	}
}

// Query executes a SurrealQL statement with parameters.
func (c *Client) Query(ctx context.Context, sql string, vars map[string]any) (*[]surrealdb.QueryResult[any], error) {
	defer c.timed(time.Now())
	return surrealdb.Query[any](ctx, c.db, sql, vars)
}

// WipeData deletes every snapshot. Use for testing only.
func (c *Client) WipeData(ctx context.Context) error {
	c.logger.Warn("wiping all snapshots")
	if _, err := surrealdb.Query[any](ctx, c.db, "DELETE snapshot", nil); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
