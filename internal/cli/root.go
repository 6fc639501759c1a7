// Package cli provides the command-line interface for pagewise.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pagewise/internal/capture"
	"github.com/raphaelgruber/pagewise/internal/config"
	"github.com/raphaelgruber/pagewise/internal/db"
	"github.com/raphaelgruber/pagewise/internal/llm"
	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/metrics"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// Version is set at build time.
var Version = "0.1.0"

// chatModel answers a user message with the assembled context.
type chatModel interface {
	Complete(ctx context.Context, prompt string, history []models.Message, userMessage string) (string, error)
}

// app carries state shared by the commands of one invocation.
type app struct {
	// Flags
	verbose     bool
	configPath  string
	sessionPath string
	privacy     bool
	jsonOut     bool

	cfg     config.Config
	logger  *slog.Logger
	closeFn func() error
	mgr     *manager.Manager
	metrics *metrics.Collector
	theme   Theme
	dirty   bool

	// Lazily created
	dbClient     *db.Client
	fetcher      capture.Fetcher
	closeFetcher func() error
	chat         chatModel

	// Overridable in tests
	newChat func(a *app) (chatModel, error)
}

func newApp() *app {
	return &app{
		newChat: func(a *app) (chatModel, error) {
			return llm.NewModel(a.cfg, a.logger, a.metrics)
		},
	}
}

// Execute runs the root command.
func Execute() error {
	return newRootCmd(newApp()).Execute()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "pagewise",
		Short: "Page-aware context for LLM conversations",
		Long: `Pagewise analyzes web pages, remembers what you discussed about them
and builds compact, token-bounded prompts for chat models.

The session is kept in a local file between invocations and can be
exported to JSON or saved as a named snapshot in SurrealDB.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" || cmd.Name() == "init" {
				return nil
			}
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $PAGEWISE_CONFIG)")
	root.PersistentFlags().StringVar(&a.sessionPath, "session", "", "session file (default user cache dir)")
	root.PersistentFlags().BoolVar(&a.privacy, "privacy", false, "redact personal data from output")
	root.PersistentFlags().BoolVar(&a.jsonOut, "json", false, "print JSON instead of text")

	root.AddCommand(
		newAnalyzeCmd(a),
		newContextCmd(a),
		newAskCmd(a),
		newResearchCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newSnapshotsCmd(a),
		newPushCmd(a),
		newPullCmd(a),
		newStatusCmd(a),
		newMetricsCmd(a),
		newClearCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads config, restores the session file and applies overrides.
func (a *app) setup(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = os.Getenv("PAGEWISE_CONFIG")
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	stderrLevel := slog.LevelWarn
	if a.verbose {
		stderrLevel = slog.LevelDebug
	}
	a.logger, a.closeFn = config.NewLogger(cmd.ErrOrStderr(), stderrLevel, cfg.LogFile, cfg.LogLevel())
	a.theme = themeFor(cmd.OutOrStdout())

	if a.sessionPath == "" {
		a.sessionPath = defaultSessionPath()
	}
	a.metrics = metrics.NewCollector()
	a.mgr = manager.New(a.logger, manager.OptionsFromConfig(cfg, a.metrics))

	if err := a.loadSession(cmd.Context()); err != nil {
		return err
	}
	if cmd.Flags().Changed("privacy") {
		a.mgr.SetPrivacyMode(a.privacy)
	}
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	if a.dirty && a.mgr != nil {
		errs = append(errs, a.saveSession(ctx))
	}
	if a.closeFetcher != nil {
		errs = append(errs, a.closeFetcher())
	}
	if a.dbClient != nil {
		errs = append(errs, a.dbClient.Close(ctx))
	}
	if a.closeFn != nil {
		errs = append(errs, a.closeFn())
	}
	return errors.Join(errs...)
}

func defaultSessionPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "pagewise", "session.json")
}

func (a *app) loadSession(ctx context.Context) error {
	data, err := os.ReadFile(a.sessionPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session: %w", err)
	}
	if err := a.mgr.UnmarshalImport(ctx, data); err != nil {
		if errors.Is(err, manager.ErrIncompatibleVersion) {
			a.logger.Warn("ignoring session file from another version", "path", a.sessionPath, "error", err)
			return nil
		}
		return fmt.Errorf("load session %s: %w", a.sessionPath, err)
	}
	return nil
}

func (a *app) saveSession(ctx context.Context) error {
	data, err := a.mgr.MarshalExport(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(a.sessionPath), 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(a.sessionPath, data, 0600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// snapshots connects to SurrealDB on first use.
func (a *app) snapshots(ctx context.Context) (*db.Client, error) {
	if a.dbClient != nil {
		return a.dbClient, nil
	}
	client, err := db.NewClient(ctx, db.ConfigFrom(a.cfg), a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	client.SetMetrics(a.metrics)
	a.dbClient = client
	return client, nil
}

func (a *app) pageFetcher() capture.Fetcher {
	if a.fetcher == nil {
		a.fetcher, a.closeFetcher = capture.FromConfig(a.cfg, a.logger, a.metrics)
	}
	return a.fetcher
}

func (a *app) model() (chatModel, error) {
	if a.chat == nil {
		m, err := a.newChat(a)
		if err != nil {
			return nil, fmt.Errorf("init chat model: %w", err)
		}
		a.chat = m
	}
	return a.chat, nil
}
