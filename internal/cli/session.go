package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/metrics"
)

func newExportCmd(a *app) *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the session as JSON",
		Long: `Export the full session as a version 1.0 JSON document.

Without a file the document is written to stdout. With --db it is saved
as a named snapshot in SurrealDB instead.

Examples:
  pagewise export session.json
  pagewise export > backup.json
  pagewise export --db weekly-research`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if snapshot != "" {
				client, err := a.snapshots(ctx)
				if err != nil {
					return err
				}
				doc, err := a.mgr.ExportAllContext(ctx)
				if err != nil {
					return err
				}
				info, err := client.SaveSnapshot(ctx, snapshot, doc)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s %s (%d pages, %d conversations)\n",
					a.theme.success("Saved snapshot"), info.Name, info.Pages, info.Conversations)
				return nil
			}

			data, err := a.mgr.MarshalExport(ctx)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = out.Write(append(data, '\n'))
				return err
			}
			if err := os.WriteFile(args[0], data, 0600); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(out, "%s %s\n", a.theme.success("Exported to"), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "db", "", "save as a named SurrealDB snapshot")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var snapshot string

	cmd := &cobra.Command{
		Use:   "import [file|-]",
		Short: "Replace the session with an export",
		Long: `Replace the session with a previously exported JSON document, read
from a file, stdin ("-") or a SurrealDB snapshot.

Examples:
  pagewise import session.json
  cat backup.json | pagewise import -
  pagewise import --db weekly-research`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			switch {
			case snapshot != "":
				client, err := a.snapshots(ctx)
				if err != nil {
					return err
				}
				doc, err := client.LoadSnapshot(ctx, snapshot)
				if err != nil {
					return err
				}
				if err := a.mgr.ImportAllContext(ctx, doc); err != nil {
					return importError(err)
				}
			case len(args) == 1:
				var (
					data []byte
					err  error
				)
				if args[0] == "-" {
					data, err = io.ReadAll(cmd.InOrStdin())
				} else {
					data, err = os.ReadFile(args[0])
				}
				if err != nil {
					return fmt.Errorf("read import: %w", err)
				}
				if err := a.mgr.UnmarshalImport(ctx, data); err != nil {
					return importError(err)
				}
			default:
				return errors.New("import needs a file, - or --db <name>")
			}

			a.dirty = true
			s := a.mgr.Summary()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d pages, %d conversations\n",
				a.theme.success("Imported"), s.PageCount, s.ConversationCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&snapshot, "db", "", "load a named SurrealDB snapshot")
	return cmd
}

func importError(err error) error {
	if errors.Is(err, manager.ErrIncompatibleVersion) {
		return fmt.Errorf("%w (expected version %s)", err, manager.ExportVersion)
	}
	return err
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session counts, topics and toggles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.mgr.Summary()
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, s)
			}
			fmt.Fprintln(out, a.theme.title("Session"))
			printField(out, a.theme, "File", a.sessionPath)
			printField(out, a.theme, "Pages", fmt.Sprint(s.PageCount))
			printField(out, a.theme, "Conversations", fmt.Sprint(s.ConversationCount))
			printField(out, a.theme, "Current page", s.CurrentPageID)
			printField(out, a.theme, "Primary topic", s.PrimaryTopic)
			printField(out, a.theme, "Topics", strings.Join(s.CommonTopics, ", "))
			printField(out, a.theme, "Remembered", strings.Join(s.MemoryTopics, ", "))
			printField(out, a.theme, "Cross-page links", fmt.Sprint(s.CrossPageLinks))
			if s.Research != nil {
				printField(out, a.theme, "Research", fmt.Sprintf("%s (%d findings)", s.Research.Name, len(s.Research.Findings)))
			}
			printField(out, a.theme, "Toggles", fmt.Sprintf("memory=%t cross-page=%t auto-research=%t privacy=%t",
				s.Config.EnableMemory, s.Config.EnableCrossPage, s.Config.AutoResearch, s.Config.PrivacyMode))
			return nil
		},
	}
}

func newMetricsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show session statistics and LLM token usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap := a.mgr.GetMetrics()
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, snap)
			}
			printMetrics(out, a.theme, snap)
			return nil
		},
	}
}

func printMetrics(w io.Writer, t Theme, s metrics.Snapshot) {
	fmt.Fprintln(w, t.title("Session statistics"))
	fmt.Fprintf(w, "Context builds: %d (avg %.1fms)\n", s.ContextBuilds, s.AverageBuildTime)
	fmt.Fprintf(w, "Memory queries: %d\n", s.MemoryQueries)
	fmt.Fprintf(w, "Cross-page links: %d\n", s.CrossPageLinks)
	fmt.Fprintf(w, "Pages initialized: %d, messages: %d\n", len(s.InitializeTimes), len(s.MessageTimes))

	names := make([]string, 0, len(s.Operations))
	for name := range s.Operations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		op := s.Operations[name]
		fmt.Fprintf(w, "\n%s\n", t.label(name))
		fmt.Fprintf(w, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
		fmt.Fprintf(w, "  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
		if op.TotalInputTokens != nil && op.TotalOutputTokens != nil {
			fmt.Fprintf(w, "  Tokens: %d in, %d out\n", *op.TotalInputTokens, *op.TotalOutputTokens)
		}
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget all pages, conversations and memory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.mgr.ClearAllContext(cmd.Context()); err != nil {
				return err
			}
			a.dirty = true
			fmt.Fprintln(cmd.OutOrStdout(), a.theme.success("Session cleared"))
			return nil
		},
	}
}

