package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pagewise/internal/capture"
	"github.com/raphaelgruber/pagewise/internal/dom"
	"github.com/raphaelgruber/pagewise/internal/manager"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	var stdinURL string

	cmd := &cobra.Command{
		Use:   "analyze <url|file|->...",
		Short: "Analyze pages and add them to the session",
		Long: `Analyze one or more pages and add them to the session.

Targets may be http(s) URLs, local HTML or Markdown files, or "-" to read
HTML from stdin. URLs are fetched over HTTP, or through Chrome when
browser_control_url is configured.

Examples:
  pagewise analyze https://go.dev/doc/effective_go
  pagewise analyze notes.md article.html
  curl -s https://example.com | pagewise analyze - --url https://example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			var results []manager.PageResult

			for _, target := range args {
				doc, err := a.loadTarget(cmd, target, stdinURL)
				if err != nil {
					return err
				}
				res, err := a.mgr.InitializePage(ctx, doc)
				if err != nil {
					return fmt.Errorf("analyze %s: %w", target, err)
				}
				a.dirty = true
				results = append(results, res)
			}

			if a.jsonOut {
				if len(results) == 1 {
					return printJSON(out, results[0])
				}
				return printJSON(out, results)
			}
			for i, res := range results {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printPageResult(out, a.theme, res)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&stdinURL, "url", "", "page URL for stdin input")
	return cmd
}

func (a *app) loadTarget(cmd *cobra.Command, target, stdinURL string) (*dom.HTMLDocument, error) {
	switch {
	case target == "-":
		data, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), capture.DefaultMaxBytes))
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return dom.ParseString(string(data), stdinURL)
	case capture.IsURL(target):
		page, err := a.pageFetcher().Fetch(cmd.Context(), target)
		if err != nil {
			return nil, err
		}
		return page.Document()
	default:
		if _, err := os.Stat(target); err != nil {
			return nil, fmt.Errorf("%s is neither a URL nor a readable file: %w", target, err)
		}
		page, err := capture.LoadFile(target)
		if err != nil {
			return nil, err
		}
		return page.Document()
	}
}

func printPageResult(w io.Writer, t Theme, res manager.PageResult) {
	page := res.ExtractedContent
	title := page.Metadata.Title
	if title == "" {
		title = "(untitled)"
	}
	fmt.Fprintln(w, t.title(title))
	printField(w, t, "URL", page.Metadata.URL)
	printField(w, t, "Type", string(page.ContentType))
	printField(w, t, "Page", page.PageID)
	printField(w, t, "Topics", strings.Join(page.Topics, ", "))
	if page.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", t.wrap(page.Summary, 0))
	}
	printList(w, t, "Key points", page.KeyPoints)

	if pc := res.PageContext; pc != nil && len(pc.Connections) > 0 {
		var related []string
		for _, c := range pc.Connections {
			other := c.Target
			if other == page.PageID {
				other = c.Source
			}
			related = append(related, fmt.Sprintf("%s (%s, %.2f)", other, c.Kind, c.Strength))
		}
		printList(w, t, "Related pages", related)
	}
	printList(w, t, "Suggestions", res.Suggestions)
	fmt.Fprintf(w, "\n%s\n", t.hint(fmt.Sprintf("context: %d/%d tokens", res.FullContext.Tokens, res.FullContext.TokenLimit)))
}
