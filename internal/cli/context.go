package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pagewise/internal/manager"
)

func newContextCmd(a *app) *cobra.Command {
	var (
		model       string
		maxTokens   int
		noMemory    bool
		noCrossPage bool
	)

	cmd := &cobra.Command{
		Use:   "context [query]",
		Short: "Print the prompt context for the session",
		Long: `Build the token-bounded prompt for the current session, optionally
focused on a query.

Examples:
  pagewise context
  pagewise context "how do channels close" --model reasoner
  pagewise context --max-tokens 800 --no-cross-page`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := manager.BuildRequest{
				Query:     strings.Join(args, " "),
				Model:     model,
				MaxTokens: maxTokens,
			}
			if noMemory {
				req.IncludeMemory = new(bool)
			}
			if noCrossPage {
				req.IncludeCrossPage = new(bool)
			}

			built, err := a.mgr.BuildContext(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, built)
			}
			header := fmt.Sprintf("model=%s tokens=%d/%d", built.Model, built.Tokens, built.TokenLimit)
			if built.PrivacyApplied {
				header += " privacy=on"
			}
			fmt.Fprintln(out, a.theme.hint(header))
			fmt.Fprintln(out)
			fmt.Fprintln(out, built.Prompt)
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "target model (chat or reasoner)")
	cmd.Flags().IntVarP(&maxTokens, "max-tokens", "n", 0, "token budget (default model limit)")
	cmd.Flags().BoolVar(&noMemory, "no-memory", false, "leave out conversation memory")
	cmd.Flags().BoolVar(&noCrossPage, "no-cross-page", false, "leave out related pages")
	return cmd
}
