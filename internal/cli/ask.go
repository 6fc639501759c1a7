package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/models"
)

// AskResult is the JSON output of ask.
type AskResult struct {
	ConversationID string               `json:"conversationId"`
	Question       string               `json:"question"`
	Answer         string               `json:"answer"`
	Model          string               `json:"model"`
	Tokens         int                  `json:"tokens"`
	ResearchMode   manager.ResearchMode `json:"researchMode"`
}

func newAskCmd(a *app) *cobra.Command {
	var (
		model     string
		maxTokens int
		pages     []string
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the chat model about the pages in the session",
		Long: `Ask a question and get an answer from the configured chat model.

The question and the answer are recorded in the session, so follow-up
questions see the conversation. Use --page to analyze a page first.

Examples:
  pagewise ask "What is the main argument of this article?"
  pagewise ask "Summarize the pricing" --page https://example.com/pricing
  pagewise ask "Compare both approaches" --model reasoner`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			for _, target := range pages {
				doc, err := a.loadTarget(cmd, target, "")
				if err != nil {
					return err
				}
				if _, err := a.mgr.InitializePage(ctx, doc); err != nil {
					return fmt.Errorf("analyze %s: %w", target, err)
				}
				a.dirty = true
			}

			chat, err := a.model()
			if err != nil {
				return err
			}

			res, err := a.mgr.ProcessMessage(ctx, models.Message{Role: models.RoleUser, Content: question})
			if err != nil {
				return err
			}
			a.dirty = true

			built := res.Context
			if model != "" || maxTokens > 0 {
				built, err = a.mgr.BuildContext(ctx, manager.BuildRequest{Query: question, Model: model, MaxTokens: maxTokens})
				if err != nil {
					return err
				}
			}

			answer, err := chat.Complete(ctx, built.Prompt, nil, question)
			if err != nil {
				return err
			}
			if _, err := a.mgr.ProcessMessage(ctx, models.Message{Role: models.RoleAssistant, Content: answer}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, AskResult{
					ConversationID: res.ConversationID,
					Question:       question,
					Answer:         answer,
					Model:          built.Model,
					Tokens:         built.Tokens,
					ResearchMode:   res.ResearchMode,
				})
			}
			fmt.Fprintln(out, a.theme.wrap(answer, 0))
			if res.ResearchMode.Started && res.ResearchMode.Session != nil {
				fmt.Fprintf(out, "\n%s\n", a.theme.hint("research started: "+res.ResearchMode.Session.Name))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "target model (chat or reasoner)")
	cmd.Flags().IntVarP(&maxTokens, "max-tokens", "n", 0, "context token budget")
	cmd.Flags().StringSliceVarP(&pages, "page", "p", nil, "analyze these pages first")
	return cmd
}
