package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pagewise/internal/crosspage"
	"github.com/raphaelgruber/pagewise/internal/manager"
	"github.com/raphaelgruber/pagewise/internal/models"
)

func newResearchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Manage research sessions",
		Long: `Group pages, findings and open questions under a research goal.

Examples:
  pagewise research start "Go generics" --goal "decide on constraints"
  pagewise research add "type sets replace interface embedding"
  pagewise research end
  pagewise research list`,
	}
	cmd.AddCommand(newResearchStartCmd(a), newResearchAddCmd(a), newResearchEndCmd(a), newResearchListCmd(a))
	return cmd
}

func newResearchStartCmd(a *app) *cobra.Command {
	var goal string
	cmd := &cobra.Command{
		Use:   "start [name]",
		Short: "Start a research session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.mgr.StartResearchSession(cmd.Context(), strings.Join(args, " "), goal)
			if err != nil {
				return researchError(err)
			}
			a.dirty = true
			return a.printSession(cmd.OutOrStdout(), s, "Started")
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "what the research should answer")
	return cmd
}

func newResearchAddCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add <finding>",
		Short: "Record a finding in the active session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.mgr.AddResearchFinding(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return researchError(err)
			}
			a.dirty = true
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, f)
			}
			fmt.Fprintf(out, "%s %s\n", a.theme.success("Added finding"), f.ID)
			return nil
		},
	}
}

func newResearchEndCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Close the active session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.mgr.EndResearchSession(cmd.Context())
			if err != nil {
				return researchError(err)
			}
			a.dirty = true
			return a.printSession(cmd.OutOrStdout(), s, "Closed")
		},
	}
}

func newResearchListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List research sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions := a.mgr.ResearchSessions()
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, sessions)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No research sessions.")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(out, "%-8s %-7s %s %s\n", s.ID, s.Status, s.Name,
					a.theme.hint(fmt.Sprintf("(%d pages, %d findings)", len(s.Pages), len(s.Findings))))
			}
			return nil
		},
	}
}

func (a *app) printSession(w io.Writer, s models.ResearchSession, verb string) error {
	if a.jsonOut {
		return printJSON(w, s)
	}
	fmt.Fprintf(w, "%s %s\n", a.theme.success(verb+" research"), s.Name)
	printField(w, a.theme, "Goal", s.Goal)
	printField(w, a.theme, "Status", string(s.Status))
	printField(w, a.theme, "Pages", fmt.Sprint(len(s.Pages)))
	var findings []string
	for _, f := range s.Findings {
		findings = append(findings, f.Content)
	}
	printList(w, a.theme, "Findings", findings)
	printList(w, a.theme, "Open questions", s.Questions)
	return nil
}

func researchError(err error) error {
	switch {
	case errors.Is(err, crosspage.ErrNoActiveResearch):
		return errors.New("no active research session, start one with 'pagewise research start'")
	case errors.Is(err, crosspage.ErrResearchActive):
		return errors.New("a research session is already active, end it with 'pagewise research end'")
	case errors.Is(err, manager.ErrCrossPageDisabled):
		return errors.New("cross-page context is disabled in the config")
	}
	return err
}
