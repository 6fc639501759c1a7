package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/pagewise/internal/client"
)

func newPushCmd(a *app) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Replace the gateway session with the local one",
		Long: `Upload the local session to a running pagewise-server so the browser
extension continues from it.

Examples:
  pagewise push
  pagewise push --server http://127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			data, err := a.mgr.MarshalExport(ctx)
			if err != nil {
				return err
			}
			c := client.New(server)
			s, err := c.Import(ctx, data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d pages, %d conversations)\n",
				a.theme.success("Pushed to"), c.Endpoint(), s.PageCount, s.ConversationCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "gateway URL (default $PAGEWISE_SERVER_URL)")
	return cmd
}

func newPullCmd(a *app) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Replace the local session with the gateway one",
		Long: `Download the session of a running pagewise-server, including pages
the browser extension analyzed, into the local session file.

Examples:
  pagewise pull
  pagewise pull --server http://127.0.0.1:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := client.New(server)
			data, err := c.Export(ctx)
			if err != nil {
				return err
			}
			if err := a.mgr.UnmarshalImport(ctx, data); err != nil {
				return importError(err)
			}
			a.dirty = true
			s := a.mgr.Summary()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d pages, %d conversations)\n",
				a.theme.success("Pulled from"), c.Endpoint(), s.PageCount, s.ConversationCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "gateway URL (default $PAGEWISE_SERVER_URL)")
	return cmd
}
