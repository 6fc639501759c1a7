package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSnapshotsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List or delete SurrealDB snapshots",
		Long: `Named session snapshots stored in SurrealDB.

Save and restore them with 'pagewise export --db <name>' and
'pagewise import --db <name>'.

Examples:
  pagewise snapshots list
  pagewise snapshots delete weekly-research`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.snapshots(ctx)
			if err != nil {
				return err
			}
			infos, err := client.ListSnapshots(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.jsonOut {
				return printJSON(out, infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out, "No snapshots.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPAGES\tCONVERSATIONS\tUPDATED")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", info.Name, info.Pages, info.Conversations,
					info.Updated.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}, &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.snapshots(ctx)
			if err != nil {
				return err
			}
			if err := client.DeleteSnapshot(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", a.theme.success("Deleted snapshot"), args[0])
			return nil
		},
	})
	return cmd
}
