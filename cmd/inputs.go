package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// newInputsCmd creates the 'inputs' subcommand, which lists candidate input
// stores newest first. The first entry is what 'run' would pick.
func newInputsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inputs",
		Short: "List candidate input stores, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			stores, err := a.Locator().Candidates(cmd.Context())
			if err != nil {
				return err
			}
			if len(stores) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no input stores in %s\n", a.Locator().Root())
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PATH\tMODIFIED\tBYTES")
			for _, s := range stores {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", s.Path, s.ModTime.UTC().Format(time.RFC3339), s.Size)
			}
			return tw.Flush()
		},
	}
}
