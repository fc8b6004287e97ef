package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	vector "github.com/tingold/orb-vector"
)

func newLsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "ls PATH",
		Short: "List the layers of a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layers, err := vector.ListLayers(args[0], g.options())
			if err != nil {
				return err
			}
			for _, name := range layers {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
