package main

import (
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Check a region document",
		Long:  `Loads the document, resolves every helper tag and compiles the region hierarchy. All problems are reported at once.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRegion(args[0])
			if err != nil {
				return err
			}
			g := r.Machine().Graph()
			printf(cmd, "%s: ok (%d states, %d sub-regions)\n", args[0], len(g.States())-countRegions(g), countRegions(g))
			printf(cmd, "initial configuration: %s\n", activeStates(r.Machine()))
			return nil
		},
	}
}
