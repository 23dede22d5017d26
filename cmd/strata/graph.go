package main

import (
	"github.com/anggasct/strata/visualization"
	"github.com/spf13/cobra"
)

func newGraphCmd() *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph FILE",
		Short: "Render the state graph of a region document",
		Long:  `Writes the state graph in Graphviz DOT format, or as SVG when Graphviz is installed.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := buildRegion(args[0])
			if err != nil {
				return err
			}

			options := visualization.DefaultDOTOptions()
			options.CompactMode, _ = cmd.Flags().GetBool("compact")
			options.RankDirection, _ = cmd.Flags().GetString("rankdir")
			gen := visualization.ForMachine(r.Machine(), options)

			svg, _ := cmd.Flags().GetBool("svg")
			output, _ := cmd.Flags().GetString("output")
			if output != "" && !svg {
				if err := gen.GenerateToFile(output); err != nil {
					return err
				}
				printf(cmd, "wrote %s\n", output)
				return nil
			}

			content, err := gen.Generate()
			if svg {
				content, err = gen.GenerateSVG()
			}
			if err != nil {
				return err
			}
			printf(cmd, "%s", content)
			return nil
		},
	}
	graphCmd.Flags().StringP("output", "o", "", "Write the DOT graph to a file")
	graphCmd.Flags().Bool("compact", false, "Render states without clusters")
	graphCmd.Flags().String("rankdir", "TB", "Graph direction (TB, LR, BT, RL)")
	graphCmd.Flags().Bool("svg", false, "Render SVG through Graphviz")
	return graphCmd
}
