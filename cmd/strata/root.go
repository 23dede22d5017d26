package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/anggasct/strata"
	"github.com/anggasct/strata/internal/logging"
	"github.com/anggasct/strata/pkg/loader"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "strata",
		Short: "Strata runs hierarchical state machines described in YAML",
		Long: `Strata loads region documents, validates them, drives them with named
events and renders their state graphs.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newValidateCmd(), newRunCmd(), newGraphCmd())
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func loggerFor(cmd *cobra.Command) (*slog.Logger, error) {
	s, _ := cmd.Flags().GetString("log-level")
	level, err := logging.ParseLevel(s)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(cmd.ErrOrStderr(), level), nil
}

// buildRegion loads the document at path with the builtin helpers and starts it
func buildRegion(path string, opts ...strata.Option) (*strata.Region, error) {
	b, err := loader.New(loader.Builtins()).FromFile(path)
	if err != nil {
		return nil, err
	}
	return b.Build(opts...)
}

// activeStates lists the active configuration without the root and the
// region nodes
func activeStates(m *strata.Machine) string {
	var ids []string
	for _, n := range m.Configuration().TopDown() {
		if n.Kind() == strata.KindRoot || n.IsRegion() {
			continue
		}
		ids = append(ids, n.ID())
	}
	return strings.Join(ids, ", ")
}

func countRegions(g *strata.Graph) int {
	n := 0
	for _, s := range g.States() {
		if s.IsRegion() {
			n++
		}
	}
	return n
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
