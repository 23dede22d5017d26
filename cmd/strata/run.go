package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/anggasct/strata"
	"github.com/anggasct/strata/pkg/observers"
	"github.com/anggasct/strata/pkg/persistence"
	"github.com/anggasct/strata/pkg/persistence/filestore"
	"github.com/anggasct/strata/pkg/persistence/redisstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Drive a region document with named events",
		Long: `Dispatches named events to the region and prints the active configuration
after every step. With --events the names are dispatched in order, otherwise
--event is dispatched --steps times. The run stops early once the region is final.`,
		Args: cobra.ExactArgs(1),
		RunE: runMachine,
	}
	runCmd.Flags().Int("steps", 1, "Number of times --event is dispatched")
	runCmd.Flags().String("event", "tick", "Event name dispatched on every step")
	runCmd.Flags().StringSlice("events", nil, "Event names dispatched in order")
	runCmd.Flags().String("id", "", "Machine id used for snapshots")
	runCmd.Flags().String("store", "", "Directory for YAML snapshots")
	runCmd.Flags().String("redis", "", "Redis address for snapshots")
	runCmd.Flags().Bool("resume", false, "Restore the stored snapshot before running")
	runCmd.Flags().Bool("metrics", false, "Print state counters after the run")
	runCmd.Flags().Bool("coverage", false, "Print the states never entered")
	return runCmd
}

func runMachine(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}

	events, err := eventPlan(cmd)
	if err != nil {
		return err
	}
	store, err := snapshotStore(cmd)
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}
	id, _ := cmd.Flags().GetString("id")
	if store != nil && id == "" {
		return errors.New("--id is required with --store or --redis")
	}

	registry := prometheus.NewRegistry()
	metrics := observers.NewMetricsObserver(registry)
	coverage := observers.NewValidationObserver()
	opts := []strata.Option{
		strata.WithLogger(logger),
		strata.WithObserver(observers.NewLoggingObserver(logger, slog.LevelDebug)),
		strata.WithObserver(metrics),
		strata.WithObserver(coverage),
	}
	if id != "" {
		opts = append(opts, strata.WithID(id))
	}

	r, err := buildRegion(args[0], opts...)
	if err != nil {
		return err
	}
	m := r.Machine()

	if resume, _ := cmd.Flags().GetBool("resume"); resume {
		if store == nil {
			return errors.New("--resume needs --store or --redis")
		}
		if err := strata.LoadInto(ctx, store, m, id); err != nil {
			return fmt.Errorf("resume: %w", err)
		}
	}
	coverage.ExpectGraph(m.Graph()).MarkActive(m.Configuration())

	printf(cmd, "start: %s\n", activeStates(m))
	for i, name := range events {
		if err := m.DispatchContext(ctx, strata.NewEvent(name, nil)); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, name, err)
		}
		printf(cmd, "step %d %s: %s\n", i+1, name, activeStates(m))
		if m.IsFinal() {
			printf(cmd, "final configuration reached\n")
			break
		}
	}

	if store != nil {
		if err := strata.SaveTo(ctx, store, m); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		printf(cmd, "saved snapshot %s (version %d)\n", id, m.Configuration().Version())
	}
	if show, _ := cmd.Flags().GetBool("metrics"); show {
		if err := printMetrics(cmd, registry); err != nil {
			return err
		}
	}
	if show, _ := cmd.Flags().GetBool("coverage"); show {
		unvisited := coverage.UnvisitedStates()
		if len(unvisited) == 0 {
			printf(cmd, "every state was entered\n")
		} else {
			printf(cmd, "never entered: %s\n", strings.Join(unvisited, ", "))
		}
	}
	return nil
}

func eventPlan(cmd *cobra.Command) ([]string, error) {
	if events, _ := cmd.Flags().GetStringSlice("events"); len(events) > 0 {
		return events, nil
	}
	steps, _ := cmd.Flags().GetInt("steps")
	if steps < 0 {
		return nil, fmt.Errorf("--steps must not be negative, got %d", steps)
	}
	name, _ := cmd.Flags().GetString("event")
	events := make([]string, steps)
	for i := range events {
		events[i] = name
	}
	return events, nil
}

func snapshotStore(cmd *cobra.Command) (persistence.Store, error) {
	dir, _ := cmd.Flags().GetString("store")
	addr, _ := cmd.Flags().GetString("redis")
	switch {
	case dir != "" && addr != "":
		return nil, errors.New("--store and --redis cannot be used together")
	case dir != "":
		return filestore.New(dir), nil
	case addr != "":
		return redisstore.New(addr, "", 0), nil
	}
	return nil, nil
}

func printMetrics(cmd *cobra.Command, registry *prometheus.Registry) error {
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	var lines []string
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if metric.GetCounter() == nil {
				continue
			}
			var labels []string
			for _, l := range metric.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", f.GetName(), strings.Join(labels, ","), metric.GetCounter().GetValue()))
		}
	}
	slices.Sort(lines)
	for _, line := range lines {
		printf(cmd, "%s\n", line)
	}
	return nil
}
