package strata

import (
	"context"
	"time"
)

// Snapshot is the serializable state of a machine
type Snapshot struct {
	MachineID string                    `json:"machine_id" yaml:"machine_id"`
	Leaf      string                    `json:"leaf" yaml:"leaf"`
	History   map[string]string         `json:"history" yaml:"history"`
	Version   uint64                    `json:"version" yaml:"version"`
	Regions   map[string]map[string]any `json:"regions,omitempty" yaml:"regions,omitempty"`
	Timestamp time.Time                 `json:"timestamp" yaml:"timestamp"`
}

// Snapshotter persists machine snapshots
type Snapshotter interface {
	Save(ctx context.Context, s Snapshot) error
	Load(ctx context.Context, machineID string) (Snapshot, error)
}

// SaveTo stores the current snapshot of m
func SaveTo(ctx context.Context, store Snapshotter, m *Machine) error {
	return store.Save(ctx, m.Snapshot())
}

// LoadInto restores m from the snapshot stored under machineID
func LoadInto(ctx context.Context, store Snapshotter, m *Machine, machineID string) error {
	s, err := store.Load(ctx, machineID)
	if err != nil {
		return err
	}
	return m.Restore(s)
}
