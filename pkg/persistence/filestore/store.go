// Package filestore stores machine snapshots as YAML files
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/anggasct/strata"
	"github.com/anggasct/strata/pkg/persistence"
	"gopkg.in/yaml.v3"
)

const ext = ".yaml"

// Store keeps one YAML file per machine in a directory
type Store struct {
	BasePath string
}

var _ persistence.Store = (*Store)(nil)

// New creates a store rooted at basePath, ".strata/snapshots" when empty
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".strata", "snapshots")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(machineID string) string {
	return filepath.Join(s.BasePath, machineID+ext)
}

// Save writes the snapshot atomically: the data goes to a synced temporary
// file that is then renamed over the destination.
func (s *Store) Save(_ context.Context, snap strata.Snapshot) error {
	if snap.MachineID == "" {
		return persistence.ErrEmptyID
	}
	if err := os.MkdirAll(s.BasePath, 0o755); err != nil {
		return fmt.Errorf("failed to ensure snapshot directory: %w", err)
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+snap.MachineID+"-*"+ext)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path(snap.MachineID)); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the snapshot of machineID
func (s *Store) Load(_ context.Context, machineID string) (strata.Snapshot, error) {
	var snap strata.Snapshot
	if machineID == "" {
		return snap, persistence.ErrEmptyID
	}

	data, err := os.ReadFile(s.path(machineID))
	if err != nil {
		if os.IsNotExist(err) {
			return snap, persistence.NotFound(machineID)
		}
		return snap, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes the snapshot of machineID. Missing snapshots are ignored.
func (s *Store) Delete(_ context.Context, machineID string) error {
	if machineID == "" {
		return persistence.ErrEmptyID
	}
	if err := os.Remove(s.path(machineID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}
	return nil
}

// List returns the stored machine ids, sorted
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ext) || strings.HasPrefix(name, "tmp-") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ext))
	}
	slices.Sort(ids)
	return ids, nil
}
