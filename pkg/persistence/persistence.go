// Package persistence defines snapshot stores for machines. Implementations
// live in the filestore and redisstore subpackages.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/anggasct/strata"
)

// ErrEmptyID is returned for operations without a machine id
var ErrEmptyID = errors.New("machine id cannot be empty")

// Store is a strata.Snapshotter that can also enumerate and delete snapshots
type Store interface {
	strata.Snapshotter
	Delete(ctx context.Context, machineID string) error
	List(ctx context.Context) ([]string, error)
}

// NotFound reports a missing snapshot. The error matches strata.ErrNotFound.
func NotFound(machineID string) error {
	return fmt.Errorf("snapshot '%s': %w", machineID, strata.ErrNotFound)
}
