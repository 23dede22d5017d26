// Package redisstore stores machine snapshots in Redis
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anggasct/strata"
	"github.com/anggasct/strata/pkg/persistence"
	backend "github.com/redis/go-redis/v9"
)

const (
	defaultPrefix = "strata:snapshot:"
	// indexName is the key suffix of the id index, never a machine id
	indexName = "@index"
	// score used for snapshots without expiration, 2100-01-01
	noExpiry = 4102444800
)

// ErrReservedID is returned for the machine id that names the index key
var ErrReservedID = fmt.Errorf("machine id '%s' is reserved", indexName)

// Store keeps snapshots as JSON strings and indexes machine ids in a sorted
// set scored by expiry. Whole numbers in region data load as int64 and other
// numbers as float64.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ persistence.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithTTL expires snapshots after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New connects to the Redis server at address
func New(address, password string, db int, opts ...Option) *Store {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(client, opts...)
}

// NewFromClient creates a store using an existing client
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(machineID string) string {
	return s.prefix + machineID
}

func (s *Store) indexKey() string {
	return s.prefix + indexName
}

func checkID(machineID string) error {
	switch machineID {
	case "":
		return persistence.ErrEmptyID
	case indexName:
		return ErrReservedID
	}
	return nil
}

// Save stores the snapshot and refreshes its index entry
func (s *Store) Save(ctx context.Context, snap strata.Snapshot) error {
	if err := checkID(snap.MachineID); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	score := float64(noExpiry)
	if s.ttl > 0 {
		score = float64(s.now().Add(s.ttl).Unix())
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(snap.MachineID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: snap.MachineID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load returns the snapshot of machineID
func (s *Store) Load(ctx context.Context, machineID string) (strata.Snapshot, error) {
	var snap strata.Snapshot
	if err := checkID(machineID); err != nil {
		return snap, err
	}

	val, err := s.client.Get(ctx, s.key(machineID)).Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return snap, persistence.NotFound(machineID)
		}
		return snap, fmt.Errorf("failed to get from redis: %w", err)
	}
	dec := json.NewDecoder(strings.NewReader(val))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return snap, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	for _, data := range snap.Regions {
		for k, v := range data {
			data[k] = numbers(v)
		}
	}
	return snap, nil
}

// numbers replaces json.Number values with int64 or float64
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = numbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = numbers(e)
		}
	}
	return v
}

// Delete removes the snapshot and its index entry
func (s *Store) Delete(ctx context.Context, machineID string) error {
	if err := checkID(machineID); err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(machineID))
	pipe.ZRem(ctx, s.indexKey(), machineID)
	_, err := pipe.Exec(ctx)
	return err
}

// List prunes expired index entries and returns the remaining machine ids
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := fmt.Sprintf("%d", s.now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired snapshots: %w", err)
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return ids, nil
}

// Close closes the redis client
func (s *Store) Close() error {
	return s.client.Close()
}
