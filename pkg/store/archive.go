// Package store persists evaluation runs to Redis: the serialized
// network, the decomposition and the replay statistics, keyed by run
// name so experiments can be repeated and inspected later.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/netshift-network/netshift/pkg/util"
)

// keyPrefix namespaces all archive keys.
const keyPrefix = "netshift:run:"

// indexKey holds the set of all run names.
const indexKey = "netshift:runs"

// RunRecord is one archived evaluation.
type RunRecord struct {
	Name          string          `json:"name"`
	Topology      string          `json:"topology"`
	Scenario      string          `json:"scenario"`
	SpecKind      string          `json:"spec_kind"`
	CreatedAt     time.Time       `json:"created_at"`
	Network       json.RawMessage `json:"network"`
	Decomposition json.RawMessage `json:"decomposition"`
	Stats         json.RawMessage `json:"stats,omitempty"`
}

// Archive is a Redis-backed run store.
type Archive struct {
	client *redis.Client
}

// NewArchive connects to Redis.
func NewArchive(addr string, db int) *Archive {
	return &Archive{
		client: redis.NewClient(&redis.Options{
			Addr:        addr,
			DB:          db,
			DialTimeout: 5 * time.Second,
		}),
	}
}

// Ping verifies the connection.
func (a *Archive) Ping(ctx context.Context) error {
	if err := a.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to archive: %w", err)
	}
	return nil
}

// Close releases the connection.
func (a *Archive) Close() error {
	return a.client.Close()
}

// Save stores a run record, overwriting any previous run of the same
// name.
func (a *Archive) Save(ctx context.Context, rec *RunRecord) error {
	if rec.Name == "" {
		return fmt.Errorf("run record needs a name")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding run record: %w", err)
	}
	pipe := a.client.TxPipeline()
	pipe.Set(ctx, keyPrefix+rec.Name, data, 0)
	pipe.SAdd(ctx, indexKey, rec.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing run '%s': %w", rec.Name, err)
	}
	util.WithOperation("archive").Infof("stored run '%s'", rec.Name)
	return nil
}

// Load retrieves a run record by name.
func (a *Archive) Load(ctx context.Context, name string) (*RunRecord, error) {
	data, err := a.client.Get(ctx, keyPrefix+name).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("run '%s' not found", name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading run '%s': %w", name, err)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding run '%s': %w", name, err)
	}
	return &rec, nil
}

// List returns all stored run names, sorted.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	names, err := a.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a run.
func (a *Archive) Delete(ctx context.Context, name string) error {
	pipe := a.client.TxPipeline()
	pipe.Del(ctx, keyPrefix+name)
	pipe.SRem(ctx, indexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting run '%s': %w", name, err)
	}
	return nil
}
