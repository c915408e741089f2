// Package etcdstore implements core.ContextStore on etcd.
//
// Each context record is one JSON value under Prefix+contextID. Updates are
// compare-and-swap transactions on the key's mod revision.
package etcdstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/jdziat/fanin/pkg/core"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "/fanin/contexts/"

// Store is a ContextStore backed by an etcd cluster.
type Store struct {
	client  *clientv3.Client
	prefix  string
	backoff func() backoff.BackOff
}

// Option configures a Store.
type Option func(*Store)

// Prefix sets the key prefix for context records.
func Prefix(p string) Option {
	return func(s *Store) {
		if p != "" {
			s.prefix = p
		}
	}
}

// ConflictBackoff sets the retry policy for lost compare-and-swap races.
func ConflictBackoff(fn func() backoff.BackOff) Option {
	return func(s *Store) {
		if fn != nil {
			s.backoff = fn
		}
	}
}

// New returns a store using client.
func New(client *clientv3.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: DefaultPrefix,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 5 * time.Millisecond
			b.MaxInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			b.Reset()
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type record struct {
	Snapshot    core.Snapshot `json:"snapshot"`
	Version     int64         `json:"version"`
	Completed   bool          `json:"completed"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (r record) toCore(id string) *core.ContextRecord {
	return &core.ContextRecord{
		ID:          id,
		Snapshot:    r.Snapshot,
		Version:     r.Version,
		Completed:   r.Completed,
		CompletedAt: r.CompletedAt,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// GetOrInsert writes the record only if the key has never been created.
func (s *Store) GetOrInsert(ctx context.Context, contextID string, snapshot core.Snapshot) (*core.ContextRecord, error) {
	now := time.Now().UTC()
	rec := record{Snapshot: snapshot.Clone(), Version: 1, CreatedAt: now, UpdatedAt: now}
	if rec.Snapshot.IsComplete() {
		rec.Completed = true
		rec.CompletedAt = &now
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("fanin: encode context %s: %w", contextID, err)
	}

	key := s.key(contextID)
	resp, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return nil, fmt.Errorf("fanin: persist context %s: %w", contextID, err)
	}
	if resp.Succeeded {
		return rec.toCore(contextID), nil
	}

	kvs := resp.Responses[0].GetResponseRange().Kvs
	if len(kvs) == 0 {
		return nil, fmt.Errorf("fanin: load context %s: %w", contextID, core.ErrContextNotFound)
	}
	var existing record
	if err := json.Unmarshal(kvs[0].Value, &existing); err != nil {
		return nil, fmt.Errorf("fanin: decode context %s: %w", contextID, err)
	}
	return existing.toCore(contextID), nil
}

// Update applies fn and writes the result if the key was not modified since
// it was read. Lost races are retried.
func (s *Store) Update(ctx context.Context, contextID string, fn core.UpdateFunc) (*core.ContextRecord, bool, error) {
	var (
		out          *core.ContextRecord
		completedNow bool
	)
	op := func() error {
		rec, flipped, err := s.tryUpdate(ctx, contextID, fn)
		if err != nil {
			if errors.Is(err, core.ErrConflict) {
				return err
			}
			return backoff.Permanent(err)
		}
		out, completedNow = rec, flipped
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(s.backoff(), ctx)); err != nil {
		return nil, false, err
	}
	return out, completedNow, nil
}

func (s *Store) tryUpdate(ctx context.Context, contextID string, fn core.UpdateFunc) (*core.ContextRecord, bool, error) {
	key := s.key(contextID)
	resp, err := s.client.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if len(resp.Kvs) == 0 {
		return nil, false, fmt.Errorf("%w: %s", core.ErrContextNotFound, contextID)
	}
	kv := resp.Kvs[0]

	var cur record
	if err := json.Unmarshal(kv.Value, &cur); err != nil {
		return nil, false, fmt.Errorf("fanin: decode context %s: %w", contextID, err)
	}

	next := cur
	next.Snapshot = cur.Snapshot.Clone()
	if err := fn(&next.Snapshot); err != nil {
		return nil, false, err
	}
	next.Version++
	next.UpdatedAt = time.Now().UTC()

	completedNow := false
	if !cur.Completed && next.Snapshot.IsComplete() {
		next.Completed = true
		next.CompletedAt = &next.UpdatedAt
		completedNow = true
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, false, fmt.Errorf("fanin: encode context %s: %w", contextID, err)
	}

	txn, err := s.client.Txn(ctx).
		If(clientv3.Compare(clientv3.ModRevision(key), "=", kv.ModRevision)).
		Then(clientv3.OpPut(key, string(data))).
		Commit()
	if err != nil {
		return nil, false, err
	}
	if !txn.Succeeded {
		return nil, false, core.ErrConflict
	}
	return next.toCore(contextID), completedNow, nil
}

// Get returns the record, or nil if it does not exist.
func (s *Store) Get(ctx context.Context, contextID string) (*core.ContextRecord, error) {
	resp, err := s.client.Get(ctx, s.key(contextID))
	if err != nil {
		return nil, err
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	var rec record
	if err := json.Unmarshal(resp.Kvs[0].Value, &rec); err != nil {
		return nil, fmt.Errorf("fanin: decode context %s: %w", contextID, err)
	}
	return rec.toCore(contextID), nil
}

// ListIncomplete scans the prefix for incomplete records created before
// olderThan, oldest first.
func (s *Store) ListIncomplete(ctx context.Context, olderThan time.Time, limit int) ([]*core.ContextRecord, error) {
	resp, err := s.client.Get(ctx, s.prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	var out []*core.ContextRecord
	for _, kv := range resp.Kvs {
		var rec record
		if err := json.Unmarshal(kv.Value, &rec); err != nil {
			continue
		}
		if rec.Completed || !rec.CreatedAt.Before(olderThan) {
			continue
		}
		out = append(out, rec.toCore(string(kv.Key[len(s.prefix):])))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ core.ContextStore = (*Store)(nil)
