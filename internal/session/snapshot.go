package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"

	"typeforge/internal/config"
	"typeforge/internal/deduce"
	"typeforge/internal/instcache"
	"typeforge/internal/trace"
	"typeforge/internal/types"
)

// Current schema version - increment when snapshotPayload changes.
const snapshotSchemaVersion uint16 = 1

// ErrSnapshotSchema reports a snapshot written by an incompatible version.
var ErrSnapshotSchema = errors.New("snapshot schema mismatch")

// snapshotPayload is the on-disk form of a session.
type snapshotPayload struct {
	Schema     uint16
	Registry   types.Snapshot
	Signatures []deduce.Signature
	Entries    []instcache.Entry
}

// Save writes the registry, the declared signatures and every cached
// result to path. The file is replaced atomically.
func (s *Session) Save(ctx context.Context, path string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	_, span := trace.StartSpan(ctx, trace.ScopeSession, "snapshot.save")
	defer span.End(path)

	payload := snapshotPayload{
		Schema:   snapshotSchemaVersion,
		Registry: s.types.Snapshot(),
		Entries:  s.cache.Entries(),
	}
	s.mu.RLock()
	payload.Signatures = make([]deduce.Signature, len(s.sigs))
	for i, sig := range s.sigs {
		payload.Signatures[i] = *sig
	}
	s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if err := msgpack.NewEncoder(f).Encode(&payload); err != nil {
		f.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load restores a session saved with Save. Every signature is validated
// again against the restored registry.
func Load(ctx context.Context, path string, cfg config.Config) (*Session, error) {
	_, span := trace.StartSpan(ctx, trace.ScopeSession, "snapshot.load")
	defer span.End(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var payload snapshotPayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: decode snapshot: %w", path, err)
	}
	if payload.Schema != snapshotSchemaVersion {
		return nil, fmt.Errorf("%s: %w: got %d, want %d", path, ErrSnapshotSchema, payload.Schema, snapshotSchemaVersion)
	}
	in, err := types.FromSnapshot(payload.Registry)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s := newWith(cfg, in)
	for _, sig := range payload.Signatures {
		if _, err := s.Declare(ctx, sig); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	n := len(payload.Signatures)
	for _, e := range payload.Entries {
		if e.Signature == 0 || int(e.Signature) > n {
			return nil, fmt.Errorf("%s: cache entry for %w %d", path, ErrUnknownSignature, e.Signature)
		}
	}
	s.cache.Restore(payload.Entries)
	return s, nil
}

// LoadOrNew loads path when it exists and otherwise returns a fresh session.
func LoadOrNew(ctx context.Context, path string, cfg config.Config) (*Session, error) {
	if path == "" {
		return New(cfg), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return New(cfg), nil
	}
	return Load(ctx, path, cfg)
}
