// Package session owns the state of one compilation session: the type
// registry, the declared signatures, the deduction engine and the
// instantiation cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"fortio.org/safecast"

	"typeforge/internal/config"
	"typeforge/internal/deduce"
	"typeforge/internal/instcache"
	"typeforge/internal/trace"
	"typeforge/internal/types"
)

var (
	// ErrUnknownSignature is returned for a SignatureID the session never issued.
	ErrUnknownSignature = errors.New("unknown signature")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("session closed")
)

// SignatureID identifies a declared signature. IDs start at 1.
type SignatureID = instcache.SignatureID

// Session is safe for concurrent use.
type Session struct {
	cfg    config.Config
	types  *types.Interner
	engine *deduce.Engine
	cache  *instcache.Cache

	mu     sync.RWMutex
	sigs   []*deduce.Signature
	byName map[string][]SignatureID

	closed atomic.Bool
}

// New creates an empty session.
func New(cfg config.Config) *Session {
	return newWith(cfg, types.NewInterner())
}

func newWith(cfg config.Config, in *types.Interner) *Session {
	return &Session{
		cfg:    cfg,
		types:  in,
		engine: deduce.NewEngine(in, deduce.Options{MaxDepth: cfg.Engine.MaxDepth}),
		cache:  instcache.New(in, cfg.Cache.CapHint),
		byName: make(map[string][]SignatureID),
	}
}

// Types returns the session's type registry.
func (s *Session) Types() *types.Interner {
	return s.types
}

// Config returns the configuration the session was created with.
func (s *Session) Config() config.Config {
	return s.cfg
}

// Declare validates sig and registers a private copy of it. Declaring a
// signature identical to an earlier one returns the earlier id, so results
// cached for it stay reachable.
func (s *Session) Declare(ctx context.Context, sig deduce.Signature) (SignatureID, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	own := cloneSignature(sig)
	if err := own.Validate(s.types); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.byName == nil {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	for _, prev := range s.byName[own.Name] {
		if s.sigs[prev-1].Equal(own) {
			s.mu.Unlock()
			return prev, nil
		}
	}
	s.sigs = append(s.sigs, own)
	id, err := safecast.Conv[SignatureID](len(s.sigs))
	if err != nil {
		s.sigs = s.sigs[:len(s.sigs)-1]
		s.mu.Unlock()
		return 0, fmt.Errorf("signature table overflow: %w", err)
	}
	s.byName[own.Name] = append(s.byName[own.Name], id)
	s.mu.Unlock()

	trace.Point(trace.FromContext(ctx), trace.ScopeSession, "declare", own.Name+"#"+strconv.FormatUint(uint64(id), 10))
	return id, nil
}

// Signature returns the declared signature for id. The result must not be
// modified.
func (s *Session) Signature(id SignatureID) (*deduce.Signature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signatureLocked(id)
}

// signatureLocked requires s.mu. Close clears the table under the same lock,
// so a nil table means the session is closed.
func (s *Session) signatureLocked(id SignatureID) (*deduce.Signature, error) {
	if s.byName == nil {
		return nil, ErrClosed
	}
	if id == 0 || int(id) > len(s.sigs) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSignature, id)
	}
	return s.sigs[id-1], nil
}

// Overloads returns the ids declared under name in declaration order.
func (s *Session) Overloads(name string) []SignatureID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.byName[name])
}

// Len returns the number of declared signatures.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sigs)
}

// Deduce runs deduction for one call through the instantiation cache.
// The error is non-nil only for an unknown signature or a closed session;
// deduction failures are reported in the Result.
func (s *Session) Deduce(ctx context.Context, id SignatureID, args []deduce.Arg) (deduce.Result, error) {
	sig, err := s.Signature(id)
	if err != nil {
		return deduce.Result{}, err
	}
	ctx, span := trace.StartSpan(ctx, trace.ScopeCall, "session.deduce")
	res := s.cache.GetOrCompute(ctx, id, args, func() deduce.Result {
		return s.engine.Deduce(ctx, sig, args)
	})
	span.WithExtra("result", res.Kind.String()).End(sig.Name)
	return res, nil
}

// Stats reports instantiation cache counters.
func (s *Session) Stats() instcache.Stats {
	return s.cache.Stats()
}

// Entries returns the cached results ordered by signature.
func (s *Session) Entries() []instcache.Entry {
	return s.cache.Entries()
}

// CacheLen returns the number of cached deduction results.
func (s *Session) CacheLen() int {
	return s.cache.Len()
}

// Close releases the session. Later calls fail with ErrClosed.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return ErrClosed
	}
	s.mu.Lock()
	s.sigs = nil
	s.byName = nil
	s.mu.Unlock()
	return nil
}

func cloneSignature(sig deduce.Signature) *deduce.Signature {
	return &deduce.Signature{
		Name:           sig.Name,
		TemplateParams: slices.Clone(sig.TemplateParams),
		Params:         slices.Clone(sig.Params),
		Result:         sig.Result,
		Attrs:          slices.Clone(sig.Attrs),
	}
}
