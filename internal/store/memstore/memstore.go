// Package memstore is an in-process store.Store. Sorted-set ordering and
// missing-key semantics follow Redis so both stores rank identically.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/XavierBriggs/fortuna/services/arena/internal/store"
)

// Store is a goroutine-safe in-memory store.Store
type Store struct {
	mu     sync.RWMutex
	zsets  map[string]map[string]float64
	hashes map[string]map[string]string
	sets   map[string]map[string]struct{}

	subMu   sync.RWMutex
	subs    map[string]map[uint64]store.Handler
	nextSub uint64
}

var _ store.Store = (*Store)(nil)

// New creates an empty Store
func New() *Store {
	return &Store{
		zsets:  make(map[string]map[string]float64),
		hashes: make(map[string]map[string]string),
		sets:   make(map[string]map[string]struct{}),
		subs:   make(map[string]map[uint64]store.Handler),
	}
}

func (s *Store) ZAdd(_ context.Context, key, member string, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] = score
	return nil
}

func (s *Store) ZRevRank(_ context.Context, key, member string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.zsets[key][member]; !ok {
		return 0, false, nil
	}
	for i, m := range s.sortedLocked(key) {
		if m.Member == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	score, ok := s.zsets[key][member]
	return score, ok, nil
}

// ZRevRangeWithScores returns members by descending score between the
// inclusive indexes start and stop. Negative indexes count from the end.
func (s *Store) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]store.ScoredMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sorted := s.sortedLocked(key)
	n := int64(len(sorted))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return []store.ScoredMember{}, nil
	}
	return append([]store.ScoredMember(nil), sorted[start:stop+1]...), nil
}

func (s *Store) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.zsets[key])), nil
}

// sortedLocked orders by score descending, ties by member descending
func (s *Store) sortedLocked(key string) []store.ScoredMember {
	z := s.zsets[key]
	out := make([]store.ScoredMember, 0, len(z))
	for m, score := range z {
		out = append(out, store.ScoredMember{Member: m, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member > out[j].Member
	})
	return out
}

func (s *Store) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (s *Store) HGet(_ context.Context, key, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (s *Store) HDel(_ context.Context, key, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.hashes[key], field)
	return nil
}

func (s *Store) SAdd(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *Store) SRem(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sets[key], member)
	return nil
}

func (s *Store) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *Store) SMembers(_ context.Context, key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// Publish delivers payload synchronously to every subscriber of channel
func (s *Store) Publish(_ context.Context, channel string, payload []byte) error {
	s.subMu.RLock()
	handlers := make([]store.Handler, 0, len(s.subs[channel]))
	for _, h := range s.subs[channel] {
		handlers = append(handlers, h)
	}
	s.subMu.RUnlock()

	for _, h := range handlers {
		h(append([]byte(nil), payload...))
	}
	return nil
}

func (s *Store) Subscribe(_ context.Context, channel string, handler store.Handler) (func(), error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.subs[channel] == nil {
		s.subs[channel] = make(map[uint64]store.Handler)
	}
	s.subs[channel][id] = handler

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs[channel], id)
	}, nil
}
