// Package pubsub tracks a connection's subscriber-mode state: which
// channels and patterns it has subscribed to, so the set can be
// replayed verbatim after a reconnect.
package pubsub

import "sync"

// Kind distinguishes channel subscriptions from pattern subscriptions.
// The unsubscribe/punsubscribe operations are internally mapped onto
// the same keys as subscribe/psubscribe, since they address the same
// set.
type Kind int

const (
	Channel Kind = iota
	Pattern
)

// Set holds two disjoint subscription sets: channels and patterns.
type Set struct {
	mu       sync.Mutex
	channels map[string]struct{}
	patterns map[string]struct{}
}

// New returns an empty subscription set.
func New() *Set {
	return &Set{
		channels: make(map[string]struct{}),
		patterns: make(map[string]struct{}),
	}
}

func (s *Set) setFor(kind Kind) map[string]struct{} {
	if kind == Pattern {
		return s.patterns
	}
	return s.channels
}

// Add records a subscription to name under kind.
func (s *Set) Add(kind Kind, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setFor(kind)[name] = struct{}{}
}

// Remove drops name from kind's set. Call this for both `unsubscribe`
// (kind=Channel) and `punsubscribe` (kind=Pattern) confirmations.
func (s *Set) Remove(kind Kind, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.setFor(kind), name)
}

// List returns a snapshot of every name currently subscribed under
// kind.
func (s *Set) List(kind Kind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	src := s.setFor(kind)
	out := make([]string, 0, len(src))
	for name := range src {
		out = append(out, name)
	}
	return out
}

// Empty reports whether both the channel and pattern sets are empty.
func (s *Set) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels) == 0 && len(s.patterns) == 0
}

// Snapshot returns the full state for replay after reconnect:
// channels then patterns.
func (s *Set) Snapshot() (channels []string, patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.channels {
		channels = append(channels, c)
	}
	for p := range s.patterns {
		patterns = append(patterns, p)
	}
	return channels, patterns
}
