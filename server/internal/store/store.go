package store

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/obsidianstack/logshipper/pkg/types"
)

// Entry is one stream together with the time it last received a push.
// Values returned by Get, List and Select are copies owned by the caller.
type Entry struct {
	Fingerprint string
	Labels      map[string]string
	Values      [][2]string
	UpdatedAt   time.Time
}

// Store is a thread-safe in-memory stream store keyed by label-set
// fingerprint. A background goroutine (Run) periodically evicts streams that
// have not received a push within the configured TTL.
type Store struct {
	mu         sync.RWMutex
	data       map[string]*Entry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL that keeps at most maxEntries
// values per stream. maxEntries <= 0 means unbounded.
func New(ttl time.Duration, maxEntries int) *Store {
	return &Store{
		data:       make(map[string]*Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// TTL returns the configured retention window.
func (s *Store) TTL() time.Duration { return s.ttl }

// Fingerprint returns the canonical form of a label set, e.g.
// {channel="app", level="error"}. Equal label sets share a fingerprint.
func Fingerprint(labels map[string]string) string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.Quote(labels[k]))
	}
	b.WriteByte('}')
	return b.String()
}

// Append adds the values of st to the stream with the same label set,
// creating it if needed. It returns the stream's fingerprint.
func (s *Store) Append(st types.Stream) string {
	fp := Fingerprint(st.Stream)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[fp]
	if !ok {
		e = &Entry{Fingerprint: fp, Labels: copyLabels(st.Stream)}
		s.data[fp] = e
	}
	e.Values = append(e.Values, st.Values...)
	if s.maxEntries > 0 && len(e.Values) > s.maxEntries {
		drop := len(e.Values) - s.maxEntries
		e.Values = append(e.Values[:0:0], e.Values[drop:]...)
	}
	e.UpdatedAt = s.now()
	return fp
}

// Get returns the stream with the given fingerprint and a boolean indicating
// whether it was found. The entry may be stale if TTL has elapsed.
func (s *Store) Get(fingerprint string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[fingerprint]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// List returns every stream updated within the TTL, ordered by fingerprint.
func (s *Store) List() []Entry {
	return s.Select(nil)
}

// Select returns the live streams whose labels include every name=value pair
// in match, ordered by fingerprint. A nil or empty match selects all.
func (s *Store) Select(match map[string]string) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]Entry, 0, len(s.data))
	for _, e := range s.data {
		if !e.UpdatedAt.After(cutoff) || !matches(e.Labels, match) {
			continue
		}
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out
}

// Count returns the total number of streams currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes streams whose UpdatedAt is older than now minus TTL.
// It returns the number of streams removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for fp, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, fp)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL interval
// (minimum 1 second) so streams are evicted promptly. Run blocks until ctx is
// cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted idle streams", "count", n)
			}
		}
	}
}

func (e *Entry) clone() Entry {
	return Entry{
		Fingerprint: e.Fingerprint,
		Labels:      copyLabels(e.Labels),
		Values:      append([][2]string(nil), e.Values...),
		UpdatedAt:   e.UpdatedAt,
	}
}

func matches(labels, match map[string]string) bool {
	for k, v := range match {
		if got, ok := labels[k]; !ok || got != v {
			return false
		}
	}
	return true
}

func copyLabels(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
