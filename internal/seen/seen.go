// Package seen records content identities that have already been delivered.
package seen

import (
	"context"
	"time"
)

// Set is an insertion-ordered set of identities. It is not safe for
// concurrent use; the ingestion pipeline is its only writer.
type Set struct {
	ids   []string
	index map[string]struct{}
}

// NewSet returns a set holding ids, ignoring blanks and duplicates.
func NewSet(ids ...string) *Set {
	s := &Set{index: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *Set) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Add inserts id and reports whether it was new. Empty ids are rejected.
func (s *Set) Add(id string) bool {
	if id == "" || s.Contains(id) {
		return false
	}
	if s.index == nil {
		s.index = make(map[string]struct{})
	}
	s.index[id] = struct{}{}
	s.ids = append(s.ids, id)
	return true
}

func (s *Set) Len() int {
	return len(s.ids)
}

// IDs returns a copy of the identities in insertion order.
func (s *Set) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Store loads and durably persists a Set.
type Store interface {
	Load(ctx context.Context) (*Set, error)
	Persist(ctx context.Context, s *Set) error
}

// Resetter is implemented by stores that support a manual wipe.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Discard wraps a store so that loads pass through and persists are dropped.
// Used for dry runs.
func Discard(s Store) Store {
	return discard{inner: s}
}

type discard struct {
	inner Store
}

func (d discard) Load(ctx context.Context) (*Set, error) {
	if d.inner == nil {
		return NewSet(), nil
	}
	return d.inner.Load(ctx)
}

func (discard) Persist(context.Context, *Set) error {
	return nil
}

// Delivery is one delivery attempt recorded by stores that keep history.
type Delivery struct {
	ScanID   string
	Identity string
	Location string
	Title    string
	Channel  string
	Status   string // DeliveryOK or DeliveryFailed
	Error    string
	Degraded bool
	At       time.Time
}

const (
	DeliveryOK     = "delivered"
	DeliveryFailed = "failed"
)

// Recorder is implemented by stores that keep a delivery history.
type Recorder interface {
	RecordDelivery(ctx context.Context, d Delivery) error
}
