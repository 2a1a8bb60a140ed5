package audit

import (
	"context"
	"sort"
	"sync"
)

type MemStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Save(ctx context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, *e)
	return nil
}

func (s *MemStore) FindAll(ctx context.Context) ([]Event, error) {
	return s.find(func(Event) bool { return true }), nil
}

func (s *MemStore) FindByUsername(ctx context.Context, username string) ([]Event, error) {
	return s.find(func(e Event) bool { return e.Username == username }), nil
}

func (s *MemStore) find(keep func(Event) bool) []Event {
	s.mu.RLock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out
}

func sortNewestFirst(es []Event) {
	sort.SliceStable(es, func(i, j int) bool {
		if !es[i].Timestamp.Equal(es[j].Timestamp) {
			return es[i].Timestamp.After(es[j].Timestamp)
		}
		return es[i].ID > es[j].ID
	})
}
