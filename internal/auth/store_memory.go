package auth

import (
	"context"
	"sort"
	"sync"
)

type MemStore struct {
	mu         sync.RWMutex
	byUsername map[string]User
	nextID     int64
}

func NewMemStore() *MemStore {
	return &MemStore{byUsername: make(map[string]User)}
}

var _ UserStore = (*MemStore)(nil)

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Save(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[u.Username]; ok {
		return ErrUsernameTaken
	}

	s.nextID++
	u.ID = s.nextID
	s.byUsername[u.Username] = cloneUser(*u)
	return nil
}

func (s *MemStore) Update(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byUsername[u.Username]
	if !ok {
		return ErrUserNotFound
	}
	u.ID = cur.ID
	s.byUsername[u.Username] = cloneUser(u)
	return nil
}

func (s *MemStore) FindByUsername(ctx context.Context, username string) (User, bool, error) {
	s.mu.RLock()
	u, ok := s.byUsername[username]
	s.mu.RUnlock()

	if !ok {
		return User{}, false, nil
	}
	return cloneUser(u), true, nil
}

func (s *MemStore) FindAll(ctx context.Context) ([]User, error) {
	s.mu.RLock()
	out := make([]User, 0, len(s.byUsername))
	for _, u := range s.byUsername {
		out = append(out, cloneUser(u))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneUser(u User) User {
	u.Hash = append([]byte(nil), u.Hash...)
	return u
}
