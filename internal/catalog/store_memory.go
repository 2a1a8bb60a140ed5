package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

type MemStore struct {
	mu     sync.RWMutex
	m      map[int64]Product
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[int64]Product{}}
}

var _ Store = (*MemStore)(nil)

func (s *MemStore) Ping(ctx context.Context) error { return nil }

// Save assigns the next identifier. Identifiers are never reused, even after
// a delete.
func (s *MemStore) Save(ctx context.Context, p *Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	p.ID = s.nextID
	s.m[p.ID] = *p
	return nil
}

func (s *MemStore) Update(ctx context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[p.ID]; !ok {
		return ErrProductNotFound
	}
	s.m[p.ID] = p
	return nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return ErrProductNotFound
	}
	delete(s.m, id)
	return nil
}

func (s *MemStore) FindByID(ctx context.Context, id int64) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.m[id]
	return p, ok, nil
}

func (s *MemStore) FindAll(ctx context.Context) ([]Product, error) {
	out := s.filter(func(Product) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) FindByCategory(ctx context.Context, category string) ([]Product, error) {
	out := s.filter(func(p Product) bool { return p.Category == category })
	sortByName(out)
	return out, nil
}

func (s *MemStore) FindByBrand(ctx context.Context, brand string) ([]Product, error) {
	out := s.filter(func(p Product) bool { return p.Brand == brand })
	sortByName(out)
	return out, nil
}

func (s *MemStore) FindByPriceRange(ctx context.Context, min, max decimal.Decimal) ([]Product, error) {
	out := s.filter(func(p Product) bool {
		return p.Price.GreaterThanOrEqual(min) && p.Price.LessThanOrEqual(max)
	})
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Price.Cmp(out[j].Price); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemStore) filter(keep func(Product) bool) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func sortByName(ps []Product) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Name != ps[j].Name {
			return ps[i].Name < ps[j].Name
		}
		return ps[i].ID < ps[j].ID
	})
}
