package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MiniCatalog/internal/apperr"
	"MiniCatalog/internal/audit"
)

type fixedSession struct{ user string }

func (s fixedSession) CurrentUser() (string, bool) { return s.user, s.user != "" }

type brokenAuditor struct{ err error }

func (a brokenAuditor) Append(context.Context, string, audit.Action, string) (audit.Event, error) {
	return audit.Event{}, a.err
}

// countingStore counts FindByID calls and can delay them to widen race windows.
type countingStore struct {
	*MemStore
	finds atomic.Int64
	delay time.Duration
}

func (s *countingStore) FindByID(ctx context.Context, id int64) (Product, bool, error) {
	s.finds.Add(1)
	p, ok, err := s.MemStore.FindByID(ctx, id)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return p, ok, err
}

type failingStore struct {
	*MemStore
	err error
}

func (s *failingStore) Update(context.Context, Product) error { return s.err }

func (s *failingStore) FindByCategory(context.Context, string) ([]Product, error) {
	return nil, s.err
}

// hookedStore runs afterSave once a Save has committed, before the caller
// continues.
type hookedStore struct {
	*MemStore
	afterSave func(id int64)
}

func (s *hookedStore) Save(ctx context.Context, p *Product) error {
	if err := s.MemStore.Save(ctx, p); err != nil {
		return err
	}
	if s.afterSave != nil {
		s.afterSave(p.ID)
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func chair() Product {
	return Product{
		Name:        "Chair",
		Category:    "Furniture",
		Brand:       "Acme",
		Price:       dec("49.99"),
		Description: "x",
	}
}

type fixture struct {
	svc   *Service
	store *countingStore
	cache *Cache
	trail *audit.Trail
}

func newFixture(t *testing.T, user string, capacity int) fixture {
	t.Helper()

	store := &countingStore{MemStore: NewMemStore()}
	cache := NewCache(capacity, nil)
	trail := audit.NewTrail(audit.NewMemStore(), zap.NewNop())
	svc := NewService(store, cache, trail, fixedSession{user: user}, zap.NewNop())

	return fixture{svc: svc, store: store, cache: cache, trail: trail}
}

func TestService_AddGetUpdateScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	added, err := f.svc.AddProduct(ctx, "alice", chair())
	require.NoError(t, err)
	require.NotZero(t, added.ID)

	got, err := f.svc.GetProduct(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added, got)
	assert.Equal(t, int64(1), f.store.finds.Load(), "add re-reads the new row once and caches it")

	upd := got
	upd.Price = dec("39.99")
	_, err = f.svc.UpdateProduct(ctx, "alice", upd)
	require.NoError(t, err)

	got, err = f.svc.GetProduct(ctx, added.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(dec("39.99")), "got %s", got.Price)

	events, err := f.trail.EventsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, audit.UpdateProduct, events[0].Action)
	assert.Equal(t, audit.AddProduct, events[1].Action)
}

func TestService_GetProductPopulatesCacheOnMiss(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	p := chair()
	require.NoError(t, f.store.Save(ctx, &p))

	_, err := f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.store.finds.Load())
	assert.Equal(t, 1, f.cache.Len())

	_, err = f.svc.GetProduct(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestService_DeleteThenGetIsNotFound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	var id int64
	for i := 0; i < 7; i++ {
		p, err := f.svc.AddProduct(ctx, "alice", chair())
		require.NoError(t, err)
		id = p.ID
	}
	require.Equal(t, int64(7), id)

	_, err := f.svc.GetProduct(ctx, 7)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteProduct(ctx, "alice", 7))

	_, err = f.svc.GetProduct(ctx, 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, cached := f.cache.Get(7)
	assert.False(t, cached)

	err = f.svc.DeleteProduct(ctx, "alice", 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	p, err := f.svc.AddProduct(ctx, "alice", chair())
	require.NoError(t, err)
	assert.Equal(t, int64(8), p.ID, "deleted identifiers are not reused")

	events, err := f.trail.EventsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, audit.AddProduct, events[0].Action)
	assert.Equal(t, audit.RemoveProduct, events[1].Action)
}

func TestService_UpdateMissingProduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	p := chair()
	p.ID = 12
	_, err := f.svc.UpdateProduct(ctx, "alice", p)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, cached := f.cache.Get(12)
	assert.False(t, cached)

	all, err := f.trail.AllEvents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	tests := []struct {
		name   string
		mutate func(*Product)
	}{
		{"blank name", func(p *Product) { p.Name = "  " }},
		{"blank category", func(p *Product) { p.Category = "" }},
		{"blank brand", func(p *Product) { p.Brand = "" }},
		{"negative price", func(p *Product) { p.Price = dec("-0.01") }},
		{"sub-cent price", func(p *Product) { p.Price = dec("1.001") }},
		{"price too large", func(p *Product) { p.Price = dec("10000000000") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := chair()
			tt.mutate(&p)
			_, err := f.svc.AddProduct(ctx, "alice", p)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	p := chair()
	p.Price = decimal.Zero
	p.Description = ""
	_, err = f.svc.AddProduct(ctx, "alice", p)
	assert.NoError(t, err, "free products without description are valid")
}

func TestService_Authorization(t *testing.T) {
	ctx := context.Background()

	anon := newFixture(t, "", 10)
	_, err := anon.svc.AddProduct(ctx, "alice", chair())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = anon.svc.UpdateProduct(ctx, "alice", chair())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.ErrorIs(t, anon.svc.DeleteProduct(ctx, "alice", 1), apperr.ErrUnauthorized)
	_, err = anon.svc.FindByBrand(ctx, "alice", "Acme")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = anon.svc.ListAll(ctx)
	assert.NoError(t, err, "listing is not gated")

	bob := newFixture(t, "bob", 10)
	_, err = bob.svc.AddProduct(ctx, "alice", chair())
	assert.ErrorIs(t, err, apperr.ErrUnauthorized, "acting user must be the logged in user")
}

func TestService_FindByPriceRangeInclusiveExact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	prices := []string{"9.99", "10.00", "15.50", "20.00", "20.01", "0.10"}
	for i, pr := range prices {
		p := chair()
		p.Name = fmt.Sprintf("item-%d", i)
		p.Price = dec(pr)
		_, err := f.svc.AddProduct(ctx, "alice", p)
		require.NoError(t, err)
	}

	got, err := f.svc.FindByPriceRange(ctx, "alice", dec("10.00"), dec("20.00"))
	require.NoError(t, err)

	var gotPrices []string
	for _, p := range got {
		gotPrices = append(gotPrices, p.Price.StringFixed(2))
	}
	assert.Equal(t, []string{"10.00", "15.50", "20.00"}, gotPrices)

	_, err = f.svc.FindByPriceRange(ctx, "alice", dec("20"), dec("10"))
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.FindByPriceRange(ctx, "alice", dec("-1"), dec("10"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	events, err := f.trail.EventsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, audit.FilterByPriceRange, events[0].Action)
	assert.Len(t, events, len(prices)+1, "rejected ranges are not audited")
}

func TestService_FiltersByCategoryAndBrand(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	for _, p := range []Product{
		{Name: "Table", Category: "Furniture", Brand: "Acme", Price: dec("120")},
		{Name: "Lamp", Category: "Lighting", Brand: "Acme", Price: dec("15")},
		{Name: "Bench", Category: "Furniture", Brand: "Globex", Price: dec("80")},
	} {
		_, err := f.svc.AddProduct(ctx, "alice", p)
		require.NoError(t, err)
	}
	f.cache.Clear()

	furniture, err := f.svc.FindByCategory(ctx, "alice", "Furniture")
	require.NoError(t, err)
	require.Len(t, furniture, 2)
	assert.Equal(t, "Bench", furniture[0].Name)
	assert.Equal(t, "Table", furniture[1].Name)

	acme, err := f.svc.FindByBrand(ctx, "alice", "Acme")
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	assert.Equal(t, 0, f.cache.Len(), "filters do not populate the cache")

	_, err = f.svc.FindByCategory(ctx, "alice", " ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	events, err := f.trail.EventsForUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, audit.FilterByBrand, events[0].Action)
	assert.Equal(t, audit.FilterByCategory, events[1].Action)
}

func TestService_ListAllReadsStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 10)

	for i := 0; i < 3; i++ {
		_, err := f.svc.AddProduct(ctx, "alice", chair())
		require.NoError(t, err)
	}

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, p := range all {
		assert.Equal(t, int64(i+1), p.ID)
	}

	events, err := f.trail.AllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 3, "listing is not audited")
}

func TestService_StoreFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection refused")

	store := &failingStore{MemStore: NewMemStore(), err: cause}
	cache := NewCache(10, nil)
	trail := audit.NewTrail(audit.NewMemStore(), zap.NewNop())
	svc := NewService(store, cache, trail, fixedSession{user: "alice"}, zap.NewNop())

	p, err := svc.AddProduct(ctx, "alice", chair())
	require.NoError(t, err)

	upd := p
	upd.Price = dec("1.00")
	_, err = svc.UpdateProduct(ctx, "alice", upd)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.ErrorIs(t, err, cause)

	got, err := svc.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(dec("49.99")), "cache must not hold an uncommitted write")

	_, err = svc.FindByCategory(ctx, "alice", "Furniture")
	assert.ErrorIs(t, err, apperr.ErrPersistence)

	events, err := trail.AllEvents(ctx)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestService_AuditFailureAfterCommit(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("audit store full")

	store := NewMemStore()
	cache := NewCache(10, nil)
	svc := NewService(store, cache, brokenAuditor{err: cause}, fixedSession{user: "alice"}, zap.NewNop())

	p, err := svc.AddProduct(ctx, "alice", chair())
	var ue *apperr.UnauditedError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "ADD_PRODUCT", ue.Action)
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	require.NotZero(t, p.ID, "the product was stored")

	_, found, _ := store.FindByID(ctx, p.ID)
	assert.True(t, found)

	err = svc.DeleteProduct(ctx, "alice", p.ID)
	assert.ErrorAs(t, err, &ue)
	_, err = svc.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "the delete stands even though it is unaudited")

	_, err = svc.FindByBrand(ctx, "alice", "Acme")
	assert.ErrorIs(t, err, apperr.ErrPersistence)
}

// Every GetProduct issued after an UpdateProduct or DeleteProduct returns must
// observe it, while readers keep missing and refilling the cache.
func TestService_NoStaleReadsUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "alice", 2)
	f.store.delay = 200 * time.Microsecond

	const products = 4
	ids := make([]int64, products)
	for i := range ids {
		p, err := f.svc.AddProduct(ctx, "alice", chair())
		require.NoError(t, err)
		ids[i] = p.ID
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 8; r++ {
		readers.Add(1)
		go func(r int) {
			defer readers.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				_, _ = f.svc.GetProduct(ctx, ids[(r+i)%products])
			}
		}(r)
	}

	var writers sync.WaitGroup
	for w, id := range ids {
		writers.Add(1)
		go func(w int, id int64) {
			defer writers.Done()
			for i := 1; i <= 40; i++ {
				p := chair()
				p.ID = id
				p.Price = decimal.NewFromInt(int64(w*1000 + i))
				_, err := f.svc.UpdateProduct(ctx, "alice", p)
				if !assert.NoError(t, err) {
					return
				}

				got, err := f.svc.GetProduct(ctx, id)
				if !assert.NoError(t, err) {
					return
				}
				assert.True(t, got.Price.Equal(p.Price), "stale read for %d: got %s want %s", id, got.Price, p.Price)
			}

			assert.NoError(t, f.svc.DeleteProduct(ctx, "alice", id))
			_, err := f.svc.GetProduct(ctx, id)
			assert.ErrorIs(t, err, apperr.ErrNotFound)
		}(w, id)
	}

	writers.Wait()
	close(stop)
	readers.Wait()

	for _, id := range ids {
		_, err := f.svc.GetProduct(ctx, id)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	}
}

func TestService_AddRacingMutationOfNewID(t *testing.T) {
	ctx := context.Background()

	newSvc := func() (*Service, *hookedStore) {
		store := &hookedStore{MemStore: NewMemStore()}
		trail := audit.NewTrail(audit.NewMemStore(), zap.NewNop())
		return NewService(store, NewCache(10, nil), trail, fixedSession{user: "alice"}, zap.NewNop()), store
	}

	t.Run("delete before cache fill", func(t *testing.T) {
		svc, store := newSvc()
		store.afterSave = func(id int64) {
			require.NoError(t, svc.DeleteProduct(ctx, "alice", id))
		}

		added, err := svc.AddProduct(ctx, "alice", chair())
		require.NoError(t, err)

		_, found, err := store.FindByID(ctx, added.ID)
		require.NoError(t, err)
		require.False(t, found)

		_, err = svc.GetProduct(ctx, added.ID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("update before cache fill", func(t *testing.T) {
		svc, store := newSvc()
		store.afterSave = func(id int64) {
			upd := chair()
			upd.ID = id
			upd.Price = dec("39.99")
			_, err := svc.UpdateProduct(ctx, "alice", upd)
			require.NoError(t, err)
		}

		added, err := svc.AddProduct(ctx, "alice", chair())
		require.NoError(t, err)

		got, err := svc.GetProduct(ctx, added.ID)
		require.NoError(t, err)
		assert.True(t, got.Price.Equal(dec("39.99")), "got %s", got.Price)
	})
}
