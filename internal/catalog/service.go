package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"MiniCatalog/internal/apperr"
	"MiniCatalog/internal/audit"
)

const lockStripes = 64

// Auditor records user actions.
type Auditor interface {
	Append(ctx context.Context, username string, action audit.Action, details string) (audit.Event, error)
}

// Authorizer reports the identity of the current session.
type Authorizer interface {
	CurrentUser() (string, bool)
}

// Service is the only writer of product state and the only reader callers
// should use. Writes go to the Store first and are mirrored into the Cache
// afterwards; reads go through the Cache.
//
// Per-ID striped locks make a Store write and the matching Cache update one
// step as far as readers of that ID are concerned, so a cache fill on a miss
// can never resurrect a value that a concurrent update or delete replaced.
type Service struct {
	store   Store
	cache   *Cache
	audit   Auditor
	session Authorizer
	log     *zap.Logger

	locks [lockStripes]sync.RWMutex
}

func NewService(store Store, cache *Cache, auditor Auditor, session Authorizer, log *zap.Logger) *Service {
	if cache == nil {
		cache = NewCache(DefaultCacheCapacity, nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, cache: cache, audit: auditor, session: session, log: log}
}

func (s *Service) AddProduct(ctx context.Context, actingUser string, p Product) (Product, error) {
	const op = "Service.AddProduct"

	if err := s.authorize(actingUser); err != nil {
		return Product{}, err
	}
	p = p.normalized()
	if err := p.Validate(); err != nil {
		return Product{}, err
	}
	p.ID = 0

	if err := s.store.Save(ctx, &p); err != nil {
		s.log.Error("save product failed", zap.String("name", p.Name), zap.Error(err))
		return Product{}, apperr.Persistence(op, err)
	}

	s.fillAfterSave(ctx, p.ID)

	s.log.Info("product added", zap.Int64("id", p.ID), zap.String("user", actingUser))

	details := fmt.Sprintf("added product %q (id=%d)", p.Name, p.ID)
	return p, s.record(ctx, actingUser, audit.AddProduct, details)
}

func (s *Service) UpdateProduct(ctx context.Context, actingUser string, p Product) (Product, error) {
	const op = "Service.UpdateProduct"

	if err := s.authorize(actingUser); err != nil {
		return Product{}, err
	}
	p = p.normalized()
	if err := p.Validate(); err != nil {
		return Product{}, err
	}

	mu := s.lockFor(p.ID)
	mu.Lock()
	err := s.updateLocked(ctx, p)
	mu.Unlock()

	if errors.Is(err, ErrProductNotFound) {
		return Product{}, apperr.NotFound("product %d", p.ID)
	}
	if err != nil {
		s.log.Error("update product failed", zap.Int64("id", p.ID), zap.Error(err))
		return Product{}, apperr.Persistence(op, err)
	}

	s.log.Info("product updated", zap.Int64("id", p.ID), zap.String("user", actingUser))

	details := fmt.Sprintf("updated product %q (id=%d)", p.Name, p.ID)
	return p, s.record(ctx, actingUser, audit.UpdateProduct, details)
}

func (s *Service) updateLocked(ctx context.Context, p Product) error {
	_, found, err := s.store.FindByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if !found {
		return ErrProductNotFound
	}

	if err := s.store.Update(ctx, p); err != nil {
		return err
	}
	s.cache.Put(p)
	return nil
}

// fillAfterSave caches the row a Save just created. The ID is visible to
// other callers as soon as Save commits, so an update or delete may already
// have run; the row is re-read under the stripe lock and only what the store
// holds now is cached.
func (s *Service) fillAfterSave(ctx context.Context, id int64) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	stored, found, err := s.store.FindByID(ctx, id)
	switch {
	case err != nil:
		s.log.Warn("re-read after save failed, product not cached", zap.Int64("id", id), zap.Error(err))
	case found:
		s.cache.Put(stored)
	default:
		s.cache.Invalidate(id)
	}
}

func (s *Service) DeleteProduct(ctx context.Context, actingUser string, id int64) error {
	const op = "Service.DeleteProduct"

	if err := s.authorize(actingUser); err != nil {
		return err
	}

	mu := s.lockFor(id)
	mu.Lock()
	removed, err := s.deleteLocked(ctx, id)
	mu.Unlock()

	if errors.Is(err, ErrProductNotFound) {
		return apperr.NotFound("product %d", id)
	}
	if err != nil {
		s.log.Error("delete product failed", zap.Int64("id", id), zap.Error(err))
		return apperr.Persistence(op, err)
	}

	s.log.Info("product removed", zap.Int64("id", id), zap.String("user", actingUser))

	details := fmt.Sprintf("removed product %q (id=%d)", removed.Name, id)
	return s.record(ctx, actingUser, audit.RemoveProduct, details)
}

func (s *Service) deleteLocked(ctx context.Context, id int64) (Product, error) {
	p, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if !found {
		s.cache.Invalidate(id)
		return Product{}, ErrProductNotFound
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrProductNotFound) {
			s.cache.Invalidate(id)
		}
		return Product{}, err
	}
	s.cache.Invalidate(id)
	return p, nil
}

// GetProduct returns the product from the cache, falling back to the store
// and caching what it finds.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	const op = "Service.GetProduct"

	if p, ok := s.cache.Get(id); ok {
		s.log.Debug("cache hit", zap.Int64("id", id))
		return p, nil
	}
	s.log.Debug("cache miss", zap.Int64("id", id))

	mu := s.lockFor(id)
	mu.RLock()
	defer mu.RUnlock()

	p, found, err := s.store.FindByID(ctx, id)
	if err != nil {
		s.log.Error("find product failed", zap.Int64("id", id), zap.Error(err))
		return Product{}, apperr.Persistence(op, err)
	}
	if !found {
		return Product{}, apperr.NotFound("product %d", id)
	}

	s.cache.Put(p)
	return p, nil
}

// ListAll reads the whole catalog from the store, ordered by ID.
func (s *Service) ListAll(ctx context.Context) ([]Product, error) {
	out, err := s.store.FindAll(ctx)
	if err != nil {
		s.log.Error("list products failed", zap.Error(err))
		return nil, apperr.Persistence("Service.ListAll", err)
	}
	return out, nil
}

func (s *Service) FindByCategory(ctx context.Context, actingUser, category string) ([]Product, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, apperr.Validation("category is required")
	}

	return s.filter(ctx, actingUser, "Service.FindByCategory",
		audit.FilterByCategory,
		fmt.Sprintf("filtered products by category %q", category),
		func(ctx context.Context) ([]Product, error) { return s.store.FindByCategory(ctx, category) },
	)
}

func (s *Service) FindByBrand(ctx context.Context, actingUser, brand string) ([]Product, error) {
	brand = strings.TrimSpace(brand)
	if brand == "" {
		return nil, apperr.Validation("brand is required")
	}

	return s.filter(ctx, actingUser, "Service.FindByBrand",
		audit.FilterByBrand,
		fmt.Sprintf("filtered products by brand %q", brand),
		func(ctx context.Context) ([]Product, error) { return s.store.FindByBrand(ctx, brand) },
	)
}

// FindByPriceRange returns products with min <= price <= max.
func (s *Service) FindByPriceRange(ctx context.Context, actingUser string, min, max decimal.Decimal) ([]Product, error) {
	switch {
	case min.IsNegative() || max.IsNegative():
		return nil, apperr.Validation("price bounds must not be negative")
	case min.GreaterThan(max):
		return nil, apperr.Validation("min price %s is greater than max price %s", min.String(), max.String())
	}

	return s.filter(ctx, actingUser, "Service.FindByPriceRange",
		audit.FilterByPriceRange,
		fmt.Sprintf("filtered products by price from %s to %s", min.String(), max.String()),
		func(ctx context.Context) ([]Product, error) { return s.store.FindByPriceRange(ctx, min, max) },
	)
}

func (s *Service) filter(
	ctx context.Context,
	actingUser, op string,
	action audit.Action,
	details string,
	find func(ctx context.Context) ([]Product, error),
) ([]Product, error) {
	if err := s.authorize(actingUser); err != nil {
		return nil, err
	}

	out, err := find(ctx)
	if err != nil {
		s.log.Error("filter products failed", zap.String("action", action.String()), zap.Error(err))
		return nil, apperr.Persistence(op, err)
	}

	if _, err := s.audit.Append(ctx, actingUser, action, details); err != nil {
		s.log.Error("audit append failed", zap.String("action", action.String()), zap.Error(err))
		return nil, apperr.Persistence(op, err)
	}
	return out, nil
}

func (s *Service) authorize(actingUser string) error {
	current, ok := s.session.CurrentUser()
	if !ok {
		return apperr.Unauthorized("login required")
	}
	if actingUser != current {
		return apperr.Unauthorized("acting user %q is not the logged in user", actingUser)
	}
	return nil
}

// record appends the audit event for a committed change. A failure here does
// not undo the change; it is reported as an UnauditedError.
func (s *Service) record(ctx context.Context, user string, action audit.Action, details string) error {
	if _, err := s.audit.Append(ctx, user, action, details); err != nil {
		s.log.Error("change committed but audit append failed",
			zap.String("action", action.String()),
			zap.String("user", user),
			zap.Error(err),
		)
		return &apperr.UnauditedError{Action: action.String(), Err: err}
	}
	return nil
}

func (s *Service) lockFor(id int64) *sync.RWMutex {
	i := id % lockStripes
	if i < 0 {
		i = -i
	}
	return &s.locks[i]
}
