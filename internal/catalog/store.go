package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"MiniCatalog/internal/apperr"
)

var ErrProductNotFound = errors.New("product not found")

// MaxPrice is the largest price the NUMERIC(12,2) column can hold.
var MaxPrice = decimal.RequireFromString("9999999999.99")

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Category    string          `json:"category"`
	Brand       string          `json:"brand"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
}

// Validate checks the fields a caller must supply. The ID is not checked.
func (p Product) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return apperr.Validation("name is required")
	case strings.TrimSpace(p.Category) == "":
		return apperr.Validation("category is required")
	case strings.TrimSpace(p.Brand) == "":
		return apperr.Validation("brand is required")
	case p.Price.IsNegative():
		return apperr.Validation("price must not be negative, got %s", p.Price.String())
	case !p.Price.Equal(p.Price.Round(2)):
		return apperr.Validation("price must have at most two decimal places, got %s", p.Price.String())
	case p.Price.GreaterThan(MaxPrice):
		return apperr.Validation("price must not exceed %s", MaxPrice.StringFixed(2))
	}
	return nil
}

func (p Product) normalized() Product {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	p.Brand = strings.TrimSpace(p.Brand)
	p.Description = strings.TrimSpace(p.Description)
	return p
}

// Store is the durable product storage. Update and Delete return
// ErrProductNotFound when no record exists for the ID.
type Store interface {
	Save(ctx context.Context, p *Product) error
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id int64) error
	FindByID(ctx context.Context, id int64) (Product, bool, error)
	FindAll(ctx context.Context) ([]Product, error)
	FindByCategory(ctx context.Context, category string) ([]Product, error)
	FindByBrand(ctx context.Context, brand string) ([]Product, error)
	FindByPriceRange(ctx context.Context, min, max decimal.Decimal) ([]Product, error)
	Ping(ctx context.Context) error
}
