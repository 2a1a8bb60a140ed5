package audit

import (
	"context"
	"fmt"
	"time"
)

type Action int

const (
	Register Action = iota + 1
	Login
	Logout
	AddProduct
	UpdateProduct
	RemoveProduct
	FilterByCategory
	FilterByBrand
	FilterByPriceRange
)

var actionNames = map[Action]string{
	Register:           "REGISTER",
	Login:              "LOGIN",
	Logout:             "LOGOUT",
	AddProduct:         "ADD_PRODUCT",
	UpdateProduct:      "UPDATE_PRODUCT",
	RemoveProduct:      "REMOVE_PRODUCT",
	FilterByCategory:   "FILTERED_BY_CATEGORY",
	FilterByBrand:      "FILTERED_BY_BRAND",
	FilterByPriceRange: "FILTERED_BY_PRICE_RANGE",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

func ParseAction(s string) (Action, error) {
	for a, n := range actionNames {
		if n == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown audit action %q", s)
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Event is one recorded user action. Events are never modified after Save.
type Event struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) String() string {
	return fmt.Sprintf("[%s] %s - %s: %s", e.Timestamp.Format(time.RFC3339), e.Username, e.Action, e.Details)
}

// Store persists events. Save assigns Event.ID. Finds return events newest
// first, ties broken by descending ID.
type Store interface {
	Save(ctx context.Context, e *Event) error
	FindAll(ctx context.Context) ([]Event, error)
	FindByUsername(ctx context.Context, username string) ([]Event, error)
	Ping(ctx context.Context) error
}
