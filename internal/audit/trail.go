package audit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"MiniCatalog/internal/apperr"
)

// Trail is the append-only audit log. Appends are serialized so that
// timestamp order always matches append order.
type Trail struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
	last  time.Time

	log     *zap.Logger
	metrics *Metrics
}

type Option func(*Trail)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Trail) { t.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(t *Trail) { t.metrics = m }
}

func NewTrail(store Store, log *zap.Logger, opts ...Option) *Trail {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Trail{store: store, now: time.Now, log: log}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append records one action. The timestamp never goes backwards relative to
// the previous append, even if the clock does.
func (t *Trail) Append(ctx context.Context, username string, action Action, details string) (Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ts := t.now().UTC().Truncate(time.Microsecond)
	if ts.Before(t.last) {
		ts = t.last
	}

	e := Event{
		Username:  username,
		Action:    action,
		Details:   details,
		Timestamp: ts,
	}
	if err := t.store.Save(ctx, &e); err != nil {
		t.metrics.failed()
		t.log.Error("audit append failed",
			zap.String("user", username),
			zap.String("action", action.String()),
			zap.Error(err),
		)
		return Event{}, apperr.Persistence("Trail.Append", err)
	}

	t.last = ts
	t.metrics.appended(action)
	t.log.Debug("audit event recorded",
		zap.Int64("id", e.ID),
		zap.String("user", username),
		zap.String("action", action.String()),
	)
	return e, nil
}

// AllEvents returns every event, newest first.
func (t *Trail) AllEvents(ctx context.Context) ([]Event, error) {
	out, err := t.store.FindAll(ctx)
	if err != nil {
		return nil, apperr.Persistence("Trail.AllEvents", err)
	}
	return out, nil
}

// EventsForUser returns the events of one user, newest first.
func (t *Trail) EventsForUser(ctx context.Context, username string) ([]Event, error) {
	out, err := t.store.FindByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Persistence("Trail.EventsForUser", err)
	}
	return out, nil
}

func (t *Trail) Ping(ctx context.Context) error { return t.store.Ping(ctx) }

type Metrics struct {
	Appended *prometheus.CounterVec
	Failures prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Appended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_events_appended_total",
				Help: "Audit events recorded",
			},
			[]string{"action"},
		),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_append_failures_total",
			Help: "Audit appends rejected by the store",
		}),
	}

	reg.MustRegister(m.Appended, m.Failures)
	return m
}

func (m *Metrics) appended(a Action) {
	if m != nil {
		m.Appended.WithLabelValues(a.String()).Inc()
	}
}

func (m *Metrics) failed() {
	if m != nil {
		m.Failures.Inc()
	}
}
