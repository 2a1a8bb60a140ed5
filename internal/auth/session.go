package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"MiniCatalog/internal/apperr"
	"MiniCatalog/internal/audit"
	"MiniCatalog/pkg/kit"
)

const (
	stateAnonymous     = "anonymous"
	stateAuthenticated = "authenticated"

	eventLogin  = "login"
	eventLogout = "logout"
	eventExpire = "expire"

	DefaultSessionTTL = 8 * time.Hour
)

var ErrTooManyAttempts = fmt.Errorf("%w: too many failed login attempts", apperr.ErrUnauthorized)

type Auditor interface {
	Append(ctx context.Context, username string, action audit.Action, details string) (audit.Event, error)
}

// State is the identity held by one session. The zero value is anonymous.
type State struct {
	Username  string
	SessionID string
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s State) Anonymous() bool { return s.Token == "" }

type sessionContext struct{}

type Config struct {
	TTL              time.Duration
	Secret           string
	MaxLoginAttempts int
	LoginWindow      time.Duration
	BcryptCost       int
}

// Manager tracks the single authenticated identity of one session context.
// Anonymous -> login -> Authenticated -> logout|expire -> Anonymous.
// Logging in while authenticated is rejected with a state error.
type Manager struct {
	mu sync.Mutex

	users   UserStore
	audit   Auditor
	tokens  *TokenMaker
	limiter *kit.AttemptLimiter
	ttl     time.Duration
	cost    int
	log     *zap.Logger

	fsm   *statekit.Interpreter[sessionContext]
	state State
}

func NewManager(users UserStore, auditor Auditor, cfg Config, log *zap.Logger) (*Manager, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSessionTTL
	}
	if log == nil {
		log = zap.NewNop()
	}

	fsm, err := newSessionMachine()
	if err != nil {
		return nil, err
	}

	return &Manager{
		users:   users,
		audit:   auditor,
		tokens:  NewTokenMaker(cfg.Secret),
		limiter: kit.NewAttemptLimiter(cfg.MaxLoginAttempts, cfg.LoginWindow),
		ttl:     cfg.TTL,
		cost:    cfg.BcryptCost,
		log:     log,
		fsm:     fsm,
	}, nil
}

func newSessionMachine() (*statekit.Interpreter[sessionContext], error) {
	builder := statekit.NewMachine[sessionContext]("session").
		WithInitial(statekit.StateID(stateAnonymous)).
		WithContext(sessionContext{})

	builder.State(stateAnonymous).
		On(eventLogin).Target(stateAuthenticated).
		Done()

	builder.State(stateAuthenticated).
		On(eventLogout).Target(stateAnonymous).
		On(eventExpire).Target(stateAnonymous).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build session state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return interpreter, nil
}

// Register creates a user with a bcrypt-hashed password. It does not change
// the session.
func (m *Manager) Register(ctx context.Context, username, password string) error {
	const op = "Manager.Register"

	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return apperr.Validation("username is required")
	case strings.TrimSpace(password) == "":
		return apperr.Validation("password is required")
	case len(password) < minPasswordLen:
		return apperr.Validation("password must be at least %d characters", minPasswordLen)
	case len(password) > maxPasswordLen:
		return apperr.Validation("password must be at most %d bytes", maxPasswordLen)
	}

	hash, err := HashPassword(password, m.cost)
	if err != nil {
		return fmt.Errorf("%s: hash password: %w", op, err)
	}

	u := User{Username: username, Hash: hash}
	if err := m.users.Save(ctx, &u); err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			return apperr.Validation("username %q is already taken", username)
		}
		m.log.Error("save user failed", zap.String("user", username), zap.Error(err))
		return apperr.Persistence(op, err)
	}

	m.log.Info("user registered", zap.String("user", username), zap.Int64("id", u.ID))
	return m.record(ctx, username, audit.Register, fmt.Sprintf("user %s registered", username))
}

// Login authenticates the session. Wrong credentials return false with no
// error and no audit event.
func (m *Manager) Login(ctx context.Context, username, password string) (bool, error) {
	const op = "Manager.Login"

	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(ctx)
	if !m.state.Anonymous() {
		return false, apperr.State("user %s is already logged in, logout first", m.state.Username)
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, apperr.Validation("username and password are required")
	}
	if !m.limiter.Allow(username) {
		m.log.Warn("login throttled", zap.String("user", username))
		return false, ErrTooManyAttempts
	}

	u, found, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		return false, apperr.Persistence(op, err)
	}
	if !found {
		m.limiter.Fail(username)
		m.log.Warn("login failed: unknown user", zap.String("user", username))
		return false, nil
	}

	ok, err := CheckPassword(u.Hash, password)
	if err != nil {
		return false, fmt.Errorf("%s: check password: %w", op, err)
	}
	if !ok {
		m.limiter.Fail(username)
		m.log.Warn("login failed: incorrect password", zap.String("user", username))
		return false, nil
	}

	sid := uuid.NewString()
	token, exp, err := m.tokens.New(sid, username, m.ttl)
	if err != nil {
		return false, fmt.Errorf("%s: issue token: %w", op, err)
	}

	u.Active = true
	if err := m.users.Update(ctx, u); err != nil {
		return false, apperr.Persistence(op, err)
	}

	if err := m.transition(eventLogin); err != nil {
		return false, err
	}
	m.state = State{
		Username:  username,
		SessionID: sid,
		Token:     token,
		IssuedAt:  m.tokens.now(),
		ExpiresAt: exp,
	}
	m.limiter.Reset(username)

	m.log.Info("user logged in", zap.String("user", username), zap.String("session_id", sid))
	return true, m.record(ctx, username, audit.Login, fmt.Sprintf("user %s logged in", username))
}

func (m *Manager) Logout(ctx context.Context) error {
	const op = "Manager.Logout"

	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(ctx)
	if m.state.Anonymous() {
		return apperr.State("no user is logged in")
	}

	username := m.state.Username
	if err := m.setActive(ctx, username, false); err != nil {
		return apperr.Persistence(op, err)
	}

	if err := m.transition(eventLogout); err != nil {
		return err
	}
	m.state = State{}

	m.log.Info("user logged out", zap.String("user", username))
	return m.record(ctx, username, audit.Logout, fmt.Sprintf("user %s logged out", username))
}

func (m *Manager) IsAuthenticated() bool {
	_, ok := m.CurrentUser()
	return ok
}

// CurrentUser returns the logged in username. An expired session reads as
// anonymous.
func (m *Manager) CurrentUser() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Anonymous() {
		return "", false
	}
	claims, err := m.tokens.Parse(m.state.Token)
	if err != nil {
		return "", false
	}
	return claims.Username, true
}

// State returns a copy of the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// expireLocked drops a session whose token no longer verifies. No audit event
// is written for an expiry.
func (m *Manager) expireLocked(ctx context.Context) {
	if m.state.Anonymous() {
		return
	}
	if _, err := m.tokens.Parse(m.state.Token); err == nil {
		return
	}

	username := m.state.Username
	if err := m.setActive(ctx, username, false); err != nil {
		m.log.Warn("mark expired user inactive failed", zap.String("user", username), zap.Error(err))
	}
	if err := m.transition(eventExpire); err != nil {
		m.log.Error("expire session", zap.Error(err))
	}
	m.state = State{}
	m.log.Info("session expired", zap.String("user", username))
}

func (m *Manager) setActive(ctx context.Context, username string, active bool) error {
	u, found, err := m.users.FindByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !found {
		return ErrUserNotFound
	}
	u.Active = active
	return m.users.Update(ctx, u)
}

func (m *Manager) transition(event string) error {
	before := m.current()
	m.fsm.Send(statekit.Event{Type: statekit.EventType(event)})
	if m.current() == before {
		return apperr.State("%s is not allowed while %s", event, before)
	}
	return nil
}

func (m *Manager) current() string {
	return string(m.fsm.State().Value)
}

func (m *Manager) record(ctx context.Context, user string, action audit.Action, details string) error {
	if _, err := m.audit.Append(ctx, user, action, details); err != nil {
		m.log.Error("session change committed but audit append failed",
			zap.String("action", action.String()),
			zap.String("user", user),
			zap.Error(err),
		)
		return &apperr.UnauditedError{Action: action.String(), Err: err}
	}
	return nil
}
