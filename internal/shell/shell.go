// Package shell is the interactive terminal front end of the catalog. It reads
// one command per line, dispatches it through a command table and prints the
// result. Guests can only register, log in and leave; every catalog and audit
// command needs a logged in user.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"MiniCatalog/internal/apperr"
	"MiniCatalog/internal/audit"
	"MiniCatalog/internal/catalog"
)

const prompt = "> "

type Session interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) (bool, error)
	Logout(ctx context.Context) error
	CurrentUser() (string, bool)
}

type Catalog interface {
	AddProduct(ctx context.Context, actingUser string, p catalog.Product) (catalog.Product, error)
	UpdateProduct(ctx context.Context, actingUser string, p catalog.Product) (catalog.Product, error)
	DeleteProduct(ctx context.Context, actingUser string, id int64) error
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
	ListAll(ctx context.Context) ([]catalog.Product, error)
	FindByCategory(ctx context.Context, actingUser, category string) ([]catalog.Product, error)
	FindByBrand(ctx context.Context, actingUser, brand string) ([]catalog.Product, error)
	FindByPriceRange(ctx context.Context, actingUser string, min, max decimal.Decimal) ([]catalog.Product, error)
}

type AuditLog interface {
	AllEvents(ctx context.Context) ([]audit.Event, error)
	EventsForUser(ctx context.Context, username string) ([]audit.Event, error)
}

type Deps struct {
	Session Session
	Catalog Catalog
	Audit   AuditLog
	Log     *zap.Logger
}

type handler func(ctx context.Context, s *Shell, a args) error

type command struct {
	usage string
	help  string
	guest bool // available without logging in
	user  bool // available to a logged in user
	run   handler
}

type Shell struct {
	session  Session
	catalog  Catalog
	audit    AuditLog
	log      *zap.Logger
	out      io.Writer
	commands map[string]command

	quit bool
}

func New(deps Deps, out io.Writer) *Shell {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Shell{
		session:  deps.Session,
		catalog:  deps.Catalog,
		audit:    deps.Audit,
		log:      log,
		out:      out,
		commands: commandTable(),
	}
}

// Run reads commands from in until exit, end of input or ctx cancellation.
// Lines are read on a separate goroutine; when Run returns on cancellation
// that goroutine stays blocked in Read until in yields data, an error or EOF.
// Callers that reuse Run in a long-lived process should pass a reader they
// can close, such as an io.Pipe, and close it after Run returns.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	s.printf("MiniCatalog. Type \"help\" for the list of commands.\n")
	for !s.quit {
		s.printf("%s", s.promptText())

		select {
		case <-ctx.Done():
			s.printf("\n")
			return nil
		case line, ok := <-lines:
			if !ok {
				s.printf("\n")
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			s.Exec(ctx, line)
		}
	}
	return nil
}

// Exec runs a single command line and reports whether the shell should stop.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	tokens, err := tokenize(line)
	if err != nil {
		s.printf("error: %v\n", err)
		return s.quit
	}
	if len(tokens) == 0 {
		return s.quit
	}

	name := strings.ToLower(tokens[0])
	cmd, ok := s.commands[name]
	if !ok {
		s.printf("unknown command %q, type \"help\"\n", name)
		return s.quit
	}

	_, loggedIn := s.session.CurrentUser()
	switch {
	case loggedIn && !cmd.user:
		s.printf("%s is not available while logged in, logout first\n", name)
		return s.quit
	case !loggedIn && !cmd.guest:
		s.printf("%s requires login\n", name)
		return s.quit
	}

	if err := cmd.run(ctx, s, parseArgs(tokens[1:])); err != nil {
		s.report(name, cmd, err)
	}
	return s.quit
}

func (s *Shell) promptText() string {
	if user, ok := s.session.CurrentUser(); ok {
		return user + prompt
	}
	return prompt
}

func (s *Shell) report(name string, cmd command, err error) {
	var (
		usage     *usageErr
		unaudited *apperr.UnauditedError
	)
	switch {
	case errors.As(err, &usage):
		s.printf("%s\nusage: %s\n", usage.msg, cmd.usage)
	case errors.As(err, &unaudited):
		s.printf("warning: %s succeeded but the audit trail could not be written\n", name)
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrUnauthorized),
		errors.Is(err, apperr.ErrState):
		s.printf("error: %v\n", err)
	default:
		s.log.Error("command failed", zap.String("command", name), zap.Error(err))
		s.printf("error: %s failed, storage is unavailable\n", name)
	}
}

func (s *Shell) printf(format string, v ...any) {
	_, _ = fmt.Fprintf(s.out, format, v...)
}

func (s *Shell) printHelp() {
	user, loggedIn := s.session.CurrentUser()
	if loggedIn {
		s.printf("Commands for %s:\n", user)
	} else {
		s.printf("Guest commands:\n")
	}

	names := make([]string, 0, len(s.commands))
	for name, cmd := range s.commands {
		if (loggedIn && cmd.user) || (!loggedIn && cmd.guest) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	tw := newTable(s.out)
	for _, name := range names {
		cmd := s.commands[name]
		fmt.Fprintf(tw, "  %s\t%s\n", cmd.usage, cmd.help)
	}
	_ = tw.Flush()
}
