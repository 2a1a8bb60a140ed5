package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"MiniCatalog/internal/audit"
	"MiniCatalog/internal/auth"
	"MiniCatalog/internal/catalog"
	"MiniCatalog/internal/config"
	"MiniCatalog/internal/ops"
	"MiniCatalog/internal/shell"
	"MiniCatalog/pkg/kit"
)

const service = "catalog"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Product catalog with user sessions and an audit trail",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runShell,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Start the interactive catalog shell (default)",
			Args:  cobra.NoArgs,
			RunE:  runShell,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the database schema migrations and exit",
			Args:  cobra.NoArgs,
			RunE:  runMigrate,
		},
	)
	return root
}

func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := kit.NewLogger(service, cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log, nil
}

func runShell(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	trail := audit.NewTrail(st.events, log.Named("audit"), audit.WithMetrics(audit.NewMetrics(reg)))

	session, err := auth.NewManager(st.users, trail, auth.Config{
		TTL:              cfg.SessionTTL,
		Secret:           cfg.SessionSecret,
		MaxLoginAttempts: cfg.LoginMaxAttempts,
		LoginWindow:      cfg.LoginWindow,
	}, log.Named("session"))
	if err != nil {
		return err
	}

	cache := catalog.NewCache(cfg.CacheCapacity, catalog.NewCacheMetrics(reg))
	svc := catalog.NewService(st.products, cache, trail, session, log.Named("catalog"))

	sh := shell.New(shell.Deps{
		Session: session,
		Catalog: svc,
		Audit:   trail,
		Log:     log.Named("shell"),
	}, cmd.OutOrStdout())

	g, gctx := errgroup.WithContext(ctx)
	shellCtx, shellDone := context.WithCancel(gctx)

	if cfg.OpsAddr != "" {
		h := ops.NewHandler(&ops.Server{
			Log: log,
			Checks: []ops.Check{
				{Name: "products", Target: st.products},
				{Name: "users", Target: st.users},
				{Name: "audit", Target: trail},
			},
		}, ops.HTTPDeps{
			Log:            log.Named("http"),
			Service:        service,
			Registry:       reg,
			MetricsEnabled: true,
			MetricsToken:   cfg.MetricsToken,
		})
		g.Go(func() error {
			if err := kit.RunHTTPServer(shellCtx, cfg.OpsAddr, h, log); err != nil {
				return fmt.Errorf("ops server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer shellDone()
		return sh.Run(shellCtx, cmd.InOrStdin())
	})

	err = g.Wait()
	shellDone()

	if _, active := session.CurrentUser(); active {
		// Leaving the shell ends the session like an explicit logout.
		if lerr := session.Logout(context.WithoutCancel(ctx)); lerr != nil {
			log.Warn("logout on exit failed", zap.Error(lerr))
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
