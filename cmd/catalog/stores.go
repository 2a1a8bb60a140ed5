package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"MiniCatalog/internal/audit"
	"MiniCatalog/internal/auth"
	"MiniCatalog/internal/catalog"
	"MiniCatalog/internal/config"
	"MiniCatalog/internal/storage"
)

type stores struct {
	products catalog.Store
	users    auth.UserStore
	events   audit.Store
	db       *sql.DB
}

func (s stores) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openStores builds the configured storage backend. The postgres backend is
// migrated to the latest schema before use.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	if cfg.Store == config.StoreMemory {
		log.Info("using in-memory storage, data is lost on exit")
		return stores{
			products: catalog.NewMemStore(),
			users:    auth.NewMemStore(),
			events:   audit.NewMemStore(),
		}, nil
	}

	if err := storage.Migrate(cfg.DatabaseURL, log); err != nil {
		return stores{}, err
	}
	db, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	log.Info("using postgres storage")
	return stores{
		products: catalog.NewPostgresStore(db, cfg.QueryTimeout),
		users:    auth.NewPostgresStore(db, cfg.QueryTimeout),
		events:   audit.NewPostgresStore(db, cfg.QueryTimeout),
		db:       db,
	}, nil
}
