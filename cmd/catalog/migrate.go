package main

import (
	"errors"

	"github.com/spf13/cobra"

	"MiniCatalog/internal/storage"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.DatabaseURL == "" {
		return errors.New("migrate: database_url is required (--database-url or CATALOG_DATABASE_URL)")
	}
	if err := storage.Migrate(cfg.DatabaseURL, log); err != nil {
		return err
	}
	cmd.Println("schema is up to date")
	return nil
}
