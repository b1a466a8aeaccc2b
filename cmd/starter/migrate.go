package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"modbot/internal/bootstrap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the mysql store tables if they do not exist",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != "mysql" {
		return errors.New("migrate needs store.driver mysql")
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	st, err := bootstrap.OpenStore(ctx, cfg.Store, true, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	return printResult(cmd, map[string]any{"ok": true}, "store migrated")
}
