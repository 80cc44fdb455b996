package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"pickdesk/internal/boltstore"
	"pickdesk/internal/config"
	"pickdesk/internal/form"
	"pickdesk/internal/form/formdef"
	"pickdesk/internal/logging"
	"pickdesk/internal/metadata"
	"pickdesk/internal/store"
	"pickdesk/internal/workorders"
)

func main() {
	configPath := flag.String("config", "", "path to the config file (default: ./pickdesk.yaml)")
	formName := flag.String("form", workorders.FormWorkOrders, "form or table to open")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *configPath, *formName, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pickdesk:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, formName string, in io.Reader, out io.Writer) error {
	// 1. Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. Logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	// 3. Schema
	reg, err := workorders.Registry()
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	// 4. Open and migrate the store
	s, closeStore, err := openStore(ctx, cfg.Database, reg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// 5. Seed lookup tables
	n, err := workorders.Seed(ctx, s, reg)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Info("seeded pick priorities", zap.Int("rows", n))
	}

	// 6. Shared choice lists
	cache := workorders.NewChoiceCache(s, reg)
	if err := cache.RefreshAll(ctx); err != nil {
		return fmt.Errorf("load choice lists: %w", err)
	}

	// 7. Optional YAML form definitions
	var defined []*formdef.Form
	if cfg.Forms.Dir != "" {
		defined, err = formdef.LoadDir(cfg.Forms.Dir)
		if err != nil {
			return err
		}
		logger.Info("form definitions loaded", zap.String("dir", cfg.Forms.Dir), zap.Int("forms", len(defined)))
	}

	// 8. Open the form or table and hand it to the console
	con := newConsole(in, out)
	deps := workorders.Deps{
		Registry: reg,
		Store:    s,
		Prompter: con,
		Choices:  cache,
		Logger:   logger,
		Defined:  defined,
	}
	if workorders.IsTable(formName) {
		t, err := workorders.OpenTable(ctx, formName, deps)
		if err != nil {
			return err
		}
		logger.Info("table opened", zap.String("table", t.Name()), zap.Int("rows", t.Len()))
		return con.runTable(ctx, t)
	}
	c, err := workorders.Open(ctx, formName, deps)
	if err != nil {
		return err
	}
	logger.Info("form opened", zap.String("form", c.Name()))
	return con.run(ctx, c)
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, reg *metadata.Registry, logger *zap.Logger) (form.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemoryStore(reg), func() {}, nil
	case "bolt":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		s, err := boltstore.Open(cfg.DSN(), reg, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}

	s, err := store.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := store.NewMigrator(s, reg).MigrateAll(ctx); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return s, func() { s.Close() }, nil
}
