package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/position"
	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
	"github.com/iota-uz/orgchart/modules/orgchart/infrastructure/persistence"
	"github.com/iota-uz/orgchart/modules/orgchart/services"
	"github.com/iota-uz/orgchart/pkg/composables"
	"github.com/iota-uz/orgchart/pkg/configuration"
)

// openRepository connects the configured backend. The returned func releases it.
func openRepository(ctx context.Context, conf *configuration.Configuration) (roster.Repository, func(), error) {
	switch conf.StoreBackend {
	case configuration.StoreMemory:
		return persistence.NewMemoryRepository(), func() {}, nil
	case configuration.StoreSQLite:
		db, err := persistence.OpenSQLite(ctx, conf.SQLitePath)
		if err != nil {
			return nil, nil, withCode(exitDB, fmt.Errorf("open sqlite %s: %w", conf.SQLitePath, err))
		}
		return persistence.NewSQLiteRepository(db), func() { _ = db.Close() }, nil
	case configuration.StorePostgres:
		pool, err := persistence.OpenPostgres(ctx, conf.Database.Opts)
		if err != nil {
			return nil, nil, withCode(exitDB, fmt.Errorf("connect postgres: %w", err))
		}
		return persistence.NewPgRepository(pool), pool.Close, nil
	}
	return nil, nil, withCode(exitUsage, fmt.Errorf("unsupported store backend %q", conf.StoreBackend))
}

func sessionOptions(conf *configuration.Configuration) ([]services.SessionOption, error) {
	opts := []services.SessionOption{services.WithRootKeyword(conf.RootKeyword)}
	if conf.LevelCatalogPath != "" {
		catalog, err := position.LoadCatalog(conf.LevelCatalogPath)
		if err != nil {
			return nil, withCode(exitUsage, fmt.Errorf("load level catalog: %w", err))
		}
		opts = append(opts, services.WithLevelCatalog(catalog))
	}
	return opts, nil
}

// commandContext carries a logger tagged with the command name.
func commandContext(ctx context.Context, conf *configuration.Configuration, command string) context.Context {
	logger := conf.Logger()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return composables.WithLogger(ctx, logger.WithField("command", command))
}

// openSession rebuilds the editing session from storage.
func openSession(ctx context.Context, conf *configuration.Configuration) (*services.Session, func(), error) {
	opts, err := sessionOptions(conf)
	if err != nil {
		return nil, nil, err
	}
	repo, closeRepo, err := openRepository(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	session, err := services.LoadSession(ctx, repo, opts...)
	if err != nil {
		closeRepo()
		return nil, nil, withCode(exitDB, fmt.Errorf("load session: %w", err))
	}
	return session, closeRepo, nil
}
