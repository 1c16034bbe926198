package db

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrator applies goose migrations from an embedded filesystem over the pgx pool.
type Migrator struct {
	pool   *Pool
	fsys   fs.FS
	dir    string
	logger *slog.Logger
}

func NewMigrator(pool *Pool, fsys fs.FS, dir string, logger *slog.Logger) (*Migrator, error) {
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return &Migrator{pool: pool, fsys: fsys, dir: dir, logger: logger}, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(m.pool.Pool)
	defer sqlDB.Close()

	if err := goose.UpContext(ctx, sqlDB, m.dir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	m.logger.Info("migrations applied", "version", version)
	return nil
}

func (m *Migrator) Down(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(m.pool.Pool)
	defer sqlDB.Close()

	if err := goose.DownContext(ctx, sqlDB, m.dir); err != nil {
		return fmt.Errorf("roll back migration: %w", err)
	}
	return nil
}

func (m *Migrator) Status(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(m.pool.Pool)
	defer sqlDB.Close()

	return goose.StatusContext(ctx, sqlDB, m.dir)
}
