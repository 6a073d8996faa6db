package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// gooseLogger routes goose output through zap.
type gooseLogger struct {
	sugar *zap.SugaredLogger
}

func (l gooseLogger) Printf(format string, v ...interface{}) { l.sugar.Infof(format, v...) }
func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.sugar.Fatalf(format, v...) }

// Migrator applies the embedded migrations in fsys (files at its root).
type Migrator struct {
	db *sql.DB
}

// NewMigrator configures goose for postgres and the given migration set.
func NewMigrator(db *sql.DB, fsys fs.FS, logger *zap.SugaredLogger) (*Migrator, error) {
	goose.SetBaseFS(fsys)
	if logger != nil {
		goose.SetLogger(gooseLogger{sugar: logger})
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	return &Migrator{db: db}, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (m *Migrator) Down(ctx context.Context) error {
	if err := goose.DownContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func (m *Migrator) Status(ctx context.Context) error {
	if err := goose.StatusContext(ctx, m.db, "."); err != nil {
		return fmt.Errorf("migrate status: %w", err)
	}
	return nil
}
