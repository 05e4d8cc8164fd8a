// Package migrate 启动时执行嵌入的 SQL 迁移 (golang-migrate)
package migrate

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Migrator 迁移器
type Migrator struct {
	db          *sql.DB
	logger      *zap.Logger
	serviceName string
	table       string
}

// NewMigrator 创建迁移器, table 为版本表名, 为空时使用默认 schema_migrations
func NewMigrator(db *sql.DB, serviceName, table string, logger *zap.Logger) *Migrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{db: db, logger: logger, serviceName: serviceName, table: table}
}

func (m *Migrator) open(migrations fs.FS, path string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrations, path)
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(m.db, &postgres.Config{MigrationsTable: m.table})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}
	mg, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return mg, nil
}

// Up 执行全部未应用的迁移
func (m *Migrator) Up(migrations fs.FS, path string) error {
	return m.run(migrations, path, "up", func(mg *migrate.Migrate) error { return mg.Up() })
}

// Down 回滚一个版本
func (m *Migrator) Down(migrations fs.FS, path string) error {
	return m.run(migrations, path, "down", func(mg *migrate.Migrate) error { return mg.Steps(-1) })
}

func (m *Migrator) run(migrations fs.FS, path, direction string, step func(*migrate.Migrate) error) error {
	mg, err := m.open(migrations, path)
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := step(mg); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.Info("no migrations to apply",
				zap.String("service", m.serviceName),
				zap.String("direction", direction))
			return nil
		}
		return fmt.Errorf("migrate %s: %w", direction, err)
	}

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	m.logger.Info("migration applied",
		zap.String("service", m.serviceName),
		zap.String("direction", direction),
		zap.Uint("version", version),
		zap.Bool("dirty", dirty))
	return nil
}
