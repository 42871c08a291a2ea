// Package migrate applies the ClickHouse schema for the report table.
package migrate

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse" // ClickHouse driver.
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/perfhud/internal/export"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "perfhud_schema_migrations"

//go:embed sql/*.sql
var migrations embed.FS

// Migrator manages ClickHouse schema migrations.
type Migrator interface {
	// Up applies all pending migrations.
	Up(ctx context.Context) error
	// Down rolls back the last migration.
	Down(ctx context.Context) error
	// Status returns the current migration version.
	Status(ctx context.Context) (version uint, dirty bool, err error)
}

type migrator struct {
	log logrus.FieldLogger
	dsn string
}

// New creates a Migrator for the database described by cfg.
func New(log logrus.FieldLogger, cfg export.ClickHouseConfig) (Migrator, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("clickhouse endpoint is required")
	}

	return &migrator{
		log: log.WithFields(logrus.Fields{
			"component": "migrate",
			"endpoint":  cfg.Endpoint,
			"database":  cfg.Database,
		}),
		dsn: dsn(cfg),
	}, nil
}

// dsn adds the migrate driver options to the connection string.
func dsn(cfg export.ClickHouseConfig) string {
	q := url.Values{}
	q.Set("x-multi-statement", "true")
	q.Set("x-migrations-table", MigrationsTable)
	q.Set("x-migrations-table-engine", "MergeTree")

	return cfg.DSN() + "?" + q.Encode()
}

// Versions lists the embedded migration versions in order.
func Versions() ([]uint, error) {
	entries, err := fs.ReadDir(migrations, "sql")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	seen := make(map[uint]struct{}, len(entries))
	versions := make([]uint, 0, len(entries))

	for _, e := range entries {
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("malformed migration name %q", e.Name())
		}

		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing version of %q: %w", e.Name(), err)
		}

		if _, dup := seen[uint(v)]; dup {
			continue
		}

		seen[uint(v)] = struct{}{}
		versions = append(versions, uint(v))
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	return versions, nil
}

// Up applies all pending migrations.
func (m *migrator) Up(ctx context.Context) error {
	mig, err := m.newMigrate(ctx)
	if err != nil {
		return err
	}
	defer mig.Close()

	m.log.Info("Running migrations")

	if err := mig.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, _, _ := mig.Version()
	m.log.WithField("version", version).Info("Migrations completed")

	return nil
}

// Down rolls back the last migration.
func (m *migrator) Down(ctx context.Context) error {
	mig, err := m.newMigrate(ctx)
	if err != nil {
		return err
	}
	defer mig.Close()

	m.log.Info("Rolling back last migration")

	if err := mig.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migration: %w", err)
	}

	m.log.Info("Rollback completed")

	return nil
}

// Status returns the current migration version.
func (m *migrator) Status(ctx context.Context) (uint, bool, error) {
	mig, err := m.newMigrate(ctx)
	if err != nil {
		return 0, false, err
	}
	defer mig.Close()

	version, dirty, err := mig.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("getting migration version: %w", err)
	}

	return version, dirty, nil
}

func (m *migrator) newMigrate(ctx context.Context) (*migrate.Migrate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source, err := iofs.New(migrations, "sql")
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	mig, err := migrate.NewWithSourceInstance("iofs", source, m.dsn)
	if err != nil {
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}

	mig.Log = &logger{log: m.log}

	return mig, nil
}

// logger adapts logrus to the migrate.Logger interface.
type logger struct {
	log logrus.FieldLogger
}

func (l *logger) Printf(format string, v ...any) {
	l.log.Debugf(strings.TrimSuffix(format, "\n"), v...)
}

func (l *logger) Verbose() bool {
	return false
}
