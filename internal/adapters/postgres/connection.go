// Package postgres implements the relational half of the Persistence
// Adapter (C3): one repository per entity, each split into a row model
// (ToEntity/FromEntity) and a squirrel+pgx repository, exactly mirroring
// the teacher's organization.go/organization.postgresql.go split. A single
// Store ties the repositories together behind persistence.TxRunner so the
// orchestrator (C3's other half) can apply a normalize.Plan atomically.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/access-control/acs-core/internal/telemetry"
)

// Connection is a hub which deals with Postgres primary/replica
// connections, grounded on the teacher's mpostgres.PostgresConnection.
type Connection struct {
	PrimaryDSN     string
	ReplicaDSN     string
	DBName         string
	MigrationsPath string
	Logger         telemetry.Logger

	db        *dbresolver.DB
	Connected bool
}

// Connect opens both the primary and replica pools, runs pending
// migrations against the primary, and pings the resolver.
func (c *Connection) Connect() error {
	c.Logger.Info("connecting to primary and replica databases...")

	primary, err := sql.Open("pgx", c.PrimaryDSN)
	if err != nil {
		return fmt.Errorf("open primary: %w", err)
	}

	replica, err := sql.Open("pgx", c.ReplicaDSN)
	if err != nil {
		return fmt.Errorf("open replica: %w", err)
	}

	resolved := dbresolver.New(
		dbresolver.WithPrimaryDBs(primary),
		dbresolver.WithReplicaDBs(replica),
		dbresolver.WithLoadBalancer(dbresolver.RoundRobinLB))

	if c.MigrationsPath != "" {
		if err := c.migrate(primary); err != nil {
			return err
		}
	}

	if err := resolved.Ping(); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	c.db = &resolved
	c.Connected = true

	c.Logger.Info("connected to postgres")

	return nil
}

func (c *Connection) migrate(primary *sql.DB) error {
	driver, err := postgres.WithInstance(primary, &postgres.Config{
		MultiStatementEnabled: true,
		DatabaseName:          c.DBName,
		SchemaName:            "public",
	})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+c.MigrationsPath, c.DBName, driver)
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up: %w", err)
	}

	return nil
}

// GetDB returns the resolver, connecting lazily if Connect has not run yet.
func (c *Connection) GetDB(ctx context.Context) (dbresolver.DB, error) {
	if c.db == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}

	return *c.db, nil
}
