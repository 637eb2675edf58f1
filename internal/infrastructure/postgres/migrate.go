package postgres

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrator aplica el esquema embebido con golang-migrate sobre el pool pgx.
type Migrator struct {
	m   *migrate.Migrate
	log zerolog.Logger
}

// NewMigrator abre un *sql.DB sobre el pool (stdlib) y prepara la fuente iofs embebida.
func NewMigrator(pool *pgxpool.Pool, log zerolog.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("fuente de migraciones: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return nil, fmt.Errorf("driver de migraciones: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return nil, fmt.Errorf("crear migrador: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// Up aplica las migraciones pendientes; sin cambios no es error.
func (mg *Migrator) Up() error {
	err := mg.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		mg.log.Info().Msg("migraciones: sin cambios")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migración up: %w", err)
	}
	return mg.logVersion()
}

// Down revierte todas las migraciones.
func (mg *Migrator) Down() error {
	err := mg.m.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		mg.log.Info().Msg("migraciones: nada que revertir")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migración down: %w", err)
	}
	mg.log.Info().Msg("migraciones revertidas")
	return nil
}

// Steps aplica n migraciones (positivo sube, negativo baja).
func (mg *Migrator) Steps(n int) error {
	err := mg.m.Steps(n)
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("migración steps %d: %w", n, err)
	}
	return mg.logVersion()
}

// Version versión actual y si quedó sucia; 0 sin migraciones aplicadas.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close libera la fuente y la conexión del driver (el pool sigue abierto).
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (mg *Migrator) logVersion() error {
	v, dirty, err := mg.Version()
	if err != nil {
		return fmt.Errorf("versión de migración: %w", err)
	}
	mg.log.Info().Uint("version", v).Bool("dirty", dirty).Msg("migraciones aplicadas")
	return nil
}
