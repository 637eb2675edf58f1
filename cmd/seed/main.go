// seed carga el directorio externo (usuarios, proveedores y productos) desde una exportación XML.
//
// Uso: go run ./cmd/seed [ruta/catalogo.xml]
// Por defecto busca catalogo.xml en el directorio actual. Las filas existentes se actualizan por id.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/stockledger-api/internal/infrastructure/postgres"
	"github.com/jhoicas/stockledger-api/pkg/config"
	"github.com/jhoicas/stockledger-api/pkg/logger"
)

const (
	upsertUser = `
		INSERT INTO users (id, name, email, role, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role, active = EXCLUDED.active`
	upsertSupplier = `
		INSERT INTO suppliers (id, name, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`
	upsertProduct = `
		INSERT INTO products (id, name, category, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, category = EXCLUDED.category, status = EXCLUDED.status, updated_at = now()`
)

func main() {
	path := "catalogo.xml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir catálogo: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	data, err := parseCatalog(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	if err := seed(ctx, pool, data); err != nil {
		log.Fatal().Err(err).Msg("sembrar catálogo")
	}
	log.Info().
		Str("file", path).
		Int("users", len(data.Users)).
		Int("suppliers", len(data.Suppliers)).
		Int("products", len(data.Products)).
		Msg("catálogo cargado")
}

// seed inserta todo en una sola transacción; si una fila falla no queda nada a medias.
func seed(ctx context.Context, pool *pgxpool.Pool, data *seedData) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("iniciar transacción: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, u := range data.Users {
		b.Queue(upsertUser, u.ID, u.Name, u.Email, u.Role, u.Active)
	}
	for _, s := range data.Suppliers {
		b.Queue(upsertSupplier, s.ID, s.Name, s.Status)
	}
	for _, p := range data.Products {
		b.Queue(upsertProduct, p.ID, p.Name, p.Category, p.Status)
	}

	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("fila %d: %w", i+1, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
