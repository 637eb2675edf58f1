// migrate aplica o revierte las migraciones embebidas del esquema.
//
// Uso: go run ./cmd/migrate [-log-level info] <up|down|step N|version>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jhoicas/stockledger-api/internal/infrastructure/postgres"
	"github.com/jhoicas/stockledger-api/pkg/config"
	"github.com/jhoicas/stockledger-api/pkg/logger"
)

func main() {
	var logLevel string
	flag.StringVar(&logLevel, "log-level", "", "nivel de log (debug, info, warn, error); por defecto LOG_LEVEL")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	if logLevel == "" {
		logLevel = cfg.App.LogLevel
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: logLevel})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("conexión a PostgreSQL")
	}
	defer pool.Close()

	m, err := postgres.NewMigrator(pool, log.Component("migrate"))
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar migraciones")
	}
	defer m.Close()

	switch command {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "step":
		if len(args) < 2 {
			log.Fatal().Msg("falta el número de pasos: migrate step <n>")
		}
		n, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			log.Fatal().Str("value", args[1]).Msg("número de pasos inválido")
		}
		err = m.Steps(n)
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil {
			log.Fatal().Err(verr).Msg("consultar versión")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("versión del esquema")
		return
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("migración fallida")
	}
	log.Info().Str("command", command).Msg("migración completada")
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Uso: migrate [flags] <comando>

Comandos:
  up        aplica todas las migraciones pendientes
  down      revierte todas las migraciones
  step N    aplica (N>0) o revierte (N<0) N migraciones
  version   muestra la versión actual del esquema`)
}
