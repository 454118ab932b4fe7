package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lgulliver/pdfshrink/pkg/config"
	"github.com/lgulliver/pdfshrink/pkg/migrate"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func main() {
	var (
		up     = flag.Bool("up", false, "Run pending migrations")
		down   = flag.Bool("down", false, "Roll back the last migration")
		status = flag.Bool("status", false, "List migrations and whether they are applied")
	)
	flag.Parse()

	if !*up && !*down && !*status {
		fmt.Printf("Usage: %s [-up | -down | -status]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := config.LoadFromEnv()
	cfg.Logging.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	migrator, err := migrate.Open(ctx, &cfg.Database, migrationsFS, "migrations")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migrator")
	}
	defer migrator.Close()

	switch {
	case *status:
		states, err := migrator.Status(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to read migration status")
		}
		for _, s := range states {
			mark := "pending"
			if s.Applied {
				mark = "applied"
			}
			fmt.Printf("%03d  %-30s %s\n", s.Version, s.Name, mark)
		}
	case *up:
		if err := migrator.Up(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Msg("migrations completed")
	case *down:
		if err := migrator.Down(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to roll back migration")
		}
		log.Info().Msg("rollback completed")
	}
}
