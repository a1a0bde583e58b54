package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/database"
	"github.com/zatekoja/fieldservice-locator/internal/adapters/search"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
	"github.com/zatekoja/fieldservice-locator/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger("fieldservice-seed", cfg.Log.Env, cfg.Log.Level)

	file := flag.String("file", cfg.Roster.File, "roster JSON file to load")
	skipIndex := flag.Bool("skip-index", false, "do not index the roster into Typesense")
	flag.Parse()

	if *file == "" {
		log.Fatal().Msg("no roster file: pass -file or set ROSTER_FILE")
	}

	static, err := database.LoadStaticProviderRepository(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load roster")
	}

	ctx := context.Background()
	roster, err := static.List(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read roster")
	}

	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to DB")
	}
	defer pgClient.Close()

	adapter := database.NewProviderAdapter(pgClient)
	if err := adapter.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create providers table")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, truncating providers before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE providers`); err != nil {
			log.Fatal().Err(err).Msg("failed to reset providers")
		}
	}

	if err := adapter.Upsert(ctx, roster); err != nil {
		log.Fatal().Err(err).Msg("failed to upsert providers")
	}
	log.Info().Int("providers", len(roster)).Msg("seeded providers")

	if *skipIndex || !cfg.Typesense.Enabled {
		return
	}

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		log.Warn().Err(err).Msg("Typesense unavailable, skipping index")
		return
	}
	if err := tsClient.InitSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to init Typesense schema")
	}
	if err := search.NewTypesenseAdapter(tsClient).Index(ctx, roster); err != nil {
		log.Fatal().Err(err).Msg("failed to index providers")
	}
	log.Info().Int("providers", len(roster)).Msg("indexed providers")
}
