package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/techno-hippies/versed/internal/batch"
	"github.com/techno-hippies/versed/internal/catalog"
	"github.com/techno-hippies/versed/internal/config"
	"github.com/techno-hippies/versed/internal/fsrs"
	"github.com/techno-hippies/versed/internal/gitsource"
	"github.com/techno-hippies/versed/internal/store"
	"github.com/techno-hippies/versed/internal/study"
	"github.com/techno-hippies/versed/internal/web"
)

func main() {
	// Flag defaults mirror config.Default so an untouched flag never
	// clobbers a value from the config file or environment.
	def := config.Default()
	flags := pflag.NewFlagSet("versed", pflag.ExitOnError)
	configPath := flags.String("config", "versed.yaml", "Path to the YAML config file")
	flags.String("listen", def.Listen, "Listen address for the study API")
	flags.String("db", def.DB, "Path to the sqlite database (empty: in-memory store)")
	flags.String("catalog.dir", def.Catalog.Dir, "Directory of lyric sheets")
	flags.String("catalog.git", def.Catalog.Git, "Git URL of a lyric catalog to sync into catalog.dir")
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configPath, flags)
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var cards store.CardStore
	if cfg.DB != "" {
		db, err := store.OpenSQLite(cfg.DB, cfg.Engine.LineCeiling)
		if err != nil {
			slog.Error("opening card store", "path", cfg.DB, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		cards = db
		slog.Info("card store opened", "path", cfg.DB)
	} else {
		cards = store.NewMemoryStore(cfg.Engine.LineCeiling)
		slog.Info("using in-memory card store")
	}

	if cfg.Catalog.Git != "" {
		if err := gitsource.Sync(ctx, cfg.Catalog.Git, cfg.Catalog.Dir); err != nil {
			slog.Error("syncing catalog repository", "url", cfg.Catalog.Git, "error", err)
			os.Exit(1)
		}
	}
	items, err := catalog.Load(cfg.Catalog.Dir, cfg.Engine.LineCeiling)
	if err != nil {
		slog.Error("loading catalog", "dir", cfg.Catalog.Dir, "error", err)
		os.Exit(1)
	}
	slog.Info("catalog loaded", "items", len(items))

	params := fsrs.DefaultParams()
	params.Factor = cfg.Engine.Factor
	params.Decay = cfg.Engine.Decay
	params.TargetRetention = cfg.Engine.Retention
	params.MaximumInterval = cfg.Engine.MaxIntervalDays
	sched, err := fsrs.New(params)
	if err != nil {
		slog.Error("building scheduler", "error", err)
		os.Exit(1)
	}

	agg := study.NewAggregator(cards, cfg.Engine.LineCeiling)
	coord := batch.NewCoordinator(cards, batch.Limits{
		MaxBatch:    cfg.Engine.MaxBatch,
		LineCeiling: cfg.Engine.LineCeiling,
		ScoreMin:    cfg.Engine.ScoreMin,
		ScoreMax:    cfg.Engine.ScoreMax,
	}, slog.Default())

	server := web.NewServer(cards, sched, agg, coord, items, slog.Default())
	slog.Info("study API listening", "addr", cfg.Listen)
	if err := http.ListenAndServe(cfg.Listen, server); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
