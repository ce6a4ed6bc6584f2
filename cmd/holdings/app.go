package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mtlprog/holdings/internal/config"
	"github.com/mtlprog/holdings/internal/database"
	"github.com/mtlprog/holdings/internal/external"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/search"
	"github.com/mtlprog/holdings/internal/session"
	"github.com/mtlprog/holdings/internal/state"
)

// app holds the wiring shared by every command.
type app struct {
	cfg  config.Config
	pool *pgxpool.Pool
	sess *session.Session
}

// openApp connects the state store and loads the session.
// PostgreSQL is used when DATABASE_URL is set, otherwise state files under STATE_DIR.
func openApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	a := &app{cfg: cfg}

	var store state.Store
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.pool = pool

		migrationsSub, err := fs.Sub(migrationsFS, "migrations")
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating migrations sub-fs: %w", err)
		}
		if err := database.RunMigrations(ctx, pool, migrationsSub); err != nil {
			a.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		store = state.NewPgStore(pool)
	} else {
		fileStore, err := state.NewFileStore(cfg.StateDir)
		if err != nil {
			return nil, err
		}
		slog.Info("using file state store", "dir", cfg.StateDir)
		store = fileStore
	}

	clientOpts := []external.ClientOption{external.WithTimeout(cfg.SearchTimeout)}
	coingecko := external.NewCoinGeckoClient(cfg.CoinGeckoURL, cfg.CoinGeckoDelay, cfg.CoinGeckoRetryMax,
		external.WithRateLimit(cfg.CoinGeckoRateLimit))
	clients := search.Clients{
		CoinGecko:   coingecko,
		DexScreener: external.NewDexScreenerClient(cfg.DexScreenerURL, clientOpts...),
		CoinPaprika: external.NewCoinPaprikaClient(cfg.CoinPaprikaURL, clientOpts...),
		CoinCap:     external.NewCoinCapClient(cfg.CoinCapURL, clientOpts...),
		Jupiter:     external.NewJupiterClient(cfg.JupiterURL),
	}

	sess, err := session.New(ctx, store, coingecko,
		session.WithResolverOptions(
			price.WithLocation(cfg.Location()),
			price.WithConcurrency(cfg.PriceConcurrency),
			price.WithBatchSize(cfg.BatchSize),
		),
		session.WithSearch(search.NewChain(cfg.SearchTimeout, search.DefaultStrategies(clients, store)...)),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading session: %w", err)
	}
	a.sess = sess
	return a, nil
}

// Close releases the database pool, if any.
func (a *app) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

// withApp opens the app for the duration of fn.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
