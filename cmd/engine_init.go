package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/analysis-engine/internal/cost"
	"github.com/sells-group/analysis-engine/internal/events"
	"github.com/sells-group/analysis-engine/internal/gateway"
	"github.com/sells-group/analysis-engine/internal/pipeline"
	"github.com/sells-group/analysis-engine/internal/ratelimit"
	"github.com/sells-group/analysis-engine/internal/respcache"
	"github.com/sells-group/analysis-engine/internal/store"
	"github.com/sells-group/analysis-engine/internal/waiter"
	anthropicpkg "github.com/sells-group/analysis-engine/pkg/anthropic"
	"github.com/sells-group/analysis-engine/pkg/parallel"
)

// engineEnv holds the initialized store, shared singletons, and the pipeline
// used by the run/batch/serve commands.
type engineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Ledger   *cost.Ledger
	Bus      *events.MemoryBus
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured job store backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "analysis.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEngine sets up the store, the outbound gateway with its shared rate
// limiter, cache, and ledger, and builds the pipeline. Callers should defer
// env.Close(). The limiter, cache, and ledger are process-wide: every
// concurrent job goes through the same instances.
func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Validate("analysis"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	tariff := cost.DefaultTariff()
	if cfg.Pricing.TariffPath != "" {
		loaded, err := cost.LoadTariff(cfg.Pricing.TariffPath)
		if err != nil {
			zap.L().Warn("tariff overrides not loaded, using defaults", zap.Error(err))
		} else {
			tariff = loaded
		}
	}

	ledger := cost.NewLedger(cfg.Pricing.LedgerRecords)
	gw := gateway.New(gateway.Deps{
		Client:  parallel.NewClient(cfg.Parallel.Key, parallel.WithBaseURL(cfg.Parallel.BaseURL)),
		Limiter: ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec),
		Cache:   respcache.New(cfg.Cache.TTL()),
		Ledger:  ledger,
		Tariff:  tariff,
	})

	w := waiter.New(gw,
		waiter.WithPollInterval(cfg.Waiter.PollInterval()),
		waiter.WithBudget(cfg.Waiter.Budget()),
	)

	bus := events.NewMemoryBus()
	p := pipeline.New(cfg, st, gw, w, anthropicpkg.NewClient(cfg.Anthropic.Key), ledger, bus)

	return &engineEnv{
		Store:    st,
		Pipeline: p,
		Ledger:   ledger,
		Bus:      bus,
	}, nil
}
