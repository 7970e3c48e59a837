package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/engine"
	"github.com/wonny/tailgame/internal/external/eastmoney"
	"github.com/wonny/tailgame/internal/external/sina"
	"github.com/wonny/tailgame/internal/external/tencent"
	"github.com/wonny/tailgame/internal/external/tushare"
	"github.com/wonny/tailgame/internal/market"
	"github.com/wonny/tailgame/internal/picks"
	"github.com/wonny/tailgame/internal/sector"
	"github.com/wonny/tailgame/internal/selection"
	"github.com/wonny/tailgame/internal/session"
	"github.com/wonny/tailgame/internal/strategyconfig"
	"github.com/wonny/tailgame/pkg/config"
	"github.com/wonny/tailgame/pkg/database"
	"github.com/wonny/tailgame/pkg/httputil"
	"github.com/wonny/tailgame/pkg/logger"
	"github.com/wonny/tailgame/pkg/redis"
)

// cachePrefix namespaces every redis key of this service
const cachePrefix = "tailgame"

// loadConfig reads the environment and builds the logger. Interactive
// commands log to the console and stay quiet unless --verbose.
func loadConfig(interactive bool) (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if strategyFile != "" {
		cfg.StrategyFile = strategyFile
	}
	if interactive {
		cfg.LogFormat = "console"
		cfg.LogLevel = "warn"
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, logger.New(cfg), nil
}

// app holds everything a command wires together
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	strategy *strategyconfig.Config
	decision *strategyconfig.DecisionSnapshot

	redis    *redis.Client
	db       *database.DB
	calendar *calendar.Calendar
	clock    *calendar.SwitchClock
	codes    *market.CodeCache
	sources  []market.Source
	provider *market.Provider
	store    picks.Store
	engine   *engine.Engine
}

// newApp wires the engine. persist=false keeps picks in memory even when
// DATABASE_URL is set.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, persist bool) (*app, error) {
	strategy, err := strategyconfig.LoadOrDefault(cfg.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("load strategy: %w", err)
	}
	decision, err := strategyconfig.NewDecisionSnapshot(strategy, cfg.StrategyFile)
	if err != nil {
		return nil, fmt.Errorf("hash strategy: %w", err)
	}
	for _, w := range strategyconfig.Warn(strategy) {
		log.WithField("code", w.Code).Warn(w.Message)
	}

	a := &app{cfg: cfg, log: log, strategy: strategy, decision: decision}

	a.redis, err = redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without shared cache")
		a.redis = redis.Disabled()
	}

	a.store = picks.NewMemoryStore()
	if persist && cfg.Database.Enabled() {
		a.db, err = database.New(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		repo := picks.NewRepository(a.db.Pool)
		if err := repo.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.store = repo
		log.Info("Picks persisted to PostgreSQL")
	}

	a.calendar = calendar.New(cfg.Location(), strategy.Calendar.Holidays)
	a.clock = calendar.NewSwitchClock(calendar.NewSystemClock(cfg.Location()))

	cache := redis.NewCache(a.redis, cachePrefix)
	a.sources, a.codes, err = buildSources(cfg, log, a.redis, cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.provider = market.NewProvider(a.sources, a.calendar, cfg.Poll.CacheTTL, cache, a.codes, log)

	ranker := selection.NewRanker(strategy.FactorWeights(), *strategy.Risk, log)
	events := session.NewEventLog(session.DefaultLogSize)
	a.engine = engine.New(engine.Deps{
		Clock:    a.clock,
		Calendar: a.calendar,
		Provider: a.provider,
		Screener: selection.NewScreener(*strategy.Filters, log),
		Ranker:   ranker,
		Analyzer: sector.NewAnalyzer(strategy.Sectors.Top, log),
		Session:  session.New(strategy.SessionWindows(), events, log),
		Store:    a.store,
	}, engine.Options{
		TopK:         strategy.Ranking.TopK,
		MaxPerSector: strategy.Ranking.MaxPerSector,
		ConfigHash:   decision.ConfigHash,
	}, log)

	return a, nil
}

// buildSources creates the quote sources in SOURCE_ORDER
func buildSources(cfg *config.Config, log *logger.Logger, rc *redis.Client, cache *redis.Cache) ([]market.Source, *market.CodeCache, error) {
	hc := httputil.NewWithTimeout(cfg, log, cfg.Sources.HTTPTimeout)
	limiter := redis.NewRateLimiter(rc, cachePrefix)

	em := eastmoney.NewClient(hc, log, cfg.Sources.EastmoneyBaseURL).WithRateLimiter(limiter)
	codes := market.NewCodeCache(em, redis.TTLCodeList, cache, log)

	var sources []market.Source
	for _, name := range cfg.Sources.Order {
		ds, ok := contracts.ParseDataSource(name)
		if !ok {
			return nil, nil, fmt.Errorf("unknown source %q in SOURCE_ORDER", name)
		}
		switch ds {
		case contracts.SourceTushare:
			if cfg.Sources.TushareToken == "" {
				log.Warn("TUSHARE_TOKEN is empty, skipping tushare")
				continue
			}
			sources = append(sources, tushare.NewClient(hc, log, cfg.Sources.TushareBaseURL, cfg.Sources.TushareToken).WithRateLimiter(limiter))
		case contracts.SourceEastmoney:
			sources = append(sources, em)
		case contracts.SourceSina:
			sources = append(sources, sina.NewClient(hc, log, cfg.Sources.SinaBaseURL, codes, cfg.Sources.SinaBatchSize, cfg.Sources.SinaBatchRate).WithRateLimiter(limiter))
		case contracts.SourceTencent:
			sources = append(sources, tencent.NewClient(hc, log, cfg.Sources.TencentBaseURL, codes, cfg.Sources.TencentBatchSize).WithRateLimiter(limiter))
		}
	}
	if len(sources) == 0 {
		return nil, nil, errors.New("no usable quote source configured")
	}
	return sources, codes, nil
}

// Close releases the database and redis connections
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}
