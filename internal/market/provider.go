package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/logger"
	"github.com/wonny/tailgame/pkg/redis"
)

var (
	// ErrAllSourcesFailed wraps the joined per-source errors of one fetch
	ErrAllSourcesFailed = errors.New("all data sources failed")
	// ErrEmptySnapshot is returned by a source that answered with no rows
	ErrEmptySnapshot = errors.New("empty snapshot")
)

// DefaultSourceTimeout bounds one source when the caller sets no deadline
const DefaultSourceTimeout = 20 * time.Second

// requiredColumns must be populated by a source for its snapshot to be used
var requiredColumns = []contracts.Column{contracts.ColChangePct, contracts.ColAmount}

// Source is one upstream snapshot API
type Source interface {
	Name() contracts.DataSource
	Fetch(ctx context.Context) (*contracts.Snapshot, error)
}

// Result is the outcome of one Provider.Fetch
type Result struct {
	Snapshot *contracts.Snapshot
	Status   contracts.SourceStatus
	Reason   string // trading-time reason when Status is non_trading
	Attempts int    // sources tried in this call
}

// EventFunc receives user-facing events such as source switches
type EventFunc func(event, details string)

// Provider fetches the market snapshot with ordered source fallback
// ⭐ SSOT: sources are only called through Provider
type Provider struct {
	sources  []Source
	calendar *calendar.Calendar
	ttl      time.Duration
	cache    *redis.Cache
	codes    *CodeCache
	logger   *logger.Logger
	onEvent  EventFunc

	sourceTimeout time.Duration

	mu         sync.Mutex
	cached     *contracts.Snapshot
	cachedDate string
}

// NewProvider creates a provider over sources in priority order. cache may be
// nil; codes may be nil when no source needs the code list.
func NewProvider(sources []Source, cal *calendar.Calendar, ttl time.Duration, cache *redis.Cache, codes *CodeCache, log *logger.Logger) *Provider {
	return &Provider{
		sources:  sources,
		calendar: cal,
		ttl:      ttl,
		cache:    cache,
		codes:    codes,
		logger:   log.Component("market"),
		onEvent:  func(string, string) {},

		sourceTimeout: DefaultSourceTimeout,
	}
}

// SetSourceTimeout caps the time given to one source, 0 = parent deadline only
func (p *Provider) SetSourceTimeout(d time.Duration) {
	p.sourceTimeout = d
}

// OnEvent installs the event callback
func (p *Provider) OnEvent(fn EventFunc) {
	if fn != nil {
		p.onEvent = fn
	}
}

// Sources returns the configured source names in order
func (p *Provider) Sources() []contracts.DataSource {
	names := make([]contracts.DataSource, len(p.sources))
	for i, s := range p.sources {
		names[i] = s.Name()
	}
	return names
}

// Fetch returns the snapshot for now:
// a fresh cached snapshot of the same trade date, else an empty snapshot
// outside trading hours, else the first source with a usable snapshot.
func (p *Provider) Fetch(ctx context.Context, now time.Time) (*Result, error) {
	date := p.calendar.TradeDate(now)

	if snap := p.fromCache(ctx, date, now); snap != nil {
		p.onEvent("数据", "使用今日缓存")
		return &Result{Snapshot: snap, Status: contracts.StatusCached}, nil
	}

	trading, reason := p.calendar.IsTradingTime(now)
	if !trading {
		p.onEvent("数据", reason+"，返回空数据")
		return &Result{
			Snapshot: &contracts.Snapshot{FetchedAt: now, Columns: contracts.NewColumnSet()},
			Status:   contracts.StatusNonTrading,
			Reason:   reason,
		}, nil
	}

	p.onEvent("数据", "开始获取实时数据")
	snap, attempts, err := p.fetchSources(ctx)
	if err != nil {
		return &Result{Status: contracts.StatusFailed, Attempts: attempts}, err
	}
	snap.FetchedAt = now

	p.store(ctx, date, snap)
	return &Result{Snapshot: snap.Clone(), Status: contracts.StatusRealData, Attempts: attempts}, nil
}

func (p *Provider) fetchSources(ctx context.Context) (*contracts.Snapshot, int, error) {
	var errs []string
	attempts := 0

	for i, src := range p.sources {
		name := src.Name()
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: not tried: %v", name, err))
			continue
		}
		attempts++
		p.onEvent("数据源", fmt.Sprintf("尝试 %s", name))

		start := time.Now()
		snap, err := p.fetchOne(ctx, src, len(p.sources)-i)
		if err == nil {
			err = usable(snap)
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				p.onEvent("数据源", fmt.Sprintf("%s 超时，切换下一个", name))
			}
			p.logger.WithError(err).WithField("source", name).Warn("Data source failed")
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		p.logger.WithFields(map[string]interface{}{
			"source":   name,
			"rows":     snap.Len(),
			"duration": time.Since(start).String(),
		}).Info("Snapshot fetched")
		p.onEvent("数据源", fmt.Sprintf("✅ %s 成功 (共 %d 条)", name, snap.Len()))
		snap.Source = name
		return snap, attempts, nil
	}

	if len(errs) == 0 {
		errs = append(errs, "no source configured")
	}
	return nil, attempts, fmt.Errorf("%w: %s", ErrAllSourcesFailed, strings.Join(errs, "; "))
}

// fetchOne runs src under its share of the remaining deadline so a hanging
// source leaves time for the ones after it
func (p *Provider) fetchOne(ctx context.Context, src Source, remaining int) (*contracts.Snapshot, error) {
	budget := p.sourceTimeout
	if deadline, ok := ctx.Deadline(); ok {
		share := time.Until(deadline) / time.Duration(remaining)
		if budget <= 0 || share < budget {
			budget = share
		}
	}
	if budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	return src.Fetch(ctx)
}

func usable(snap *contracts.Snapshot) error {
	if snap.Empty() {
		return ErrEmptySnapshot
	}
	var missing []string
	for _, col := range requiredColumns {
		if !snap.Has(col) {
			missing = append(missing, string(col))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing columns %v", missing)
	}
	return nil
}

func (p *Provider) fromCache(ctx context.Context, date string, now time.Time) *contracts.Snapshot {
	p.mu.Lock()
	if p.cached != nil && p.cachedDate == date && p.fresh(p.cached, now) {
		snap := p.cached.Clone()
		p.mu.Unlock()
		return snap
	}
	p.mu.Unlock()

	if p.cache == nil {
		return nil
	}
	var snap contracts.Snapshot
	found, err := p.cache.Get(ctx, redis.SnapshotKey(date), &snap)
	if err != nil {
		p.logger.WithError(err).Warn("Snapshot cache read failed")
		return nil
	}
	if !found || !p.fresh(&snap, now) {
		return nil
	}

	p.mu.Lock()
	p.cached = snap.Clone()
	p.cachedDate = date
	p.mu.Unlock()
	return &snap
}

// fresh treats a snapshot stamped in the future (simulated clock moved back) as stale
func (p *Provider) fresh(snap *contracts.Snapshot, now time.Time) bool {
	age := now.Sub(snap.FetchedAt)
	return age >= 0 && age < p.ttl
}

func (p *Provider) store(ctx context.Context, date string, snap *contracts.Snapshot) {
	p.mu.Lock()
	p.cached = snap.Clone()
	p.cachedDate = date
	p.mu.Unlock()

	if p.cache == nil {
		return
	}
	if err := p.cache.Set(ctx, redis.SnapshotKey(date), snap, p.ttl); err != nil {
		p.logger.WithError(err).Warn("Snapshot cache write failed")
	}
}

// Invalidate drops the cached snapshot and code list so the next Fetch hits the sources
func (p *Provider) Invalidate(ctx context.Context) {
	p.mu.Lock()
	date := p.cachedDate
	p.cached = nil
	p.cachedDate = ""
	p.mu.Unlock()

	if p.cache != nil && date != "" {
		if err := p.cache.Delete(ctx, redis.SnapshotKey(date)); err != nil {
			p.logger.WithError(err).Warn("Snapshot cache delete failed")
		}
	}
	if p.codes != nil {
		p.codes.Invalidate(ctx)
	}
	p.logger.Info("Snapshot cache invalidated")
}
