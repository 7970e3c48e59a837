package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/market"
	"github.com/wonny/tailgame/internal/picks"
	"github.com/wonny/tailgame/internal/sector"
	"github.com/wonny/tailgame/internal/selection"
	"github.com/wonny/tailgame/internal/session"
	"github.com/wonny/tailgame/pkg/logger"
)

// saveTimeout bounds persistence after the fetch
const saveTimeout = 5 * time.Second

// Options are the ranking knobs of the engine
type Options struct {
	TopK         int
	MaxPerSector int
	ConfigHash   string
}

// Deps are the collaborators of the engine
type Deps struct {
	Clock    *calendar.SwitchClock
	Calendar *calendar.Calendar
	Provider *market.Provider
	Screener *selection.Screener
	Ranker   *selection.Ranker
	Analyzer *sector.Analyzer
	Session  *session.Session
	Store    picks.Store
}

// cycleView is what one cycle computed, kept so manual operations can
// re-render the dashboard without refetching
type cycleView struct {
	status    contracts.SourceStatus
	snap      *contracts.Snapshot
	errMsg    string
	market    contracts.MarketStats
	filter    *contracts.FilterReport
	sectors   sector.Result
	poolLabel string
	ranked    []contracts.ScoredStock
	shown     []contracts.ScoredStock
}

// Engine runs the poll cycle and owns the latest dashboard
// ⭐ SSOT: fetch -> sector -> filter -> score -> session gates -> publish
type Engine struct {
	deps   Deps
	opts   Options
	logger *logger.Logger

	cycleMu      sync.Mutex
	restoredDate string

	mu   sync.RWMutex
	view *cycleView
	last *contracts.Dashboard

	subsMu sync.Mutex
	subs   map[chan *contracts.Dashboard]struct{}
}

// New creates an engine
func New(deps Deps, opts Options, log *logger.Logger) *Engine {
	e := &Engine{
		deps:   deps,
		opts:   opts,
		logger: log.Component("engine"),
		subs:   make(map[chan *contracts.Dashboard]struct{}),
	}
	deps.Provider.OnEvent(func(event, details string) {
		deps.Session.Events().Add(deps.Clock.Now(), event, details)
	})
	return e
}

// Now returns the engine clock
func (e *Engine) Now() time.Time {
	return e.deps.Clock.Now()
}

// Calendar returns the trading calendar
func (e *Engine) Calendar() *calendar.Calendar {
	return e.deps.Calendar
}

// Cycle runs one full poll and publishes the new dashboard. A fetch failure is
// recorded on the dashboard rather than returned.
func (e *Engine) Cycle(ctx context.Context) (*contracts.Dashboard, error) {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	start := time.Now()
	now := e.deps.Clock.Now()
	date := e.deps.Calendar.TradeDate(now)

	if e.deps.Session.Rollover(now, date) {
		e.deps.Provider.Invalidate(ctx)
	}
	e.restore(ctx, date)

	view := &cycleView{}
	res, err := e.deps.Provider.Fetch(ctx, now)
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, ctx.Err()
	}
	// a spent job deadline still records the failure and publishes
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()

	if err != nil {
		view.status = contracts.StatusFailed
		view.errMsg = err.Error()
		view.snap = &contracts.Snapshot{Columns: contracts.NewColumnSet()}
		e.deps.Session.Events().Add(now, "数据获取", "最终失败: "+err.Error())
		e.logger.WithError(err).Warn("Fetch failed")
	} else {
		view.status = res.Status
		view.snap = res.Snapshot
	}
	e.deps.Session.RecordFetch(now, view.status)

	e.analyze(view)

	var cand *session.Candidate
	if len(view.shown) > 0 {
		cand = &session.Candidate{Stock: view.shown[0], Sector: view.poolLabel, Source: view.snap.Source}
	}
	for _, p := range e.deps.Session.Evaluate(now, cand, view.status) {
		if err := e.deps.Store.SavePick(saveCtx, p); err != nil {
			e.logger.WithError(err).WithField("kind", p.Kind).Error("Failed to save pick")
		}
	}

	dash := e.render(now, view)

	summary := &contracts.CycleSummary{
		TradeDate: date,
		At:        now,
		Source:    view.snap.Source,
		Status:    view.status,
		Total:     view.market.Total,
		Filtered:  view.market.Filtered,
		Strongest: view.sectors.Strongest,
		Duration:  time.Since(start),
		Error:     view.errMsg,
	}
	if cand != nil {
		summary.CandidateCode = cand.Stock.Code
		summary.CandidateName = cand.Stock.Name
		summary.Score = cand.Stock.RiskAdjusted
	}
	if err := e.deps.Store.SaveCycle(saveCtx, summary); err != nil {
		e.logger.WithError(err).Warn("Failed to save cycle summary")
	}

	e.mu.Lock()
	e.view = view
	e.last = dash
	e.mu.Unlock()
	e.publish(dash)

	e.logger.WithFields(map[string]interface{}{
		"status":    view.status,
		"rows":      view.market.Total,
		"filtered":  view.market.Filtered,
		"strongest": view.sectors.Strongest,
		"duration":  summary.Duration.String(),
	}).Debug("Cycle completed")

	return dash, nil
}

// restore reloads persisted picks once per trade date
func (e *Engine) restore(ctx context.Context, date string) {
	if e.restoredDate == date {
		return
	}
	e.restoredDate = date

	first, err := e.deps.Store.GetPick(ctx, date, contracts.PickFirst)
	if err != nil && !errors.Is(err, picks.ErrNotFound) {
		e.logger.WithError(err).Warn("Failed to restore first pick")
	}
	final, err := e.deps.Store.GetPick(ctx, date, contracts.PickFinal)
	if err != nil && !errors.Is(err, picks.ErrNotFound) {
		e.logger.WithError(err).Warn("Failed to restore final pick")
	}
	if first != nil || final != nil {
		e.deps.Session.Restore(first, final)
		e.logger.WithField("date", date).Info("Restored picks from store")
	}
}

func (e *Engine) analyze(view *cycleView) {
	snap := view.snap
	view.market = marketStats(snap)
	view.sectors = e.deps.Analyzer.Analyze(snap)

	filtered, report := e.deps.Screener.Screen(snap)
	view.filter = report
	view.market.Filtered = len(filtered)

	pool, label := sector.Pool(filtered, view.sectors.Strongest)
	view.poolLabel = label
	if len(pool) == 0 {
		return
	}

	view.ranked = e.deps.Ranker.Rank(pool, snap.Columns)
	view.shown = selection.Select(view.ranked, e.opts.TopK, e.opts.MaxPerSector)
}

func marketStats(snap *contracts.Snapshot) contracts.MarketStats {
	stats := contracts.MarketStats{Total: snap.Len()}
	if snap.Empty() {
		return stats
	}

	pct := make([]float64, len(snap.Quotes))
	amount := make([]float64, len(snap.Quotes))
	for i := range snap.Quotes {
		pct[i] = snap.Quotes[i].ChangePct
		amount[i] = snap.Quotes[i].Amount
	}
	if snap.Has(contracts.ColChangePct) {
		stats.AvgChangePct = stat.Mean(pct, nil)
		stats.MaxChangePct = floats.Max(pct)
	}
	if snap.Has(contracts.ColAmount) {
		stats.TotalAmount = floats.Sum(amount)
	}
	return stats
}

// render builds the dashboard from a cycle view and the session state
func (e *Engine) render(now time.Time, view *cycleView) *contracts.Dashboard {
	cal := e.deps.Calendar
	windows := e.deps.Session.Windows()
	state := e.deps.Session.State()
	trading, _ := cal.IsTradingTime(now)
	simulated, _ := e.deps.Clock.Simulated()
	weights := e.deps.Ranker.Weights()

	dash := &contracts.Dashboard{
		Now:            now,
		TradeDate:      cal.TradeDate(now),
		SimulatedClock: simulated,
		Period:         cal.Period(now),
		TradingTime:    trading,
		MinutesToClose: cal.MinutesToClose(now),
		Phase:          windows.Phase(calendar.Of(now)),
		Windows:        windows.View(),

		Status:        state.Status,
		StatusLabel:   state.Status.Label(),
		FetchedAt:     state.LastFetch,
		FetchAttempts: state.Attempts,

		Sectors:    []contracts.SectorStrength{},
		Candidates: []contracts.ScoredStock{},
		Profile:    []contracts.FactorScore{},
		Weights:    weights,

		FirstPick:     state.First,
		FinalPick:     state.Final,
		Locked:        state.Locked,
		Advice:        session.Advice(state.First),
		Plan:          session.Plan(state.Final),
		WeightWarning: selection.WeightWarning(weights),
		ConfigHash:    e.opts.ConfigHash,
		Logs:          e.deps.Session.Events().Recent(session.DefaultLogSize),
	}

	if view == nil {
		return dash
	}

	dash.Error = view.errMsg
	dash.Market = view.market
	dash.Filter = view.filter
	dash.PoolSector = view.poolLabel
	if view.snap != nil {
		dash.Source = view.snap.Source
		if !view.snap.FetchedAt.IsZero() {
			dash.FetchedAt = view.snap.FetchedAt
		}
	}
	if len(view.sectors.Sectors) > 0 {
		dash.Sectors = view.sectors.Sectors
	}
	dash.Strongest = view.sectors.Strongest
	if len(view.shown) > 0 {
		dash.Candidates = view.shown
		top := view.shown[0]
		dash.Candidate = &top
		dash.Profile = selection.Profile(view.ranked, &top, view.snap.Columns)
	}
	return dash
}

// Latest returns the last published dashboard, rendering an empty one before
// the first cycle
func (e *Engine) Latest() *contracts.Dashboard {
	e.mu.RLock()
	last := e.last
	e.mu.RUnlock()
	if last != nil {
		return last
	}
	return e.render(e.deps.Clock.Now(), nil)
}

// rerender publishes the last cycle with the current session state
func (e *Engine) rerender() *contracts.Dashboard {
	e.mu.Lock()
	dash := e.render(e.deps.Clock.Now(), e.view)
	e.last = dash
	e.mu.Unlock()
	e.publish(dash)
	return dash
}

// Subscribe returns a channel receiving every published dashboard. Slow
// subscribers only see the newest one. Call cancel to unsubscribe.
func (e *Engine) Subscribe() (<-chan *contracts.Dashboard, func()) {
	ch := make(chan *contracts.Dashboard, 1)
	e.subsMu.Lock()
	e.subs[ch] = struct{}{}
	e.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, ch)
			e.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (e *Engine) publish(dash *contracts.Dashboard) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()

	for ch := range e.subs {
		select {
		case ch <- dash:
		default:
			// drop the stale dashboard and push the new one
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- dash:
			default:
			}
		}
	}
}

// Refresh drops cached data and runs a cycle
func (e *Engine) Refresh(ctx context.Context) (*contracts.Dashboard, error) {
	e.deps.Provider.Invalidate(ctx)
	e.deps.Session.Events().Add(e.deps.Clock.Now(), "手动操作", "清除缓存，强制刷新")
	return e.Cycle(ctx)
}

// SetFirst records the current candidate as the first pick
func (e *Engine) SetFirst(ctx context.Context) (*contracts.Pick, error) {
	p, err := e.deps.Session.SetFirst(e.deps.Clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.deps.Store.SavePick(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to persist pick: %w", err)
	}
	e.rerender()
	return p, nil
}

// Lock records the current candidate as the final pick and locks the day
func (e *Engine) Lock(ctx context.Context) (*contracts.Pick, error) {
	p, err := e.deps.Session.Lock(e.deps.Clock.Now())
	if err != nil {
		return nil, err
	}
	if err := e.deps.Store.SavePick(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to persist pick: %w", err)
	}
	e.rerender()
	return p, nil
}

// ClearPicks drops today's picks and unlocks the day
func (e *Engine) ClearPicks(ctx context.Context) error {
	now := e.deps.Clock.Now()
	e.deps.Session.Clear(now)
	if err := e.deps.Store.DeletePicks(ctx, e.deps.Calendar.TradeDate(now)); err != nil {
		return fmt.Errorf("failed to delete picks: %w", err)
	}
	e.rerender()
	return nil
}

// SetWeights replaces the factor weights and rescores
func (e *Engine) SetWeights(ctx context.Context, w contracts.Weights) (*contracts.Dashboard, error) {
	if err := e.deps.Ranker.SetWeights(w); err != nil {
		return nil, err
	}
	e.deps.Session.Events().Add(e.deps.Clock.Now(), "参数", fmt.Sprintf("更新因子权重 (权重和 %.2f)", w.Sum()))
	return e.Cycle(ctx)
}

// Simulate pins the clock to hour:minute of today and runs a cycle
func (e *Engine) Simulate(ctx context.Context, hour, minute int) (*contracts.Dashboard, error) {
	if err := e.deps.Clock.Simulate(hour, minute); err != nil {
		return nil, err
	}
	e.deps.Session.Events().Add(e.deps.Clock.Now(), "模拟", fmt.Sprintf("设置时间: %02d:%02d", hour, minute))
	return e.Cycle(ctx)
}

// RealClock returns to wall-clock time and runs a cycle
func (e *Engine) RealClock(ctx context.Context) (*contracts.Dashboard, error) {
	e.deps.Clock.Real()
	e.deps.Session.Events().Add(e.deps.Clock.Now(), "模拟", "恢复实时时间")
	return e.Cycle(ctx)
}

// History returns picks of the last days calendar days, newest first
func (e *Engine) History(ctx context.Context, days int) ([]contracts.Pick, error) {
	if days <= 0 {
		days = 30
	}
	now := e.deps.Clock.Now()
	from := e.deps.Calendar.TradeDate(now.AddDate(0, 0, -(days - 1)))
	to := e.deps.Calendar.TradeDate(now)
	return e.deps.Store.ListPicks(ctx, from, to)
}

// Cycles returns the latest cycle summaries of today
func (e *Engine) Cycles(ctx context.Context, limit int) ([]contracts.CycleSummary, error) {
	return e.deps.Store.ListCycles(ctx, e.deps.Calendar.TradeDate(e.deps.Clock.Now()), limit)
}

// Logs returns the event log, newest first
func (e *Engine) Logs() []contracts.LogEntry {
	return e.deps.Session.Events().Recent(session.DefaultLogSize)
}
