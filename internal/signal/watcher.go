package signal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/market"
	"github.com/wonny/tailgame/pkg/logger"
)

// Action is the instruction derived from a single quote
type Action string

const (
	ActionBuy        Action = "BUY" // at support: buy or keep holding
	ActionReduce     Action = "REDUCE"
	ActionTakeProfit Action = "TAKE_PROFIT"
	ActionHold       Action = "HOLD"
	ActionLinkDown   Action = "LINK_DOWN"
)

// ErrSymbolNotFound is returned when the snapshot has no row for the symbol
var ErrSymbolNotFound = errors.New("symbol not in snapshot")

// Config holds the watcher thresholds
type Config struct {
	Symbol         string  // bare 6-digit code
	Support        float64 // key support price
	Band           float64 // price <= support*(1+Band) counts as touching support
	UnusualVolume  float64 // volume ratio flagged as unusual
	OverloadVolume float64 // volume ratio for take-profit
	OverloadChange float64 // percent change for take-profit
}

// DefaultConfig returns the standard thresholds for symbol and support
func DefaultConfig(symbol string, support float64) Config {
	return Config{
		Symbol:         symbol,
		Support:        support,
		Band:           0.01,
		UnusualVolume:  1.8,
		OverloadVolume: 3.0,
		OverloadChange: 7,
	}
}

// Validate checks the config
func (c Config) Validate() error {
	if len(c.Symbol) != 6 {
		return fmt.Errorf("symbol must be a 6-digit code, got %q", c.Symbol)
	}
	if c.Support <= 0 {
		return fmt.Errorf("support must be positive, got %v", c.Support)
	}
	return nil
}

// Factors are the per-quote factors of the watched symbol
type Factors struct {
	Time         time.Time `json:"time"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Price        float64   `json:"price"`
	ChangePct    float64   `json:"change_pct"`
	TurnoverRate float64   `json:"turnover_rate"`
	VolumeRatio  float64   `json:"volume_ratio"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Distance     float64   `json:"distance"`    // (price - support) / support
	Retracement  float64   `json:"retracement"` // (high - price) / high
	Safe         bool      `json:"safe"`        // above support
	Unusual      bool      `json:"unusual"`     // volume ratio above the unusual threshold
}

// Signal is one evaluation of the watched symbol
type Signal struct {
	Action  Action   `json:"action"`
	Message string   `json:"message"`
	Factors *Factors `json:"factors,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Compute derives the factors of q against cfg
func Compute(cfg Config, q *contracts.Quote, at time.Time) *Factors {
	f := &Factors{
		Time:         at,
		Code:         q.Code,
		Name:         q.Name,
		Price:        q.Price,
		ChangePct:    q.ChangePct,
		TurnoverRate: q.TurnoverRate,
		VolumeRatio:  q.VolumeRatio,
		High:         q.High,
		Low:          q.Low,
		Distance:     (q.Price - cfg.Support) / cfg.Support,
		Safe:         q.Price > cfg.Support,
		Unusual:      q.VolumeRatio > cfg.UnusualVolume,
	}
	if q.High > 0 {
		f.Retracement = (q.High - q.Price) / q.High
	}
	return f
}

// Evaluate maps factors to an action. Rules are checked in order:
// touching support from above, broken support, overloaded volume at a big gain.
func Evaluate(cfg Config, f *Factors) Signal {
	sig := Signal{Factors: f}
	switch {
	case f.Price <= cfg.Support*(1+cfg.Band) && f.Safe:
		sig.Action = ActionBuy
		sig.Message = fmt.Sprintf("价格触及支撑带 %.2f，建议买入/持仓", cfg.Support)
	case !f.Safe:
		sig.Action = ActionReduce
		sig.Message = fmt.Sprintf("已跌破支撑位 %.2f，趋势走弱，建议减仓", cfg.Support)
	case f.VolumeRatio > cfg.OverloadVolume && f.ChangePct > cfg.OverloadChange:
		sig.Action = ActionTakeProfit
		sig.Message = "量比过载，警惕高位放量滞涨，建议止盈"
	default:
		sig.Action = ActionHold
		sig.Message = "因子运行平稳，持股待涨"
	}
	return sig
}

// Watcher polls a quote source for one symbol
// ⭐ SSOT: single-symbol support-line signals
type Watcher struct {
	cfg    Config
	source market.Source
	now    func() time.Time
	logger *logger.Logger
}

// NewWatcher creates a watcher over source
func NewWatcher(cfg Config, source market.Source, log *logger.Logger) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:    cfg,
		source: source,
		now:    time.Now,
		logger: log.Component("signal").WithField("symbol", cfg.Symbol),
	}, nil
}

// Config returns the watcher thresholds
func (w *Watcher) Config() Config {
	return w.cfg
}

// Check fetches one quote and evaluates it. A fetch failure yields LINK_DOWN.
func (w *Watcher) Check(ctx context.Context) Signal {
	q, err := w.quote(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("Quote fetch failed")
		return Signal{Action: ActionLinkDown, Message: "数据链路中断", Error: err.Error()}
	}

	sig := Evaluate(w.cfg, Compute(w.cfg, q, w.now()))
	w.logger.WithFields(map[string]interface{}{
		"price":  q.Price,
		"action": sig.Action,
	}).Debug("Signal evaluated")
	return sig
}

// Run checks every interval until ctx is done, calling fn with each signal
func (w *Watcher) Run(ctx context.Context, interval time.Duration, fn func(Signal)) error {
	fn(w.Check(ctx))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(w.Check(ctx))
		}
	}
}

func (w *Watcher) quote(ctx context.Context) (*contracts.Quote, error) {
	snap, err := w.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", w.source.Name(), err)
	}
	for i := range snap.Quotes {
		if snap.Quotes[i].Code == w.cfg.Symbol {
			return &snap.Quotes[i], nil
		}
	}
	return nil, fmt.Errorf("%s: %w", w.cfg.Symbol, ErrSymbolNotFound)
}
