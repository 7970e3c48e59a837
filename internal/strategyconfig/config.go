package strategyconfig

import (
	"time"

	"github.com/wonny/tailgame/internal/calendar"
	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/sector"
	"github.com/wonny/tailgame/internal/selection"
	"github.com/wonny/tailgame/internal/session"
)

// Config is the tail-session strategy file
type Config struct {
	Meta     Meta                      `yaml:"meta" json:"meta"`
	Windows  Windows                   `yaml:"windows" json:"windows"`
	Filters  *selection.ScreenerConfig `yaml:"filters" json:"filters"` // nil = defaults
	Weights  map[string]float64        `yaml:"weights" json:"weights"` // nil = defaults
	Risk     *selection.RiskConfig     `yaml:"risk" json:"risk"`       // nil = defaults
	Ranking  Ranking                   `yaml:"ranking" json:"ranking"`
	Sectors  Sectors                   `yaml:"sectors" json:"sectors"`
	Calendar Calendar                  `yaml:"calendar" json:"calendar"`
}

// Meta identifies the strategy
type Meta struct {
	StrategyID string `yaml:"strategy_id" json:"strategy_id"`
	Version    string `yaml:"version" json:"version"`
}

// Windows are the session gates, HH:MM exchange time
type Windows struct {
	FirstStart string `yaml:"first_start" json:"first_start"`
	FirstEnd   string `yaml:"first_end" json:"first_end"`
	LockAt     string `yaml:"lock_at" json:"lock_at"`
}

// Ranking controls how many candidates are kept
type Ranking struct {
	TopK         int `yaml:"top_k" json:"top_k"`                   // candidates listed, 0 = default
	MaxPerSector int `yaml:"max_per_sector" json:"max_per_sector"` // 0 = no cap
}

// Sectors controls the rotation panel
type Sectors struct {
	Top int `yaml:"top" json:"top"`
}

// Calendar lists weekday exchange holidays, YYYY-MM-DD
type Calendar struct {
	Holidays []string `yaml:"holidays" json:"holidays"`
}

// DefaultTopK is the candidate list length when ranking.top_k is unset
const DefaultTopK = 10

// Default returns the built-in strategy
func Default() *Config {
	w := session.DefaultWindows()
	filters := selection.DefaultScreenerConfig()
	risk := selection.DefaultRiskConfig()

	weights := make(map[string]float64)
	for f, v := range selection.DefaultWeights() {
		weights[string(f)] = v
	}

	return &Config{
		Meta: Meta{StrategyID: "tailgame_default", Version: "1"},
		Windows: Windows{
			FirstStart: w.FirstStart.String(),
			FirstEnd:   w.FirstEnd.String(),
			LockAt:     w.LockAt.String(),
		},
		Filters: &filters,
		Weights: weights,
		Risk:    &risk,
		Ranking: Ranking{TopK: DefaultTopK},
		Sectors: Sectors{Top: sector.DefaultTop},
	}
}

// applyDefaults fills sections the file left out
func (c *Config) applyDefaults() {
	d := Default()
	if c.Meta.StrategyID == "" {
		c.Meta.StrategyID = d.Meta.StrategyID
	}
	if c.Windows.FirstStart == "" {
		c.Windows.FirstStart = d.Windows.FirstStart
	}
	if c.Windows.FirstEnd == "" {
		c.Windows.FirstEnd = d.Windows.FirstEnd
	}
	if c.Windows.LockAt == "" {
		c.Windows.LockAt = d.Windows.LockAt
	}
	if c.Filters == nil {
		c.Filters = d.Filters
	}
	if c.Weights == nil {
		c.Weights = d.Weights
	}
	if c.Risk == nil {
		c.Risk = d.Risk
	}
	if c.Ranking.TopK == 0 {
		c.Ranking.TopK = d.Ranking.TopK
	}
	if c.Sectors.Top == 0 {
		c.Sectors.Top = d.Sectors.Top
	}
}

// SessionWindows parses the window strings. Call after Validate.
func (c *Config) SessionWindows() session.Windows {
	first, _ := calendar.ParseHM(c.Windows.FirstStart)
	end, _ := calendar.ParseHM(c.Windows.FirstEnd)
	lock, _ := calendar.ParseHM(c.Windows.LockAt)
	return session.Windows{FirstStart: first, FirstEnd: end, LockAt: lock}
}

// FactorWeights converts the weight table
func (c *Config) FactorWeights() contracts.Weights {
	w := make(contracts.Weights, len(c.Weights))
	for k, v := range c.Weights {
		w[contracts.Factor(k)] = v
	}
	return w
}

// DecisionSnapshot pins the strategy a serve process started with
type DecisionSnapshot struct {
	ConfigHash string    `json:"config_hash"`
	StrategyID string    `json:"strategy_id"`
	Version    string    `json:"version"`
	Source     string    `json:"source"` // file path, or "default"
	CreatedAt  time.Time `json:"created_at"`
}
