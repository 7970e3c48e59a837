package selection

import (
	"strings"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/logger"
)

// Drop reasons reported in contracts.FilterReport.Dropped
const (
	DropName      = "name"
	DropChangePct = "change_pct"
	DropAmount    = "amount"
	DropTurnover  = "turnover"
)

// Screener applies the hard filters to a snapshot
// ⭐ SSOT: filter rules live here only
type Screener struct {
	config ScreenerConfig
	logger *logger.Logger
}

// ScreenerConfig defines hard cut conditions. Bounds are exclusive.
type ScreenerConfig struct {
	NameBlacklist []string `yaml:"name_blacklist" json:"name_blacklist"` // substrings, e.g. "ST"

	MinChangePct float64 `yaml:"min_change_pct" json:"min_change_pct"` // -9.5
	MaxChangePct float64 `yaml:"max_change_pct" json:"max_change_pct"` // 9.5

	// amount must exceed max(quantile(AmountQuantile), MinAmount)
	AmountQuantile float64 `yaml:"amount_quantile" json:"amount_quantile"` // 0.1
	MinAmount      float64 `yaml:"min_amount" json:"min_amount"`           // 2e7 CNY

	MinTurnover float64 `yaml:"min_turnover" json:"min_turnover"` // 0.5 %
	MaxTurnover float64 `yaml:"max_turnover" json:"max_turnover"` // 50 %
}

// DefaultScreenerConfig returns the default filter bounds
func DefaultScreenerConfig() ScreenerConfig {
	return ScreenerConfig{
		NameBlacklist:  []string{"ST"},
		MinChangePct:   -9.5,
		MaxChangePct:   9.5,
		AmountQuantile: 0.1,
		MinAmount:      2e7,
		MinTurnover:    0.5,
		MaxTurnover:    50,
	}
}

// NewScreener creates a new screener
func NewScreener(config ScreenerConfig, log *logger.Logger) *Screener {
	return &Screener{
		config: config,
		logger: log,
	}
}

// Config returns the active bounds
func (s *Screener) Config() ScreenerConfig {
	return s.config
}

// Screen runs the rules in order: name, change, amount, turnover. Each rule is
// skipped when the snapshot lacks its column. The amount floor is computed
// over the rows that survived the earlier rules.
func (s *Screener) Screen(snap *contracts.Snapshot) ([]contracts.Quote, *contracts.FilterReport) {
	report := &contracts.FilterReport{
		Input:   snap.Len(),
		Dropped: make(map[string]int),
	}
	if snap.Empty() {
		return nil, report
	}

	rows := make([]contracts.Quote, 0, len(snap.Quotes))
	for _, q := range snap.Quotes {
		if s.blacklisted(q.Name) {
			report.Dropped[DropName]++
			continue
		}
		if snap.Has(contracts.ColChangePct) && !(q.ChangePct > s.config.MinChangePct && q.ChangePct < s.config.MaxChangePct) {
			report.Dropped[DropChangePct]++
			continue
		}
		rows = append(rows, q)
	}

	if len(rows) > 0 && snap.Has(contracts.ColAmount) {
		amounts := make([]float64, len(rows))
		for i := range rows {
			amounts[i] = rows[i].Amount
		}
		floor := Quantile(amounts, s.config.AmountQuantile)
		if floor < s.config.MinAmount {
			floor = s.config.MinAmount
		}
		report.AmountFloor = floor

		kept := rows[:0]
		for _, q := range rows {
			if q.Amount > floor {
				kept = append(kept, q)
			} else {
				report.Dropped[DropAmount]++
			}
		}
		rows = kept
	}

	if snap.Has(contracts.ColTurnoverRate) {
		kept := rows[:0]
		for _, q := range rows {
			if q.TurnoverRate > s.config.MinTurnover && q.TurnoverRate < s.config.MaxTurnover {
				kept = append(kept, q)
			} else {
				report.Dropped[DropTurnover]++
			}
		}
		rows = kept
	}

	report.Kept = len(rows)

	s.logger.WithFields(map[string]interface{}{
		"total_input":  report.Input,
		"passed":       report.Kept,
		"filtered_out": report.Input - report.Kept,
		"filters":      report.Dropped,
		"amount_floor": report.AmountFloor,
	}).Debug("Screening completed")

	return rows, report
}

func (s *Screener) blacklisted(name string) bool {
	for _, pattern := range s.config.NameBlacklist {
		if pattern != "" && strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}
