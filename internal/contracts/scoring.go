package contracts

import "time"

// Factor is a scored column
type Factor string

const (
	FactorChangePct   Factor = "change_pct"
	FactorAmount      Factor = "amount"
	FactorTurnover    Factor = "turnover_rate"
	FactorVolumeRatio Factor = "volume_ratio"
	FactorVolatility  Factor = "volatility"
)

// AllFactors lists factors in display order
var AllFactors = []Factor{
	FactorChangePct,
	FactorAmount,
	FactorTurnover,
	FactorVolumeRatio,
	FactorVolatility,
}

// Column returns the snapshot column backing the factor
func (f Factor) Column() Column {
	switch f {
	case FactorChangePct:
		return ColChangePct
	case FactorAmount:
		return ColAmount
	case FactorTurnover:
		return ColTurnoverRate
	case FactorVolumeRatio:
		return ColVolumeRatio
	case FactorVolatility:
		return ColAmplitude
	}
	return ""
}

// Value extracts the raw factor value from a quote
func (f Factor) Value(q *Quote) float64 {
	switch f {
	case FactorChangePct:
		return q.ChangePct
	case FactorAmount:
		return q.Amount
	case FactorTurnover:
		return q.TurnoverRate
	case FactorVolumeRatio:
		return q.VolumeRatio
	case FactorVolatility:
		return q.Amplitude
	}
	return 0
}

// Weights maps a factor to its weight in the composite score
type Weights map[Factor]float64

// Sum returns the sum of all weights
func (w Weights) Sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

// Clone copies the weights
func (w Weights) Clone() Weights {
	cp := make(Weights, len(w))
	for k, v := range w {
		cp[k] = v
	}
	return cp
}

// ScoredStock is a filtered quote with its score breakdown
// ⭐ SSOT: selection -> session/engine
type ScoredStock struct {
	Quote
	Factors      map[Factor]float64 `json:"factors"` // weighted percentile contribution
	Composite    float64            `json:"composite"`
	RiskPenalty  float64            `json:"risk_penalty"`
	RiskAdjusted float64            `json:"risk_adjusted"`
	Rank         int                `json:"rank"` // 1-based
}

// FactorScore is one bar of the normalized factor profile
type FactorScore struct {
	Factor Factor  `json:"factor"`
	Value  float64 `json:"value"` // raw
	Score  float64 `json:"score"` // 0 ~ 100 within the candidate pool
}

// SectorStrength is the aggregate of one industry in a snapshot
type SectorStrength struct {
	Industry     string  `json:"industry"`
	AvgChangePct float64 `json:"avg_change_pct"`
	TotalAmount  float64 `json:"total_amount"`
	Count        int     `json:"count"`
	CapitalShare float64 `json:"capital_share"` // 0.0 ~ 1.0
	Strength     float64 `json:"strength"`      // 0 ~ 100
}

// FilterReport counts rows removed by each filter rule
type FilterReport struct {
	Input       int            `json:"input"`
	Kept        int            `json:"kept"`
	Dropped     map[string]int `json:"dropped"`
	AmountFloor float64        `json:"amount_floor"`
}

// LogEntry is one line of the user-facing event log
type LogEntry struct {
	Time    time.Time `json:"-"`
	Stamp   string    `json:"timestamp"` // HH:MM:SS
	Event   string    `json:"event"`
	Details string    `json:"details"`
}
