package contracts

import "time"

// PickKind distinguishes the intraday pick from the locked one
type PickKind string

const (
	PickFirst PickKind = "first"
	PickFinal PickKind = "final"
)

// Pick is a recommendation recorded by the session
// ⭐ SSOT: session -> picks store -> dashboard
type Pick struct {
	TradeDate    string     `json:"trade_date"` // YYYY-MM-DD
	Kind         PickKind   `json:"kind"`
	Code         string     `json:"code"`
	Name         string     `json:"name"`
	Price        float64    `json:"price"`
	ChangePct    float64    `json:"change_pct"`
	Amount       float64    `json:"amount"`
	TurnoverRate float64    `json:"turnover_rate"`
	Composite    float64    `json:"composite"`
	RiskAdjusted float64    `json:"risk_adjusted"`
	Sector       string     `json:"sector"`
	Source       DataSource `json:"source"`
	Time         time.Time  `json:"time"`
	Auto         bool       `json:"auto"` // false for manual overrides
}

// NewPick builds a pick from a scored candidate
func NewPick(kind PickKind, s *ScoredStock, source DataSource, at time.Time, auto bool) *Pick {
	return &Pick{
		TradeDate:    at.Format("2006-01-02"),
		Kind:         kind,
		Code:         s.Code,
		Name:         s.Name,
		Price:        s.Price,
		ChangePct:    s.ChangePct,
		Amount:       s.Amount,
		TurnoverRate: s.TurnoverRate,
		Composite:    s.Composite,
		RiskAdjusted: s.RiskAdjusted,
		Sector:       s.Industry,
		Source:       source,
		Time:         at,
		Auto:         auto,
	}
}

// TradePlan is the next-day plan derived from the locked pick
type TradePlan struct {
	Position string  `json:"position"`  // e.g. "20-30%"
	StopLoss float64 `json:"stop_loss"` // percent, negative
	Note     string  `json:"note"`
}

// CycleSummary is persisted once per poll cycle
type CycleSummary struct {
	TradeDate     string        `json:"trade_date"`
	At            time.Time     `json:"at"`
	Source        DataSource    `json:"source"`
	Status        SourceStatus  `json:"status"`
	Total         int           `json:"total"`
	Filtered      int           `json:"filtered"`
	Strongest     string        `json:"strongest_sector"`
	CandidateCode string        `json:"candidate_code"`
	CandidateName string        `json:"candidate_name"`
	Score         float64       `json:"score"`
	Duration      time.Duration `json:"duration"`
	Error         string        `json:"error,omitempty"`
}
