package contracts

import "time"

// Windows are the wall-clock gates of the session, "HH:MM"
type Windows struct {
	FirstStart string `json:"first_start"`
	FirstEnd   string `json:"first_end"`
	LockAt     string `json:"lock_at"`
}

// Dashboard is the full view rendered by the web UI and pushed over /ws
// ⭐ SSOT: engine builds it once per cycle; api only serialises it
type Dashboard struct {
	Now            time.Time `json:"now"`
	TradeDate      string    `json:"trade_date"`
	SimulatedClock bool      `json:"simulated_clock"`
	Period         string    `json:"period"`
	TradingTime    bool      `json:"trading_time"`
	MinutesToClose int       `json:"minutes_to_close"`
	Phase          string    `json:"phase"` // 可推荐 / 需锁定 / 观察中
	Windows        Windows   `json:"windows"`

	Status        SourceStatus `json:"status"`
	StatusLabel   string       `json:"status_label"`
	Source        DataSource   `json:"source,omitempty"`
	FetchedAt     time.Time    `json:"fetched_at"`
	FetchAttempts int          `json:"fetch_attempts"`
	Error         string       `json:"error,omitempty"`

	Market    MarketStats      `json:"market"`
	Filter    *FilterReport    `json:"filter,omitempty"`
	Sectors   []SectorStrength `json:"sectors"`
	Strongest string           `json:"strongest_sector"`

	Candidates    []ScoredStock `json:"candidates"`
	Candidate     *ScoredStock  `json:"candidate,omitempty"`
	Profile       []FactorScore `json:"profile"`
	Weights       Weights       `json:"weights"`
	WeightWarning string        `json:"weight_warning,omitempty"`

	FirstPick   *Pick      `json:"first_pick,omitempty"`
	FinalPick   *Pick      `json:"final_pick,omitempty"`
	Locked      bool       `json:"locked"`
	Advice      string     `json:"advice,omitempty"`
	Plan        *TradePlan `json:"plan,omitempty"`
	PoolSector  string     `json:"pool_sector"` // strongest sector or 全市场
	ConfigHash  string     `json:"config_hash,omitempty"`

	Logs []LogEntry `json:"logs"`
}
