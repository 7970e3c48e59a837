package contracts

import (
	"context"
	"strings"
	"time"
)

// DataSource names an upstream snapshot provider
type DataSource string

const (
	SourceTushare   DataSource = "tushare"
	SourceEastmoney DataSource = "eastmoney"
	SourceSina      DataSource = "sina"
	SourceTencent   DataSource = "tencent"
)

// ParseDataSource maps a config token to a DataSource
func ParseDataSource(s string) (DataSource, bool) {
	switch DataSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceTushare:
		return SourceTushare, true
	case SourceEastmoney:
		return SourceEastmoney, true
	case SourceSina:
		return SourceSina, true
	case SourceTencent:
		return SourceTencent, true
	}
	return "", false
}

// SourceStatus describes where the data of the current cycle came from
// ⭐ SSOT: only real_data / cached_real_data may drive automatic picks
type SourceStatus string

const (
	StatusRealData   SourceStatus = "real_data"
	StatusCached     SourceStatus = "cached_real_data"
	StatusNonTrading SourceStatus = "non_trading"
	StatusUnknown    SourceStatus = "unknown"
	StatusFailed     SourceStatus = "failed"
)

// IsReal reports whether the status carries live market data
func (s SourceStatus) IsReal() bool {
	return s == StatusRealData || s == StatusCached
}

// Label is the display text used by the dashboard
func (s SourceStatus) Label() string {
	switch s {
	case StatusRealData:
		return "实时数据"
	case StatusCached:
		return "缓存数据"
	case StatusNonTrading:
		return "非交易时间"
	case StatusFailed:
		return "获取失败"
	default:
		return "未知"
	}
}

// Column identifies an optional quote field
type Column string

const (
	ColChangePct      Column = "change_pct"
	ColAmount         Column = "amount"
	ColTurnoverRate   Column = "turnover_rate"
	ColVolumeRatio    Column = "volume_ratio"
	ColAmplitude      Column = "amplitude"
	ColFloatMarketCap Column = "float_market_cap"
	ColIndustry       Column = "industry"
)

// ColumnSet is the set of columns a source actually populated
type ColumnSet map[Column]bool

// NewColumnSet builds a set from the given columns
func NewColumnSet(cols ...Column) ColumnSet {
	set := make(ColumnSet, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}

// Has reports whether col is present
func (c ColumnSet) Has(col Column) bool {
	return c[col]
}

// UnknownIndustry is used when a source has no sector label
const UnknownIndustry = "未知"

// Quote is one row of a market snapshot
type Quote struct {
	Code           string  `json:"code"` // 6-digit symbol
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	PrevClose      float64 `json:"prev_close"`
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	ChangePct      float64 `json:"change_pct"`       // 涨跌幅, percent
	Volume         float64 `json:"volume"`           // shares
	Amount         float64 `json:"amount"`           // 成交额, CNY
	TurnoverRate   float64 `json:"turnover_rate"`    // 换手率, percent
	VolumeRatio    float64 `json:"volume_ratio"`     // 量比
	Amplitude      float64 `json:"amplitude"`        // 振幅, percent
	FloatMarketCap float64 `json:"float_market_cap"` // CNY
	Industry       string  `json:"industry"`
}

// DeriveFromPrices fills ChangePct and Amplitude from raw prices
func (q *Quote) DeriveFromPrices() {
	if q.PrevClose <= 0 {
		return
	}
	q.ChangePct = (q.Price - q.PrevClose) / q.PrevClose * 100
	if q.High > 0 && q.Low > 0 {
		q.Amplitude = (q.High - q.Low) / q.PrevClose * 100
	}
}

// Snapshot is one poll of a market-data API
// ⭐ SSOT: sources -> market.Provider -> engine
type Snapshot struct {
	Source    DataSource `json:"source"`
	FetchedAt time.Time  `json:"fetched_at"`
	Columns   ColumnSet  `json:"columns"`
	Quotes    []Quote    `json:"quotes"`
}

// Len returns the number of rows
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Quotes)
}

// Empty reports whether the snapshot has no rows
func (s *Snapshot) Empty() bool {
	return s.Len() == 0
}

// Has reports whether the snapshot carries col
func (s *Snapshot) Has(col Column) bool {
	return s != nil && s.Columns.Has(col)
}

// Clone copies the snapshot so callers may mutate rows freely
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Quotes = append([]Quote(nil), s.Quotes...)
	cp.Columns = make(ColumnSet, len(s.Columns))
	for k, v := range s.Columns {
		cp.Columns[k] = v
	}
	return &cp
}

// MarketStats summarises a snapshot for the dashboard header
type MarketStats struct {
	Total        int     `json:"total"`
	Filtered     int     `json:"filtered"`
	AvgChangePct float64 `json:"avg_change_pct"`
	MaxChangePct float64 `json:"max_change_pct"`
	TotalAmount  float64 `json:"total_amount"`
}

// CodeLister supplies the exchange-prefixed code universe (sh600000, sz000001)
type CodeLister interface {
	ListCodes(ctx context.Context) ([]string, error)
}
