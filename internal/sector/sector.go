package sector

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/selection"
	"github.com/wonny/tailgame/pkg/logger"
)

// WholeMarket labels picks drawn without a strongest sector
const WholeMarket = "全市场"

// Strength weights of the three ranked sector metrics
const (
	weightAvgChange = 40.0
	weightShare     = 40.0
	weightCount     = 20.0
)

// DefaultTop is the number of sectors shown on the dashboard
const DefaultTop = 5

// Analyzer ranks industries by money flow and breadth
// ⭐ SSOT: sector rotation scoring lives here only
type Analyzer struct {
	top    int
	logger *logger.Logger
}

// NewAnalyzer creates a new analyzer keeping the top n sectors
func NewAnalyzer(top int, log *logger.Logger) *Analyzer {
	if top <= 0 {
		top = DefaultTop
	}
	return &Analyzer{top: top, logger: log}
}

// Result is one sector analysis
type Result struct {
	Sectors   []contracts.SectorStrength // top n, strongest first
	Strongest string                     // empty when no industry data
}

// Analyze groups the full snapshot by industry. Snapshots without an industry
// column produce an empty result.
func (a *Analyzer) Analyze(snap *contracts.Snapshot) Result {
	if snap.Empty() || !snap.Has(contracts.ColIndustry) {
		return Result{}
	}

	type group struct {
		pct    []float64
		amount []float64
	}
	groups := make(map[string]*group)
	order := make([]string, 0)
	for i := range snap.Quotes {
		q := &snap.Quotes[i]
		industry := q.Industry
		if industry == "" {
			industry = contracts.UnknownIndustry
		}
		g, ok := groups[industry]
		if !ok {
			g = &group{}
			groups[industry] = g
			order = append(order, industry)
		}
		g.pct = append(g.pct, q.ChangePct)
		g.amount = append(g.amount, q.Amount)
	}

	sectors := make([]contracts.SectorStrength, len(order))
	amounts := make([]float64, len(order))
	for i, industry := range order {
		g := groups[industry]
		sectors[i] = contracts.SectorStrength{
			Industry:     industry,
			AvgChangePct: stat.Mean(g.pct, nil),
			TotalAmount:  floats.Sum(g.amount),
			Count:        len(g.pct),
		}
		amounts[i] = sectors[i].TotalAmount
	}

	total := floats.Sum(amounts)
	avg := make([]float64, len(sectors))
	share := make([]float64, len(sectors))
	count := make([]float64, len(sectors))
	for i := range sectors {
		if total > 0 {
			sectors[i].CapitalShare = sectors[i].TotalAmount / total
		}
		avg[i] = sectors[i].AvgChangePct
		share[i] = sectors[i].CapitalShare
		count[i] = float64(sectors[i].Count)
	}

	avgRank := selection.PercentileRank(avg)
	shareRank := selection.PercentileRank(share)
	countRank := selection.PercentileRank(count)
	for i := range sectors {
		sectors[i].Strength = avgRank[i]*weightAvgChange + shareRank[i]*weightShare + countRank[i]*weightCount
	}

	sort.SliceStable(sectors, func(i, j int) bool {
		if sectors[i].Strength != sectors[j].Strength {
			return sectors[i].Strength > sectors[j].Strength
		}
		return sectors[i].Industry < sectors[j].Industry
	})
	if len(sectors) > a.top {
		sectors = sectors[:a.top]
	}

	a.logger.WithFields(map[string]interface{}{
		"sectors":   len(order),
		"strongest": sectors[0].Industry,
		"strength":  sectors[0].Strength,
	}).Debug("Sector analysis completed")

	return Result{Sectors: sectors, Strongest: sectors[0].Industry}
}

// Pool returns the filtered rows of the strongest sector, or all filtered rows
// when strongest is empty or has no survivors. The second value is the label
// to attach to picks drawn from the pool.
func Pool(filtered []contracts.Quote, strongest string) ([]contracts.Quote, string) {
	if strongest == "" {
		return filtered, WholeMarket
	}
	pool := make([]contracts.Quote, 0)
	for _, q := range filtered {
		if q.Industry == strongest {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return filtered, WholeMarket
	}
	return pool, strongest
}
