package selection

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/pkg/logger"
)

// Ranker scores filtered rows with weighted percentile ranks
// ⭐ SSOT: composite / risk-adjusted scoring lives here only
type Ranker struct {
	mu      sync.RWMutex
	weights contracts.Weights
	risk    RiskConfig
	logger  *logger.Logger
}

// RiskConfig shapes the penalty subtracted from the composite score:
// (clip(pct, GainFloor, GainCap) - GainFloor) / GainScale * GainWeight
// + (clip(vol, VolFloor, VolCap) - VolFloor) / VolScale * VolWeight
type RiskConfig struct {
	GainFloor  float64 `yaml:"gain_floor" json:"gain_floor"`
	GainCap    float64 `yaml:"gain_cap" json:"gain_cap"`
	GainScale  float64 `yaml:"gain_scale" json:"gain_scale"`
	GainWeight float64 `yaml:"gain_weight" json:"gain_weight"`

	VolFloor  float64 `yaml:"vol_floor" json:"vol_floor"`
	VolCap    float64 `yaml:"vol_cap" json:"vol_cap"`
	VolScale  float64 `yaml:"vol_scale" json:"vol_scale"`
	VolWeight float64 `yaml:"vol_weight" json:"vol_weight"`
}

// DefaultRiskConfig returns the default penalty shape
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		GainFloor:  6,
		GainCap:    20,
		GainScale:  70,
		GainWeight: 0.2,
		VolFloor:   5,
		VolCap:     15,
		VolScale:   50,
		VolWeight:  0.15,
	}
}

// DefaultWeights returns the default factor weights
func DefaultWeights() contracts.Weights {
	return contracts.Weights{
		contracts.FactorChangePct:   0.30,
		contracts.FactorAmount:      0.25,
		contracts.FactorTurnover:    0.20,
		contracts.FactorVolumeRatio: 0.20,
		contracts.FactorVolatility:  -0.10, // 波动率(负)
	}
}

// NewRanker creates a new ranker
func NewRanker(weights contracts.Weights, risk RiskConfig, log *logger.Logger) *Ranker {
	return &Ranker{
		weights: weights.Clone(),
		risk:    risk,
		logger:  log,
	}
}

// Weights returns a copy of the active weights
func (r *Ranker) Weights() contracts.Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weights.Clone()
}

// SetWeights replaces the weights. Unknown factors are rejected.
func (r *Ranker) SetWeights(w contracts.Weights) error {
	for f := range w {
		if f.Column() == "" {
			return fmt.Errorf("unknown factor %q", f)
		}
		if math.IsNaN(w[f]) || math.IsInf(w[f], 0) {
			return fmt.Errorf("weight of %s is not finite", f)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.weights = w.Clone()
	return nil
}

// Rank scores rows and sorts them by risk-adjusted score, descending.
// A factor contributes only when its weight is non-zero and cols has its column.
func (r *Ranker) Rank(rows []contracts.Quote, cols contracts.ColumnSet) []contracts.ScoredStock {
	if len(rows) == 0 {
		return nil
	}
	weights := r.Weights()

	scored := make([]contracts.ScoredStock, len(rows))
	for i := range rows {
		scored[i] = contracts.ScoredStock{
			Quote:   rows[i],
			Factors: make(map[contracts.Factor]float64),
		}
	}

	values := make([]float64, len(rows))
	for _, f := range contracts.AllFactors {
		w := weights[f]
		if w == 0 || !cols.Has(f.Column()) {
			continue
		}
		for i := range rows {
			values[i] = f.Value(&rows[i])
		}
		for i, pct := range PercentileRank(values) {
			contribution := pct * w
			scored[i].Factors[f] = contribution
			scored[i].Composite += contribution
		}
	}

	for i := range scored {
		scored[i].RiskPenalty = r.penalty(&scored[i].Quote, cols)
		scored[i].RiskAdjusted = scored[i].Composite - scored[i].RiskPenalty
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].RiskAdjusted != scored[j].RiskAdjusted {
			return scored[i].RiskAdjusted > scored[j].RiskAdjusted
		}
		return scored[i].Code < scored[j].Code
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}

	r.logger.WithFields(map[string]interface{}{
		"total_stocks": len(scored),
		"top_score":    scored[0].RiskAdjusted,
		"top_code":     scored[0].Code,
	}).Debug("Ranking completed")

	return scored
}

func (r *Ranker) penalty(q *contracts.Quote, cols contracts.ColumnSet) float64 {
	p := 0.0
	if cols.Has(contracts.ColChangePct) {
		p += (clip(q.ChangePct, r.risk.GainFloor, r.risk.GainCap) - r.risk.GainFloor) / r.risk.GainScale * r.risk.GainWeight
	}
	if cols.Has(contracts.ColAmplitude) {
		p += (clip(q.Amplitude, r.risk.VolFloor, r.risk.VolCap) - r.risk.VolFloor) / r.risk.VolScale * r.risk.VolWeight
	}
	return p
}

// Select takes the top k of a ranked list (k <= 0 means all). With
// maxPerSector > 0 at most that many rows of one industry are taken; the
// unknown industry label is not capped.
func Select(ranked []contracts.ScoredStock, k, maxPerSector int) []contracts.ScoredStock {
	out := make([]contracts.ScoredStock, 0, len(ranked))
	perSector := make(map[string]int)

	for _, s := range ranked {
		if k > 0 && len(out) >= k {
			break
		}
		if maxPerSector > 0 && s.Industry != contracts.UnknownIndustry {
			if perSector[s.Industry] >= maxPerSector {
				continue
			}
			perSector[s.Industry]++
		}
		out = append(out, s)
	}
	return out
}

// Profile normalises each present factor of top against the pool:
// (v-min)/(max-min)*100, or 50 when the pool is flat.
func Profile(pool []contracts.ScoredStock, top *contracts.ScoredStock, cols contracts.ColumnSet) []contracts.FactorScore {
	if top == nil || len(pool) == 0 {
		return nil
	}

	var out []contracts.FactorScore
	for _, f := range contracts.AllFactors {
		if !cols.Has(f.Column()) {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := range pool {
			v := f.Value(&pool[i].Quote)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}

		v := f.Value(&top.Quote)
		score := 50.0
		if hi > lo {
			score = (v - lo) / (hi - lo) * 100
		}
		out = append(out, contracts.FactorScore{Factor: f, Value: v, Score: score})
	}
	return out
}

// WeightWarning returns a message when the weights drift far from summing to 1
func WeightWarning(w contracts.Weights) string {
	sum := w.Sum()
	if math.Abs(sum-1) > 0.2 {
		return fmt.Sprintf("权重和: %.2f (建议调整到1.0附近)", sum)
	}
	return ""
}
