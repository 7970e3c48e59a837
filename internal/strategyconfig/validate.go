package strategyconfig

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/wonny/tailgame/internal/contracts"
	"github.com/wonny/tailgame/internal/selection"
)

// ValidationError is a fatal config problem
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Warning is a non-fatal recommendation
type Warning struct {
	Code    string
	Message string
}

var hhmm = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Validate checks all required constraints
func Validate(cfg *Config) error {
	// === Windows ===
	if err := validateHHMM(cfg.Windows.FirstStart); err != nil {
		return ValidationError{"windows.first_start", err.Error()}
	}
	if err := validateHHMM(cfg.Windows.FirstEnd); err != nil {
		return ValidationError{"windows.first_end", err.Error()}
	}
	if err := validateHHMM(cfg.Windows.LockAt); err != nil {
		return ValidationError{"windows.lock_at", err.Error()}
	}
	if err := cfg.SessionWindows().Validate(); err != nil {
		return ValidationError{"windows", err.Error()}
	}

	// === Filters ===
	if f := cfg.Filters; f != nil {
		if f.MinChangePct >= f.MaxChangePct {
			return ValidationError{"filters", "min_change_pct must be < max_change_pct"}
		}
		if f.AmountQuantile < 0 || f.AmountQuantile > 1 {
			return ValidationError{"filters.amount_quantile", "must be in range [0, 1]"}
		}
		if f.MinAmount < 0 {
			return ValidationError{"filters.min_amount", "must be >= 0"}
		}
		if f.MinTurnover >= f.MaxTurnover {
			return ValidationError{"filters", "min_turnover must be < max_turnover"}
		}
	}

	// === Weights ===
	if len(cfg.Weights) == 0 {
		return ValidationError{"weights", "must not be empty"}
	}
	for name, w := range cfg.Weights {
		if contracts.Factor(name).Column() == "" {
			return ValidationError{fmt.Sprintf("weights.%s", name), "unknown factor"}
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return ValidationError{fmt.Sprintf("weights.%s", name), "must be finite"}
		}
	}

	// === Risk ===
	if r := cfg.Risk; r != nil {
		if r.GainScale <= 0 || r.VolScale <= 0 {
			return ValidationError{"risk", "gain_scale and vol_scale must be > 0"}
		}
		if r.GainFloor > r.GainCap || r.VolFloor > r.VolCap {
			return ValidationError{"risk", "floor must be <= cap"}
		}
	}

	// === Ranking / Sectors ===
	if cfg.Ranking.TopK < 0 {
		return ValidationError{"ranking.top_k", "must be >= 0"}
	}
	if cfg.Ranking.MaxPerSector < 0 {
		return ValidationError{"ranking.max_per_sector", "must be >= 0"}
	}
	if cfg.Sectors.Top < 0 {
		return ValidationError{"sectors.top", "must be >= 0"}
	}

	// === Calendar ===
	for i, d := range cfg.Calendar.Holidays {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return ValidationError{fmt.Sprintf("calendar.holidays[%d]", i), "must be YYYY-MM-DD"}
		}
	}

	return nil
}

// Warn checks recommended constraints (non-fatal)
func Warn(cfg *Config) []Warning {
	var warnings []Warning

	if msg := selection.WeightWarning(cfg.FactorWeights()); msg != "" {
		warnings = append(warnings, Warning{Code: "WEIGHT_SUM", Message: msg})
	}

	w := cfg.SessionWindows()
	if w.LockAt.Hour >= 15 {
		warnings = append(warnings, Warning{
			Code:    "LOCK_AFTER_CLOSE",
			Message: "锁定时间在收盘之后: 只能使用收盘缓存数据",
		})
	}
	if w.FirstStart.Hour < 13 {
		warnings = append(warnings, Warning{
			Code:    "EARLY_FIRST_WINDOW",
			Message: "首次推荐窗口早于午盘: 非尾盘数据",
		})
	}

	if cfg.Ranking.MaxPerSector == 1 && cfg.Ranking.TopK > cfg.Sectors.Top*2 {
		warnings = append(warnings, Warning{
			Code:    "SECTOR_CAP_TIGHT",
			Message: "每板块1只且候选数较多: 候选列表可能偏短",
		})
	}

	return warnings
}

// === Helper Functions ===

func validateHHMM(s string) error {
	if !hhmm.MatchString(s) {
		return errors.New("must be HH:MM format")
	}
	_, err := time.Parse("15:04", s)
	return err
}
