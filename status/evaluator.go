// Package status derives the latest-status summary of a recorded series:
// latest value and age, 24h extremes, emergence threshold distance and the
// 2h temperature trend.
package status

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	// FreshWindow bounds the samples used for the min/max summary. A sample
	// exactly 24h old is out.
	FreshWindow = 24 * time.Hour
	// TrendWindow bounds the samples used for the slope fit. A sample
	// exactly 2h old is still in.
	TrendWindow = 2 * time.Hour
)

// Sample is a single recorded value.
type Sample struct {
	Time  time.Time
	Value float64
}

// Config holds the evaluation parameters. Thresholds are given in Fahrenheit
// and converted to the unit of the evaluated column.
type Config struct {
	UTCOffsetHours       float64
	ThresholdF           float64
	TrendThresholdFPerHr float64
}

func DefaultConfig() Config {
	return Config{
		ThresholdF:           64,
		TrendThresholdFPerHr: 0.1,
	}
}

// ageHours is the age of t at now. Log timestamps are naive local times, the
// offset moves them onto the clock now was read from.
func (c Config) ageHours(t, now time.Time) float64 {
	return now.Sub(t).Hours() + c.UTCOffsetHours
}

// Trend is the direction of the fitted temperature slope.
type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendSteady  Trend = "steady"
)

// Sign maps the trend onto -1, 0, 1.
func (t Trend) Sign() int {
	switch t {
	case TrendRising:
		return 1
	case TrendFalling:
		return -1
	}
	return 0
}

// ClassifyTrend compares slope against a non-negative threshold.
func ClassifyTrend(slope, threshold float64) Trend {
	switch {
	case slope > threshold:
		return TrendRising
	case slope < -threshold:
		return TrendFalling
	}
	return TrendSteady
}

// Result is either a GenericResult or a TemperatureResult.
type Result interface {
	Generic() GenericResult
	isResult()
}

// GenericResult is the summary every column gets.
type GenericResult struct {
	Column             string    `json:"column_name"`
	LatestValue        float64   `json:"latest_value"`
	LatestTime         time.Time `json:"latest_time"`
	SecondsSinceLatest float64   `json:"seconds_since_latest"`
	Min24h             float64   `json:"min_24h"`
	Max24h             float64   `json:"max_24h"`
}

func (r GenericResult) Generic() GenericResult { return r }
func (GenericResult) isResult()                {}

// SinceLatest is the age of the latest sample.
func (r GenericResult) SinceLatest() time.Duration {
	return time.Duration(r.SecondsSinceLatest * float64(time.Second))
}

// TemperatureResult extends GenericResult for temp_c and temp_f columns.
// TrendSlope is nil when the trend window holds fewer than two distinct
// timestamps.
type TemperatureResult struct {
	GenericResult
	Unit             Unit     `json:"unit"`
	ThresholdValue   float64  `json:"threshold_value"`
	ThresholdDiff    float64  `json:"threshold_diff"`
	ThresholdCrossed bool     `json:"threshold_crossed"`
	TrendSlope       *float64 `json:"trend_slope,omitempty"`
	TrendDirection   Trend    `json:"trend_direction"`
}

// Evaluate summarises series for column at now. It reads nothing besides its
// arguments, so concurrent calls are safe.
func Evaluate(series []Sample, column string, cfg Config, now time.Time) (Result, error) {
	if len(series) == 0 {
		return nil, &EmptySeriesError{Column: column}
	}

	latest := series[0]
	for _, s := range series[1:] {
		if s.Time.After(latest.Time) {
			latest = s
		}
	}

	ages := make([]float64, len(series))
	for i, s := range series {
		ages[i] = cfg.ageHours(s.Time, now)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for i, s := range series {
		if ages[i] >= FreshWindow.Hours() {
			continue
		}
		lo = math.Min(lo, s.Value)
		hi = math.Max(hi, s.Value)
	}
	if math.IsInf(lo, 1) {
		return nil, &NoDataInWindowError{Column: column, Window: FreshWindow, Latest: latest.Time}
	}

	generic := GenericResult{
		Column:             column,
		LatestValue:        latest.Value,
		LatestTime:         latest.Time,
		SecondsSinceLatest: cfg.ageHours(latest.Time, now) * 3600,
		Min24h:             lo,
		Max24h:             hi,
	}

	unit, ok := UnitOf(column)
	if !ok {
		return generic, nil
	}

	threshold := unit.FromF(cfg.ThresholdF)
	res := TemperatureResult{
		GenericResult:  generic,
		Unit:           unit,
		ThresholdValue: threshold,
		ThresholdDiff:  threshold - latest.Value,
		TrendDirection: TrendSteady,
	}
	res.ThresholdCrossed = res.ThresholdDiff < 0

	var xs, ys []float64
	for i, s := range series {
		if ages[i] <= TrendWindow.Hours() {
			xs = append(xs, -ages[i])
			ys = append(ys, s.Value)
		}
	}
	if len(xs) < 2 || stat.Variance(xs, nil) == 0 {
		return res, nil
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	res.TrendSlope = &slope
	res.TrendDirection = ClassifyTrend(slope, unit.DeltaFromF(cfg.TrendThresholdFPerHr))
	return res, nil
}
