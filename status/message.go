package status

import (
	"fmt"
	"strings"
)

// Policy holds the three status templates and the width of the "within"
// band above the threshold. Templates take the latest value and the unit.
type Policy struct {
	Below     string
	Within    string
	Above     string
	BandF     float64
	PlotHours int
}

func DefaultPolicy() Policy {
	return Policy{
		Below:     "The current ground temperature is %.1f degrees %s, which is below the target temperature. Cicadas are cozy in their burrows.",
		Within:    "The current ground temperature is %.1f degrees %s, which might be warm enough for the cicadas to emerge.",
		Above:     "The current ground temperature is %.1f degrees %s, which probably means the cicadas are on the loose!",
		BandF:     1.5,
		PlotHours: 48,
	}
}

// Band is the template slot a temperature falls in.
type Band int

const (
	BandBelow Band = iota
	BandWithin
	BandAbove
)

// Post is a composed status update.
type Post struct {
	Text    string
	AltText string
}

var trendWords = map[Trend]string{
	TrendRising:  "increasing",
	TrendFalling: "decreasing",
	TrendSteady:  "staying the same",
}

// BandOf places the latest value relative to the threshold band.
func (p Policy) BandOf(r TemperatureResult) Band {
	switch {
	case r.LatestValue < r.ThresholdValue:
		return BandBelow
	case r.LatestValue <= r.ThresholdValue+r.Unit.DeltaFromF(p.BandF):
		return BandWithin
	}
	return BandAbove
}

// Compose renders the status text and the chart description for r.
func Compose(r TemperatureResult, p Policy) Post {
	tmpl := p.Below
	switch p.BandOf(r) {
	case BandWithin:
		tmpl = p.Within
	case BandAbove:
		tmpl = p.Above
	}

	trend, ok := trendWords[r.TrendDirection]
	if !ok {
		trend = trendWords[TrendSteady]
	}

	var alt strings.Builder
	fmt.Fprintf(&alt, "A plot of temperature versus time for the last %d hours. ", p.PlotHours)
	fmt.Fprintf(&alt, "There is a horizontal red line marking %.4g degrees %s. ", r.ThresholdValue, r.Unit)
	fmt.Fprintf(&alt, "The temperature is currently %s. ", trend)
	fmt.Fprintf(&alt, "In the last 24 hours, the minimum value was %.1f and the maximum value was %.1f", r.Min24h, r.Max24h)

	return Post{
		Text:    fmt.Sprintf(tmpl, r.LatestValue, r.Unit),
		AltText: alt.String(),
	}
}
