package status

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Describe renders r as the one-line latest status used by the text endpoint
// and the chat bot.
func Describe(r Result) string {
	g := r.Generic()
	text := fmt.Sprintf("Latest value for column %s was %s, %s ago.",
		g.Column, significant(g.LatestValue, 4), g.SinceLatest().Round(time.Second))

	t, ok := r.(TemperatureResult)
	if !ok {
		return text
	}
	text += fmt.Sprintf(" which is %s below the emergence temperature.", significant(t.ThresholdDiff, 3))
	if t.ThresholdCrossed {
		text += " EMERGENCE IMMINENT!"
	}
	return text
}

// significant formats v to prec significant digits, keeping a trailing ".0"
// on whole numbers so 65 reads as "65.0".
func significant(v float64, prec int) string {
	s := strconv.FormatFloat(v, 'g', prec, 64)
	if strings.ContainsAny(s, ".eIN") {
		return s
	}
	return s + ".0"
}
