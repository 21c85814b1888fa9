package status

import (
	"fmt"
	"strings"
	"time"
)

// EmptySeriesError is returned when a series holds no samples at all.
type EmptySeriesError struct {
	Column string
}

func (e *EmptySeriesError) Error() string {
	return fmt.Sprintf("no samples recorded for column %s", e.Column)
}

// NoDataInWindowError is returned when the feed is stale: nothing was recorded
// inside the freshness window relative to the evaluation time.
type NoDataInWindowError struct {
	Column string
	Window time.Duration
	Latest time.Time
}

func (e *NoDataInWindowError) Error() string {
	return fmt.Sprintf("no samples for column %s in the last %s (latest at %s)",
		e.Column, e.Window, e.Latest.Format(time.RFC3339))
}

// UnknownColumnError is returned by series sources when the requested column
// is neither recorded nor derivable.
type UnknownColumnError struct {
	Column    string
	Available []string
}

func (e *UnknownColumnError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown column %s", e.Column)
	}
	return fmt.Sprintf("unknown column %s, available: %s", e.Column, strings.Join(e.Available, ", "))
}
