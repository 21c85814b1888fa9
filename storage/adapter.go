package storage

import (
	"fmt"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/status"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/sirupsen/logrus"
)

// Adapter is the readings log. Series returns every sample of a column in
// insertion order; Columns lists every column Series can serve.
type Adapter interface {
	Init(config *config.Config, logger *logrus.Logger) error
	Put(event *weather_station.Environment) error
	Columns() ([]string, error)
	Series(column string) ([]status.Sample, error)
	Close() error
}

// NewStorage returns the backend selected by storage.backend. It still needs Init.
func NewStorage(conf *config.Config) (Adapter, error) {
	switch conf.Storage.Backend {
	case config.BackendFile, "":
		return &FileStorage{}, nil
	case config.BackendPostgres:
		return &Storage{}, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", conf.Storage.Backend)
}

// resolveColumn maps a requested column onto a recorded one. temp_f is
// derived from temp_c when only Celsius was recorded.
func resolveColumn(column string, recorded []string) (string, func(float64) float64, error) {
	if contains(recorded, column) {
		return column, nil, nil
	}
	if column == status.ColumnTempF && contains(recorded, status.ColumnTempC) {
		return status.ColumnTempC, status.CToF, nil
	}
	return "", nil, &status.UnknownColumnError{Column: column, Available: readable(recorded)}
}

func readable(recorded []string) []string {
	cols := append([]string(nil), recorded...)
	if contains(recorded, status.ColumnTempC) && !contains(recorded, status.ColumnTempF) {
		cols = append(cols, status.ColumnTempF)
	}
	return cols
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// naive keeps the wall clock of t and drops its zone. Both backends store
// naive local times; readers apply the configured UTC offset.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
