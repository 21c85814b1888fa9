package weather_station

import (
	"math"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/sirupsen/logrus"
)

// Environment is one row of the readings log: a timestamp plus the values of
// whatever columns the source measured.
type Environment struct {
	Time   time.Time          `json:"timestamp"`
	Values map[string]float64 `json:"values"`
	Source string             `json:"source,omitempty"`
}

// Value returns the reading for column, NaN when it was not measured.
func (e *Environment) Value(column string) float64 {
	v, ok := e.Values[column]
	if !ok {
		return math.NaN()
	}
	return v
}

// Source produces readings until halted.
type Source interface {
	Readings() (<-chan Environment, error)
	Halt() error
	String() string
}

// Publisher fans readings out to live consumers.
type Publisher interface {
	Publish(env *Environment) error
	Close() error
}

type WeatherStation interface {
	Init(config *config.Config, logger *logrus.Logger) error
	Start()
	Stop()
}
