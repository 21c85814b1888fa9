package impl

import (
	"fmt"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/bmxx80"
)

// bme280Source reads a BME280 wired to the receiver itself.
type bme280Source struct {
	conf   config.Sensor
	logger *logrus.Logger
	bus    i2c.BusCloser
	sensor *bmxx80.Dev
	done   chan struct{}
}

func NewBME280Source(conf config.Sensor, logger *logrus.Logger) weather_station.Source {
	return &bme280Source{conf: conf, logger: logger}
}

func (s *bme280Source) String() string {
	return fmt.Sprintf("bme280:%#x", s.conf.Address)
}

func (s *bme280Source) Readings() (<-chan weather_station.Environment, error) {
	bus, sensor, err := weather_station.PeripheralInitialisation(s.conf, s.logger)
	if err != nil {
		return nil, err
	}
	s.bus, s.sensor = bus, sensor

	envCh, err := sensor.SenseContinuous(s.conf.Interval)
	if err != nil {
		s.Halt()
		return nil, fmt.Errorf("cannot read from device: %w", err)
	}

	done := make(chan struct{})
	s.done = done
	out := make(chan weather_station.Environment)
	go func() {
		defer close(out)
		for env := range envCh {
			select {
			case out <- fromPhysic(env, time.Now()):
			case <-done:
				return
			}
		}
	}()
	return out, nil
}

func (s *bme280Source) Halt() error {
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	var err error
	if s.sensor != nil {
		err = s.sensor.Halt()
		s.sensor = nil
	}
	if s.bus != nil {
		if cerr := s.bus.Close(); err == nil {
			err = cerr
		}
		s.bus = nil
	}
	return err
}
