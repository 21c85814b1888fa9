package weather_station

import (
	"fmt"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// PeripheralInitialisation opens the I²C bus and the BME280 on it. The caller
// owns both and must halt the sensor before closing the bus.
func PeripheralInitialisation(conf config.Sensor, logger *logrus.Logger) (i2c.BusCloser, *bmxx80.Dev, error) {
	// Make sure peripheral is initialized.
	state, err := host.Init()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	for _, driver := range state.Loaded {
		logger.Debugf("periph driver loaded: %s", driver)
	}
	for _, failure := range state.Skipped {
		logger.Debugf("periph driver skipped: %s: %s", failure.D, failure.Err)
	}
	// Having drivers failing to load may not require process termination. It
	// is possible to continue to run in partial failure mode.
	for _, failure := range state.Failed {
		logger.Warnf("periph driver failed: %s: %v", failure.D, failure.Err)
	}

	bus, err := i2creg.Open(conf.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open I2C bus %q: %w", conf.Bus, err)
	}
	logger.Debugf("I2C bus open call successful. Got: %v", bus.String())

	// Pressure O16x, temperature O2x, humidity O1x, filter F16.
	sensor, err := bmxx80.NewI2C(bus, conf.Address, &bmxx80.Opts{
		Temperature: bmxx80.O2x,
		Pressure:    bmxx80.O16x,
		Humidity:    bmxx80.O1x,
		Filter:      bmxx80.F16,
	})
	if err != nil {
		if cerr := bus.Close(); cerr != nil {
			logger.Warnf("cannot close I2C bus: %s", cerr)
		}
		return nil, nil, fmt.Errorf("cannot open bme280 at %#x: %w", conf.Address, err)
	}
	return bus, sensor, nil
}
