package impl

import (
	"math"
	"time"

	"github.com/evkuzin/cicadawatch/weather_station"
	"periph.io/x/conn/v3/physic"
)

const (
	ColumnHumidity = "humidity"
	ColumnPressure = "pressure"
	ColumnDewPoint = "dew_c"

	// Magnus formula constants, valid for -45..60 °C.
	magnusB = 237.7
	magnusA = 17.27
)

func fromPhysic(env physic.Env, t time.Time) weather_station.Environment {
	tempC := celsius(env.Temperature)
	rh := float64(env.Humidity) / float64(physic.PercentRH)
	values := map[string]float64{
		weather_station.ColumnTempC: tempC,
		ColumnHumidity:              rh,
		ColumnPressure:              hectoPascal(env.Pressure),
	}
	if rh > 0 {
		values[ColumnDewPoint] = dewPoint(tempC, rh)
	}
	return weather_station.Environment{Time: t, Values: values}
}

func celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}

func hectoPascal(p physic.Pressure) float64 {
	return float64(p) / float64(100*physic.Pascal)
}

func dewPoint(tempC, rh float64) float64 {
	gamma := math.Log(rh/100) + magnusA*tempC/(magnusB+tempC)
	return magnusB * gamma / (magnusA - gamma)
}
