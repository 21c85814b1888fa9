package status

import "strings"

// Unit is the temperature scale a column is recorded in.
type Unit string

const (
	Celsius    Unit = "C"
	Fahrenheit Unit = "F"
)

const (
	ColumnTempC = "temp_c"
	ColumnTempF = "temp_f"
)

// CToF converts an absolute Celsius temperature to Fahrenheit.
func CToF(c float64) float64 {
	return c*9/5 + 32
}

// FToC converts an absolute Fahrenheit temperature to Celsius.
func FToC(f float64) float64 {
	return (f - 32) * 5 / 9
}

// UnitOf reports the unit of a temperature column. Only temp_c and temp_f
// follow the convention, every other column is a generic quantity.
func UnitOf(column string) (Unit, bool) {
	switch strings.TrimSpace(column) {
	case ColumnTempC:
		return Celsius, true
	case ColumnTempF:
		return Fahrenheit, true
	}
	return "", false
}

// FromF expresses an absolute Fahrenheit value in u.
func (u Unit) FromF(f float64) float64 {
	if u == Celsius {
		return FToC(f)
	}
	return f
}

// DeltaFromF expresses a Fahrenheit difference (a slope or a band width) in u.
// Differences scale but do not shift.
func (u Unit) DeltaFromF(f float64) float64 {
	if u == Celsius {
		return f * 5 / 9
	}
	return f
}
