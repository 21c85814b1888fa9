package weather_station

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRadioMessage(t *testing.T) {
	values, err := ParseRadioMessage([]byte("TempC:18.25,Vbat:3.71,N:42\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		ColumnTempC: 18.25,
		ColumnVBat:  3.71,
		ColumnNMsg:  42,
	}, values)

	values, err = ParseRadioMessage([]byte("TempC:-2.5,Vbat:3.2,N:7,RSSI:-81"))
	require.NoError(t, err)
	assert.Equal(t, -81.0, values[ColumnRSSI])
	assert.Equal(t, -2.5, values[ColumnTempC])
}

func TestParseRadioMessageInvalid(t *testing.T) {
	for _, msg := range []string{
		"",
		"TempU:18.25,Vbat:3.71,N:42",
		"hello",
		"TempC:18.25,Vbat:3.71",
		"TempC:18.25,Vbat:3.71,N:4,RSSI:-80,X:1",
		"TempC:warm,Vbat:3.71,N:42",
		"TempC:18.25,Vbat,N:42",
	} {
		_, err := ParseRadioMessage([]byte(msg))
		assert.True(t, errors.Is(err, ErrInvalidMessage), "message %q: %v", msg, err)
	}
}

func TestEnvironmentValue(t *testing.T) {
	env := Environment{Values: map[string]float64{ColumnTempC: 20}}
	assert.Equal(t, 20.0, env.Value(ColumnTempC))
	assert.True(t, math.IsNaN(env.Value(ColumnRSSI)))
}
