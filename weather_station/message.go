package weather_station

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

const (
	ColumnTempC = "temp_c"
	ColumnVBat  = "vbat"
	ColumnNMsg  = "nmsg"
	ColumnRSSI  = "rssi"
)

var ErrInvalidMessage = errors.New("did not get a valid message")

// radio message fields are positional: the transmitter sends
// "TempC:21.50,Vbat:3.71,N:12" and a gateway may append ",RSSI:-71".
var radioColumns = []string{ColumnTempC, ColumnVBat, ColumnNMsg, ColumnRSSI}

// ParseRadioMessage decodes a transmitter payload into column values.
func ParseRadioMessage(msg []byte) (map[string]float64, error) {
	msg = bytes.TrimSpace(msg)
	if !bytes.HasPrefix(msg, []byte("TempC:")) {
		return nil, ErrInvalidMessage
	}
	fields := bytes.Split(msg, []byte(","))
	if len(fields) < 3 || len(fields) > len(radioColumns) {
		return nil, fmt.Errorf("%w: %d fields", ErrInvalidMessage, len(fields))
	}

	values := make(map[string]float64, len(fields))
	for i, field := range fields {
		_, raw, ok := bytes.Cut(field, []byte(":"))
		if !ok {
			return nil, fmt.Errorf("%w: field %q has no value", ErrInvalidMessage, field)
		}
		v, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMessage, err)
		}
		values[radioColumns[i]] = v
	}
	values[ColumnNMsg] = float64(int64(values[ColumnNMsg]))
	return values, nil
}
