package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/status"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	series map[string][]status.Sample
	err    error
}

func (m *memStore) Init(*config.Config, *logrus.Logger) error { return nil }
func (m *memStore) Put(*weather_station.Environment) error    { return nil }
func (m *memStore) Close() error                              { return nil }

func (m *memStore) Columns() ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	cols := make([]string, 0, len(m.series))
	for c := range m.series {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}

func (m *memStore) Series(column string) ([]status.Sample, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.series[column]
	if !ok {
		cols, _ := m.Columns()
		return nil, &status.UnknownColumnError{Column: column, Available: cols}
	}
	return s, nil
}

var t0 = time.Date(2021, 5, 10, 12, 0, 0, 0, time.UTC)

func at(h float64, v float64) status.Sample {
	return status.Sample{Time: t0.Add(time.Duration(h * float64(time.Hour))), Value: v}
}

func newTestServer(store *memStore) *Server {
	logger := logrus.New()
	logger.Out = io.Discard
	conf := config.Default()
	conf.Evaluator.UTCOffsetHours = 0
	s := NewServer(store, conf, logger)
	s.now = func() time.Time { return t0.Add(2*time.Hour - time.Minute) }
	return s
}

func fixtureStore() *memStore {
	return &memStore{series: map[string][]status.Sample{
		"temp_f":   {at(-40, 50), at(0, 60), at(1, 63), at(1.9, 65)},
		"humidity": {at(0, 40), at(1, 55), at(1.5, 48)},
		"vbat":     {at(-30, 3.7)},
		"rssi":     {},
	}}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestLatestJSON(t *testing.T) {
	rec := get(t, newTestServer(fixtureStore()), "/latestjson/temp_f")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var res status.TemperatureResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "temp_f", res.Column)
	assert.Equal(t, 65.0, res.LatestValue)
	assert.Equal(t, 60.0, res.Min24h, "the 40h old sample is outside the window")
	assert.Equal(t, 65.0, res.Max24h)
	assert.InDelta(t, -1.0, res.ThresholdDiff, 1e-9)
	assert.True(t, res.ThresholdCrossed)
	assert.Equal(t, status.TrendRising, res.TrendDirection)
	require.NotNil(t, res.TrendSlope)
	assert.InDelta(t, 2.638, *res.TrendSlope, 1e-3)
}

func TestLatestJSONGenericColumn(t *testing.T) {
	rec := get(t, newTestServer(fixtureStore()), "/latestjson/humidity")
	require.Equal(t, http.StatusOK, rec.Code)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fields))
	assert.Equal(t, 48.0, fields["latest_value"])
	assert.Equal(t, 40.0, fields["min_24h"])
	assert.NotContains(t, fields, "threshold_diff")
	assert.NotContains(t, fields, "trend_direction")
}

func TestLatestText(t *testing.T) {
	rec := get(t, newTestServer(fixtureStore()), "/latest/temp_f")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Latest value for column temp_f was 65.0, 5m0s ago. which is -1.0 below the emergence temperature. EMERGENCE IMMINENT!",
		rec.Body.String())
}

func TestLatestErrors(t *testing.T) {
	s := newTestServer(fixtureStore())
	cases := []struct {
		path string
		code int
	}{
		{"/latest/pressure", http.StatusNotFound},
		{"/latestjson/pressure", http.StatusNotFound},
		{"/latest/vbat", http.StatusServiceUnavailable},
		{"/latestjson/rssi", http.StatusServiceUnavailable},
		{"/png/rssi", http.StatusServiceUnavailable},
		{"/plot/pressure", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			rec := get(t, s, tc.path)
			assert.Equal(t, tc.code, rec.Code)
			assert.Contains(t, rec.Body.String(), "not available")
		})
	}

	broken := newTestServer(&memStore{err: errors.New("disk on fire")})
	assert.Equal(t, http.StatusInternalServerError, get(t, broken, "/latest/temp_f").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, broken, "/").Code)
}

func TestIndex(t *testing.T) {
	rec := get(t, newTestServer(fixtureStore()), "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "[humidity, rssi, temp_f, vbat]")
}

func TestPNG(t *testing.T) {
	rec := get(t, newTestServer(fixtureStore()), "/png/temp_f")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))

	rec = get(t, newTestServer(fixtureStore()), "/png/vbat")
	require.Equal(t, http.StatusOK, rec.Code, "plots do not require fresh data")
}

func TestHTMLPlot(t *testing.T) {
	rec := get(t, newTestServer(fixtureStore()), "/plot/temp_f")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "temp_server: temp_f")
	assert.Contains(t, body, "echarts")
	assert.Contains(t, body, `"name":"emergence"`)
	assert.Contains(t, body, `"lineStyle":{"color":"red","width":1,"type":"dotted"}`)

	rec = get(t, newTestServer(fixtureStore()), "/plot/humidity")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "emergence")
}

func TestPDFPlot(t *testing.T) {
	s := newTestServer(fixtureStore())
	var gotHTML []byte
	s.pdf = func(html []byte) ([]byte, error) {
		gotHTML = html
		return []byte("%PDF-1.4"), nil
	}
	rec := get(t, s, "/pdf/temp_f")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "%PDF-1.4", rec.Body.String())
	assert.Contains(t, string(gotHTML), "temp_server: temp_f")

	s.pdf = func([]byte) ([]byte, error) { return nil, errors.New("wkhtmltopdf not found") }
	assert.Equal(t, http.StatusInternalServerError, get(t, s, "/pdf/temp_f").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(fixtureStore())
	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	get(t, s, "/latest/temp_f")
	rec = get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cicadawatch_dashboard_evaluations_total")
}

func TestRecentWindow(t *testing.T) {
	s := newTestServer(fixtureStore())
	s.window = 2 * time.Hour

	series, err := s.recent("temp_f")
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, 60.0, series[0].Value)

	s.store = &memStore{series: map[string][]status.Sample{"temp_f": {at(3, 1), at(1, 2), at(2, 3)}}}
	series, err = s.recent("temp_f")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 1}, []float64{series[0].Value, series[1].Value, series[2].Value})
}
