package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/status"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/sirupsen/logrus"
)

const (
	TimestampColumn = "timestamp"
	// TimestampLayout is a naive local time, as written by the receiver.
	TimestampLayout = "2006-01-02T15:04:05.000000"
	// parseLayout also accepts rows without the fractional part.
	parseLayout = "2006-01-02T15:04:05"
)

// FileStorage is the whitespace-delimited text log: a header row naming the
// columns, then one row per reading.
type FileStorage struct {
	path    string
	logger  *logrus.Logger
	mu      sync.Mutex
	f       *os.File
	columns []string
}

func (s *FileStorage) Init(config *config.Config, logger *logrus.Logger) error {
	s.path = config.Storage.DataFile
	s.logger = logger

	header, err := readHeader(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		header = append([]string{TimestampColumn}, config.Storage.Columns...)
		err = os.WriteFile(s.path, []byte(strings.Join(header, " ")+"\n"), 0o644)
		if err != nil {
			return fmt.Errorf("cannot create data file: %w", err)
		}
		logger.Infof("created data file %s with columns %v", s.path, header)
	case err != nil:
		return err
	}
	if len(header) == 0 || header[0] != TimestampColumn {
		return fmt.Errorf("data file %s: header must start with %s", s.path, TimestampColumn)
	}
	s.columns = header[1:]
	return nil
}

// Put appends env as one row. Columns the reading lacks are written as nan.
func (s *FileStorage) Put(env *weather_station.Environment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("cannot open data file: %w", err)
		}
		s.f = f
	}

	var line strings.Builder
	line.WriteString(env.Time.Format(TimestampLayout))
	for _, col := range s.columns {
		line.WriteByte(' ')
		line.WriteString(formatValue(env.Value(col)))
	}
	line.WriteByte('\n')
	_, err := s.f.WriteString(line.String())
	return err
}

func (s *FileStorage) Columns() ([]string, error) {
	header, err := readHeader(s.path)
	if err != nil {
		return nil, err
	}
	return readable(header[1:]), nil
}

// Series reads the whole log. Rows with the wrong field count, unparsable
// timestamps or nan values are skipped.
func (s *FileStorage) Series(column string) ([]status.Sample, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("cannot open data file: %w", err)
	}
	defer f.Close()
	return parseLog(f, column)
}

func (s *FileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func parseLog(r io.Reader, column string) ([]status.Sample, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("data file has no header")
	}
	header := strings.Fields(scanner.Text())
	tsIdx := indexOf(header, TimestampColumn)
	if tsIdx < 0 {
		return nil, fmt.Errorf("data file header has no %s column", TimestampColumn)
	}
	recorded := append(append([]string(nil), header[:tsIdx]...), header[tsIdx+1:]...)
	source, convert, err := resolveColumn(column, recorded)
	if err != nil {
		return nil, err
	}
	valIdx := indexOf(header, source)

	var series []status.Sample
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != len(header) {
			continue
		}
		ts, err := time.Parse(parseLayout, fields[tsIdx])
		if err != nil {
			continue
		}
		v, err := strconv.ParseFloat(fields[valIdx], 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		if convert != nil {
			v = convert(v)
		}
		series = append(series, status.Sample{Time: ts, Value: v})
	}
	return series, scanner.Err()
}

func readHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	header := strings.Fields(line)
	if len(header) == 0 {
		return nil, fmt.Errorf("data file %s has no header", path)
	}
	return header, nil
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
