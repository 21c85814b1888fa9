package storage

import (
	"fmt"
	"io"
	"log"
	"math"
	"sort"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/status"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Measurement is one column value of one reading.
type Measurement struct {
	ID         uint      `gorm:"primaryKey"`
	RecordedAt time.Time `gorm:"index"`
	Name       string    `gorm:"size:64;index"`
	Value      float64
}

// Storage keeps readings in postgres, one row per column value.
type Storage struct {
	db     *gorm.DB
	logOut io.Closer
}

func (s *Storage) Init(config *config.Config, l *logrus.Logger) error {
	out := l.Writer()
	newLogger := logger.New(
		log.New(out, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(config.Database.DSN()), &gorm.Config{Logger: newLogger})
	if err != nil {
		out.Close()
		return fmt.Errorf("cannot connect to database: %w", err)
	}
	s.db = db
	s.logOut = out
	err = s.db.AutoMigrate(&Measurement{})
	if err != nil {
		return fmt.Errorf("cannot migrate database: %w", err)
	}
	return nil
}

func (s *Storage) Put(event *weather_station.Environment) error {
	rows := toMeasurements(event)
	if len(rows) == 0 {
		return nil
	}
	tx := s.db.Create(&rows)
	return tx.Error
}

func (s *Storage) Columns() ([]string, error) {
	recorded, err := s.recorded()
	if err != nil {
		return nil, err
	}
	return readable(recorded), nil
}

func (s *Storage) Series(column string) ([]status.Sample, error) {
	recorded, err := s.recorded()
	if err != nil {
		return nil, err
	}
	source, convert, err := resolveColumn(column, recorded)
	if err != nil {
		return nil, err
	}

	var rows []Measurement
	tx := s.db.Where("name = ?", source).Order("id").Find(&rows)
	if tx.Error != nil {
		return nil, tx.Error
	}
	return toSeries(rows, convert), nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		if err := sqlDB.Close(); err != nil {
			return err
		}
	}
	if s.logOut != nil {
		return s.logOut.Close()
	}
	return nil
}

func (s *Storage) recorded() ([]string, error) {
	var names []string
	tx := s.db.Model(&Measurement{}).Distinct("name").Order("name").Pluck("name", &names)
	return names, tx.Error
}

func toMeasurements(event *weather_station.Environment) []Measurement {
	names := make([]string, 0, len(event.Values))
	for name := range event.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]Measurement, 0, len(names))
	for _, name := range names {
		v := event.Values[name]
		if math.IsNaN(v) {
			continue
		}
		rows = append(rows, Measurement{RecordedAt: naive(event.Time), Name: name, Value: v})
	}
	return rows
}

func toSeries(rows []Measurement, convert func(float64) float64) []status.Sample {
	series := make([]status.Sample, 0, len(rows))
	for _, m := range rows {
		v := m.Value
		if convert != nil {
			v = convert(v)
		}
		series = append(series, status.Sample{Time: m.RecordedAt, Value: v})
	}
	return series
}
