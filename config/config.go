package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/evkuzin/cicadawatch/status"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type telegram struct {
	Key    string `yaml:"key"`
	Debug  bool   `yaml:"debug"`
	ChatID int64  `yaml:"chat_id"`
}

type Database struct {
	Host     string `yaml:"host"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Port     string `yaml:"port"`
}

// DSN is the postgres connection string for gorm.
func (d Database) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		d.Host, d.User, d.Password, d.Database, d.Port)
}

type Storage struct {
	Backend  string   `yaml:"backend"`
	DataFile string   `yaml:"data_file"`
	Columns  []string `yaml:"columns"`
}

type Redis struct {
	URL     string `yaml:"url"`
	Channel string `yaml:"channel"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Sensor struct {
	Enable   bool          `yaml:"enable"`
	Bus      string        `yaml:"bus"`
	Address  uint16        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
}

type Server struct {
	Addr       string        `yaml:"addr"`
	PlotWindow time.Duration `yaml:"plot_window"`
}

type Evaluator struct {
	UTCOffsetHours       float64 `yaml:"utc_offset_hours"`
	ThresholdF           float64 `yaml:"threshold_f"`
	TrendThresholdFPerHr float64 `yaml:"trend_threshold_f_per_hr"`
}

type Bot struct {
	ServerAddress string        `yaml:"server_address"`
	Column        string        `yaml:"column"`
	BandF         float64       `yaml:"band_f"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Config struct {
	LogLevel  string    `yaml:"log_level"`
	Storage   Storage   `yaml:"storage"`
	Database  *Database `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	MQTT      *MQTT     `yaml:"mqtt"`
	Sensor    Sensor    `yaml:"sensor"`
	Server    Server    `yaml:"server"`
	Evaluator Evaluator `yaml:"evaluator"`
	Telegram  telegram  `yaml:"telegram"`
	Bot       Bot       `yaml:"bot"`
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	ev := status.DefaultConfig()
	return &Config{
		LogLevel: "info",
		Storage: Storage{
			Backend:  BackendFile,
			DataFile: "temp_data",
			Columns:  []string{"temp_c", "vbat", "nmsg", "rssi"},
		},
		Sensor: Sensor{
			Address:  0x76,
			Interval: 2 * time.Second,
		},
		Server: Server{
			Addr:       ":8080",
			PlotWindow: 48 * time.Hour,
		},
		Evaluator: Evaluator{
			UTCOffsetHours:       -4,
			ThresholdF:           ev.ThresholdF,
			TrendThresholdFPerHr: ev.TrendThresholdFPerHr,
		},
		Redis: Redis{Channel: "cicadawatch:readings"},
		Bot: Bot{
			ServerAddress: "localhost:8080",
			Column:        status.ColumnTempF,
			BandF:         status.DefaultPolicy().BandF,
			Timeout:       30 * time.Second,
		},
	}
}

// NewConfig reads the YAML file f over the defaults, then applies the
// environment (and a .env file, if present) on top.
func NewConfig(f string) (*Config, error) {
	conf := Default()
	if f != "" {
		rawConf, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("cannot open a Config: %w", err)
		}
		err = yaml.Unmarshal(rawConf, conf)
		if err != nil {
			return nil, fmt.Errorf("cannot unmarshall a Config: %w", err)
		}
	}

	_ = godotenv.Load()
	if err := conf.applyEnv(); err != nil {
		return nil, err
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TEMP_SERVER_DATA_FILE"); v != "" {
		c.Storage.DataFile = v
	}
	if v := os.Getenv("TEMP_SERVER_UTC_OFFSET"); v != "" {
		offset, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid TEMP_SERVER_UTC_OFFSET %q: %w", v, err)
		}
		c.Evaluator.UTCOffsetHours = offset
	}
	if v := os.Getenv("CICADA_TELEGRAM_KEY"); v != "" {
		c.Telegram.Key = v
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.DataFile == "" {
			return fmt.Errorf("storage.data_file is required for the %s backend", BackendFile)
		}
	case BackendPostgres:
		if c.Database == nil {
			return fmt.Errorf("database section is required for the %s backend", BackendPostgres)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Evaluator.TrendThresholdFPerHr <= 0 {
		return fmt.Errorf("evaluator.trend_threshold_f_per_hr must be positive")
	}
	if c.Server.PlotWindow <= 0 {
		return fmt.Errorf("server.plot_window must be positive")
	}
	if c.Bot.BandF < 0 {
		return fmt.Errorf("bot.band_f must not be negative")
	}
	if c.Bot.Timeout <= 0 {
		return fmt.Errorf("bot.timeout must be positive")
	}
	return nil
}

// ValidatePost checks the settings only the status post needs.
func (c *Config) ValidatePost() error {
	if c.Telegram.ChatID == 0 {
		return fmt.Errorf("telegram.chat_id is required to post")
	}
	return nil
}

// EvaluatorConfig is the evaluation parameter set handed to status.Evaluate.
func (c *Config) EvaluatorConfig() status.Config {
	return status.Config{
		UTCOffsetHours:       c.Evaluator.UTCOffsetHours,
		ThresholdF:           c.Evaluator.ThresholdF,
		TrendThresholdFPerHr: c.Evaluator.TrendThresholdFPerHr,
	}
}

// Policy is the message composer policy for the bot.
func (c *Config) Policy() status.Policy {
	p := status.DefaultPolicy()
	p.BandF = c.Bot.BandF
	p.PlotHours = int(c.Server.PlotWindow.Hours())
	return p
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger() *logrus.Logger {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	return &logrus.Logger{
		Out:          os.Stdout,
		Formatter:    &logrus.TextFormatter{},
		Hooks:        make(logrus.LevelHooks),
		Level:        level,
		ReportCaller: true,
	}
}
