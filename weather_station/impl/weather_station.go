package impl

import (
	"fmt"
	"sync"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/storage"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	readingsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cicadawatch_receiver_readings_received_total",
		Help: "Total number of readings received, by source.",
	}, []string{"source"})
	readingsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cicadawatch_receiver_readings_stored_total",
		Help: "Total number of readings appended to storage.",
	})
	readingsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cicadawatch_receiver_readings_failed_total",
		Help: "Total number of readings rejected or lost, by stage.",
	}, []string{"stage"})
)

// weatherStationImpl fans readings in from every configured source and
// appends them to storage.
type weatherStationImpl struct {
	sources   []weather_station.Source
	logger    *logrus.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	wg        *sync.WaitGroup
	Storage   storage.Adapter
	publisher weather_station.Publisher
	limit     int
	now       func() time.Time
}

func (ws *weatherStationImpl) Init(config *config.Config, logger *logrus.Logger) error {
	ws.logger = logger

	st, err := storage.NewStorage(config)
	if err != nil {
		return err
	}
	if err := st.Init(config, logger); err != nil {
		return fmt.Errorf("cannot init storage: %w", err)
	}
	ws.Storage = st

	if config.MQTT != nil {
		ws.sources = append(ws.sources, NewMQTTSource(*config.MQTT, logger))
	}
	if config.Sensor.Enable {
		ws.sources = append(ws.sources, NewBME280Source(config.Sensor, logger))
	}
	if len(ws.sources) == 0 {
		return fmt.Errorf("no readings source configured, enable mqtt or sensor")
	}

	if config.Redis.URL != "" {
		pub, err := NewRedisPublisher(config.Redis)
		if err != nil {
			ws.logger.Warnf("redis unavailable, readings will not be published: %s", err)
		} else {
			ws.publisher = pub
		}
	}
	return nil
}

// Start is the main daemon loop. It returns after Stop, after the reading
// limit is reached, or when every source has closed.
func (ws *weatherStationImpl) Start() {
	ws.logger.Info("Weather station starting...")

	merged := make(chan weather_station.Environment)
	started := 0
	for _, src := range ws.sources {
		ch, err := src.Readings()
		if err != nil {
			ws.logger.Errorf("cannot start source %s: %s", src, err)
			continue
		}
		started++
		ws.logger.Infof("reading from %s", src)
		ws.wg.Add(1)
		go ws.forward(src, ch, merged)
	}
	if started == 0 {
		ws.logger.Error("no readings source could be started")
		ws.shutdown()
		return
	}
	go func() {
		ws.wg.Wait()
		close(merged)
	}()

	count := 0
	for env := range merged {
		ws.handle(env)
		count++
		if ws.limit > 0 && count >= ws.limit {
			ws.logger.Infof("received %d readings, stopping", count)
			break
		}
	}
	ws.shutdown()
}

func (ws *weatherStationImpl) Stop() {
	ws.stopOnce.Do(func() {
		ws.logger.Info("Stopping weather station")
		close(ws.stop)
	})
}

func (ws *weatherStationImpl) forward(src weather_station.Source, in <-chan weather_station.Environment, out chan<- weather_station.Environment) {
	defer ws.wg.Done()
	for {
		select {
		case <-ws.stop:
			return
		case env, ok := <-in:
			if !ok {
				ws.logger.Warnf("source %s closed", src)
				return
			}
			if env.Source == "" {
				env.Source = src.String()
			}
			select {
			case out <- env:
			case <-ws.stop:
				return
			}
		}
	}
}

func (ws *weatherStationImpl) handle(env weather_station.Environment) {
	if env.Time.IsZero() {
		env.Time = ws.now()
	}
	readingsReceived.WithLabelValues(env.Source).Inc()
	ws.logger.WithFields(logrus.Fields{
		"source": env.Source,
		"time":   env.Time.Format(storage.TimestampLayout),
	}).Debugf("reading %v", env.Values)

	if err := ws.Storage.Put(&env); err != nil {
		readingsFailed.WithLabelValues("store").Inc()
		ws.logger.Warnf("cannot write to storage: %s", err.Error())
	} else {
		readingsStored.Inc()
	}

	if ws.publisher != nil {
		if err := ws.publisher.Publish(&env); err != nil {
			readingsFailed.WithLabelValues("publish").Inc()
			ws.logger.Warnf("cannot publish reading: %s", err.Error())
		}
	}
}

func (ws *weatherStationImpl) shutdown() {
	ws.Stop()
	for _, src := range ws.sources {
		if err := src.Halt(); err != nil {
			ws.logger.Warnf("Error during shutdown of %s: %v", src, err)
		}
	}
	ws.wg.Wait()
	if ws.publisher != nil {
		if err := ws.publisher.Close(); err != nil {
			ws.logger.Warnf("cannot close publisher: %s", err)
		}
	}
	if ws.Storage != nil {
		if err := ws.Storage.Close(); err != nil {
			ws.logger.Warnf("cannot close storage: %s", err)
		}
	}
}

// NewWeatherStation return a new instance of a WeatherStation daemon. A
// positive limit stops it after that many readings.
func NewWeatherStation(limit int) weather_station.WeatherStation {
	return &weatherStationImpl{
		stop:  make(chan struct{}),
		wg:    &sync.WaitGroup{},
		limit: limit,
		now:   time.Now,
	}
}
