package impl

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/sirupsen/logrus"
)

const mqttBuffer = 16

// mqttSource receives transmitter messages relayed by a radio gateway. Each
// MQTT payload is one raw radio message.
type mqttSource struct {
	conf   config.MQTT
	logger *logrus.Logger
	client mqtt.Client
	out    chan weather_station.Environment
	now    func() time.Time
}

func NewMQTTSource(conf config.MQTT, logger *logrus.Logger) weather_station.Source {
	return &mqttSource{
		conf:   conf,
		logger: logger,
		out:    make(chan weather_station.Environment, mqttBuffer),
		now:    time.Now,
	}
}

func (s *mqttSource) String() string {
	return "mqtt:" + s.conf.Topic
}

func (s *mqttSource) Readings() (<-chan weather_station.Environment, error) {
	clientID := s.conf.ClientID
	if clientID == "" {
		clientID = "cicadawatch-" + time.Now().Format("20060102150405")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.conf.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(s.conf.Username)
	opts.SetPassword(s.conf.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		token := client.Subscribe(s.conf.Topic, 1, s.onMessage)
		token.Wait()
		if token.Error() != nil {
			s.logger.Errorf("mqtt subscribe error: %v", token.Error())
			return
		}
		s.logger.Infof("subscribed to topic=%s", s.conf.Topic)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		s.logger.Warnf("mqtt connection lost: %v", err)
	}

	s.client = mqtt.NewClient(opts)
	if token := s.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", s.conf.Broker, token.Error())
	}
	return s.out, nil
}

func (s *mqttSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.handlePayload(msg.Payload())
}

// handlePayload never blocks the paho callback goroutine: readings that do
// not fit the buffer are dropped.
func (s *mqttSource) handlePayload(payload []byte) {
	values, err := weather_station.ParseRadioMessage(payload)
	if err != nil {
		readingsFailed.WithLabelValues("decode").Inc()
		s.logger.Warnf("Msg receipt failed due to %s (payload %q)", err, payload)
		return
	}
	env := weather_station.Environment{Time: s.now(), Values: values, Source: s.String()}
	select {
	case s.out <- env:
	default:
		readingsFailed.WithLabelValues("overflow").Inc()
		s.logger.Warnf("reading buffer full, dropping message from %s", s)
	}
}

func (s *mqttSource) Halt() error {
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
