package bot

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []tgbotapi.Chattable
	sendErr error
	updates chan tgbotapi.Update
	stopped bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) messages() []tgbotapi.Chattable {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.Chattable(nil), f.sent...)
}

const latestJSON = `{"column_name":"temp_f","latest_value":65,"latest_time":"2021-05-10T13:54:00Z",` +
	`"seconds_since_latest":300,"min_24h":60,"max_24h":65,"unit":"F","threshold_value":64,` +
	`"threshold_diff":-1,"threshold_crossed":true,"trend_slope":2.638,"trend_direction":"rising"}`

func dashboardStub(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/latestjson/temp_f", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, latestJSON)
	})
	mux.HandleFunc("/latestjson/humidity", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"column_name":"humidity","latest_value":48}`)
	})
	mux.HandleFunc("/latestjson/rssi", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rssi not available", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/png/temp_f", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		io.WriteString(w, "\x89PNG fake")
	})
	mux.HandleFunc("/latest/temp_f", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "Latest value for column temp_f was 65.0, 5m0s ago.")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestBot(t *testing.T, column string) (*Bot, *fakeAPI) {
	srv := dashboardStub(t)
	conf := config.Default()
	conf.Bot.ServerAddress = srv.URL
	conf.Bot.Column = column
	conf.Telegram.ChatID = 42

	logger := logrus.New()
	logger.Out = io.Discard
	fake := &fakeAPI{updates: make(chan tgbotapi.Update)}
	return newBot(fake, conf, logger), fake
}

func TestPost(t *testing.T) {
	b, fake := newTestBot(t, "temp_f")
	require.NoError(t, b.Post(context.Background()))

	sent := fake.messages()
	require.Len(t, sent, 1)
	photo, ok := sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), photo.ChatID)

	file, ok := photo.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "cicada_temp_f.png", file.Name)
	assert.Equal(t, []byte("\x89PNG fake"), file.Bytes)

	assert.Equal(t, "The current ground temperature is 65.0 degrees F, which might be warm enough for the cicadas to emerge.\n\n"+
		"A plot of temperature versus time for the last 48 hours. There is a horizontal red line marking 64 degrees F. "+
		"The temperature is currently increasing. In the last 24 hours, the minimum value was 60.0 and the maximum value was 65.0",
		photo.Caption)
}

func TestPostErrors(t *testing.T) {
	tests := map[string]struct {
		column  string
		sendErr error
	}{
		"dashboard unavailable": {column: "rssi"},
		"unknown route":         {column: "pressure"},
		"not a temperature":     {column: "humidity"},
		"telegram failure":      {column: "temp_f", sendErr: errors.New("flood control")},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			b, fake := newTestBot(t, tc.column)
			fake.sendErr = tc.sendErr
			assert.Error(t, b.Post(context.Background()))
			assert.Empty(t, fake.messages())
		})
	}
}

func TestNewBotServerAddress(t *testing.T) {
	conf := config.Default()
	b := newBot(&fakeAPI{}, conf, logrus.New())
	assert.Equal(t, "http://localhost:8080", b.server)

	conf.Bot.ServerAddress = "https://cicadas.example.org/"
	b = newBot(&fakeAPI{}, conf, logrus.New())
	assert.Equal(t, "https://cicadas.example.org", b.server)
}

func TestNewRequiresKey(t *testing.T) {
	conf := config.Default()
	conf.Telegram.Key = ""
	_, err := New(conf, logrus.New())
	assert.Error(t, err)
}

func TestServe(t *testing.T) {
	b, fake := newTestBot(t, "temp_f")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx) }()

	fake.updates <- tgbotapi.Update{UpdateID: 1}
	fake.updates <- tgbotapi.Update{
		UpdateID: 2,
		Message: &tgbotapi.Message{
			MessageID: 7,
			From:      &tgbotapi.User{UserName: "marie"},
			Chat:      &tgbotapi.Chat{ID: 99},
			Text:      "status",
		},
	}
	require.Eventually(t, func() bool { return len(fake.messages()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.True(t, fake.stopped)

	msg, ok := fake.messages()[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(99), msg.ChatID)
	assert.Equal(t, 7, msg.ReplyToMessageID)
	assert.Equal(t, "Latest value for column temp_f was 65.0, 5m0s ago.", msg.Text)
	assert.Equal(t, buttons, msg.ReplyMarkup)
}

func TestReplyWhenDashboardDown(t *testing.T) {
	b, fake := newTestBot(t, "rssi")
	b.reply(context.Background(), &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: 5}})

	sent := fake.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "rssi is not available right now.", sent[0].(tgbotapi.MessageConfig).Text)
}
