// Package bot posts the ground temperature status to a Telegram chat and
// answers status requests from chat users.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/status"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var posts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cicadawatch_bot_posts_total",
	Help: "Total number of status posts, by outcome.",
}, []string{"outcome"})

var buttons = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton("status"),
	),
)

// api is the part of *tgbotapi.BotAPI the bot uses.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api    api
	client *http.Client
	logger *logrus.Logger
	server string
	column string
	chatID int64
	policy status.Policy
}

// New authorises the Telegram bot configured in conf.
func New(conf *config.Config, logger *logrus.Logger) (*Bot, error) {
	if conf.Telegram.Key == "" {
		return nil, fmt.Errorf("telegram key is not set")
	}
	tg, err := tgbotapi.NewBotAPI(conf.Telegram.Key)
	if err != nil {
		return nil, fmt.Errorf("cannot authorise telegram bot: %w", err)
	}
	tg.Debug = conf.Telegram.Debug
	logger.Infof("Telegram authorized on account %s", tg.Self.UserName)
	return newBot(tg, conf, logger), nil
}

func newBot(tg api, conf *config.Config, logger *logrus.Logger) *Bot {
	server := conf.Bot.ServerAddress
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return &Bot{
		api:    tg,
		client: &http.Client{Timeout: conf.Bot.Timeout},
		logger: logger,
		server: strings.TrimRight(server, "/"),
		column: conf.Bot.Column,
		chatID: conf.Telegram.ChatID,
		policy: conf.Policy(),
	}
}

// Post sends the current status text and plot to the configured chat.
// Telegram photos carry no alt text, so it is appended to the caption.
func (b *Bot) Post(ctx context.Context) error {
	err := b.post(ctx)
	if err != nil {
		posts.WithLabelValues("failed").Inc()
		return err
	}
	posts.WithLabelValues("sent").Inc()
	return nil
}

func (b *Bot) post(ctx context.Context) error {
	res, err := b.temperature(ctx)
	if err != nil {
		return err
	}
	post := status.Compose(res, b.policy)
	b.logger.Info(post.Text)
	b.logger.Debug(post.AltText)

	img, err := b.fetch(ctx, "/png/"+b.column)
	if err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(b.chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("cicada_%s.png", b.column),
		Bytes: img,
	})
	photo.Caption = post.Text + "\n\n" + post.AltText
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("cannot send status post: %w", err)
	}
	return nil
}

// temperature fetches and decodes the latest status of the bot column.
func (b *Bot) temperature(ctx context.Context) (status.TemperatureResult, error) {
	var res status.TemperatureResult
	body, err := b.fetch(ctx, "/latestjson/"+b.column)
	if err != nil {
		return res, err
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return res, fmt.Errorf("cannot decode status of %s: %w", b.column, err)
	}
	if res.Unit == "" {
		return res, fmt.Errorf("column %s is not a temperature column", b.column)
	}
	return res, nil
}

func (b *Bot) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.server+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cannot reach dashboard: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Serve answers every incoming message with the latest status until ctx is
// cancelled.
func (b *Bot) Serve(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.reply(ctx, update.Message)
		}
	}
}

func (b *Bot) reply(ctx context.Context, in *tgbotapi.Message) {
	if in.From != nil {
		b.logger.Infof("[%s] %s", in.From.UserName, in.Text)
	}
	text, err := b.fetch(ctx, "/latest/"+b.column)
	if err != nil {
		b.logger.Warnf("cannot get status: %s", err)
		text = []byte(fmt.Sprintf("%s is not available right now.", b.column))
	}

	msg := tgbotapi.NewMessage(in.Chat.ID, string(text))
	msg.ReplyToMessageID = in.MessageID
	msg.ReplyMarkup = buttons
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warnf("error: %s", err)
	}
}
