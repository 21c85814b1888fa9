package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/evkuzin/cicadawatch/bot"
	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/dashboard"
	"github.com/evkuzin/cicadawatch/storage"
	"github.com/evkuzin/cicadawatch/weather_station/impl"
	"github.com/sirupsen/logrus"
)

const usage = `usage: cicadawatch [-config file] [-n readings] <command>

commands:
  receive   record readings from the radio gateway and sensors
  serve     run the status dashboard
  post      post the current status to the telegram chat
  bot       answer status requests in telegram
`

func main() {
	confPath := flag.String("config", "", "path to the YAML config")
	limit := flag.Int("n", 0, "stop receiving after this many readings (0 runs forever)")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	conf, err := config.NewConfig(*confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %s\n", err)
		os.Exit(1)
	}
	logger := conf.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd := flag.Arg(0); cmd {
	case "receive":
		err = receive(ctx, conf, logger, *limit)
	case "serve":
		err = serve(ctx, conf, logger)
	case "post":
		err = post(ctx, conf, logger)
	case "bot":
		err = chat(ctx, conf, logger)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Errorf("%s: %s", flag.Arg(0), err)
		os.Exit(1)
	}
	logger.Info("all threads killed, shutdown...")
}

func receive(ctx context.Context, conf *config.Config, logger *logrus.Logger, limit int) error {
	ws := impl.NewWeatherStation(limit)
	if err := ws.Init(conf, logger); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ws.Stop()
	}()
	ws.Start()
	return nil
}

func serve(ctx context.Context, conf *config.Config, logger *logrus.Logger) error {
	st, err := storage.NewStorage(conf)
	if err != nil {
		return err
	}
	if err := st.Init(conf, logger); err != nil {
		return fmt.Errorf("cannot init storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warnf("Error during shutdown storage: %v", err)
		}
	}()
	return dashboard.NewServer(st, conf, logger).ListenAndServe(ctx)
}

func post(ctx context.Context, conf *config.Config, logger *logrus.Logger) error {
	if err := conf.ValidatePost(); err != nil {
		return err
	}
	b, err := bot.New(conf, logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, conf.Bot.Timeout)
	defer cancel()
	return b.Post(ctx)
}

func chat(ctx context.Context, conf *config.Config, logger *logrus.Logger) error {
	b, err := bot.New(conf, logger)
	if err != nil {
		return err
	}
	return b.Serve(ctx)
}
