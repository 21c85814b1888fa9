package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evkuzin/cicadawatch/config"
	"github.com/evkuzin/cicadawatch/weather_station"
	"github.com/redis/go-redis/v9"
)

const redisTimeout = 2 * time.Second

// redisPublisher pushes every stored reading as JSON onto a pub/sub channel.
type redisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(conf config.Redis) (weather_station.Publisher, error) {
	opts, err := redis.ParseURL(conf.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisPublisher{client: client, channel: conf.Channel}, nil
}

func (p *redisPublisher) Publish(env *weather_station.Environment) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	return p.client.Publish(ctx, p.channel, data).Err()
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}
