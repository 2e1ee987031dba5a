package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tailwatch/internal/domain/model"
)

const (
	universeKey    = "universe:latest"
	signalsChannel = "tailwatch:signals"
)

type RedisAdapter struct {
	client  *redis.Client
	ttl     time.Duration
	channel string
}

func NewRedisAdapter(addr, password string, db int, ttl time.Duration) (*RedisAdapter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisAdapter{
		client:  client,
		ttl:     ttl,
		channel: signalsChannel,
	}, nil
}

func (a *RedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func candlesKey(symbol, interval string) string {
	return fmt.Sprintf("candles:%s:%s", symbol, interval)
}

func (a *RedisAdapter) SetUniverse(ctx context.Context, snapshot model.UniverseSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal universe snapshot: %w", err)
	}

	if err := a.client.Set(ctx, universeKey, data, a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set universe snapshot in redis: %w", err)
	}
	return nil
}

func (a *RedisAdapter) SetCandles(ctx context.Context, window model.CandleWindow) error {
	data, err := json.Marshal(window)
	if err != nil {
		return fmt.Errorf("failed to marshal candle window: %w", err)
	}

	key := candlesKey(window.Symbol, window.Interval)
	if err := a.client.Set(ctx, key, data, a.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set candles in redis: %w", err)
	}
	return nil
}

// GetCandles returns nil without error when nothing is cached for the pair.
func (a *RedisAdapter) GetCandles(ctx context.Context, symbol, interval string) (*model.CandleWindow, error) {
	data, err := a.client.Get(ctx, candlesKey(symbol, interval)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get candles from redis: %w", err)
	}

	var window model.CandleWindow
	if err := json.Unmarshal(data, &window); err != nil {
		return nil, fmt.Errorf("failed to unmarshal candles: %w", err)
	}
	return &window, nil
}

func (a *RedisAdapter) Name() string { return "redis" }

// Publish broadcasts a signal on the pub/sub channel.
func (a *RedisAdapter) Publish(ctx context.Context, sig model.Signal) error {
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal: %w", err)
	}

	if err := a.client.Publish(ctx, a.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish signal: %w", err)
	}
	return nil
}

func (a *RedisAdapter) Close() error {
	return a.client.Close()
}
