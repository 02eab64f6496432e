package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/itohio/gopowermon/pkg/config"
)

const (
	settingsKey = "settings"
	energyKey   = "energy"
	historyKey  = "energy:history"

	// HistoryLength is the number of energy snapshots kept in the history list.
	HistoryLength = 1440
)

// Redis keeps settings and energy under cfg.Prefix. Every energy save is
// also pushed onto a bounded history list.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to cfg.Addr and pings it.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedis(client, cfg.Prefix), nil
}

func newRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// key returns the namespaced key for name.
func (r *Redis) key(name string) string {
	if r.prefix == "" {
		return name
	}
	return r.prefix + ":" + name
}

// LoadSettings returns the saved settings or ErrNotFound.
func (r *Redis) LoadSettings(ctx context.Context) (Settings, error) {
	var s Settings
	if err := r.get(ctx, settingsKey, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SaveSettings validates and stores s.
func (r *Redis) SaveSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := r.client.Set(ctx, r.key(settingsKey), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// LoadEnergy returns the latest saved energy counters or ErrNotFound.
func (r *Redis) LoadEnergy(ctx context.Context) (Energy, error) {
	var e Energy
	if err := r.get(ctx, energyKey, &e); err != nil {
		return Energy{}, err
	}
	return e, nil
}

// SaveEnergy stores e and appends it to the history list.
func (r *Redis) SaveEnergy(ctx context.Context, e Energy) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal energy: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(energyKey), data, 0)
	pipe.LPush(ctx, r.key(historyKey), data)
	pipe.LTrim(ctx, r.key(historyKey), 0, HistoryLength-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save energy: %w", err)
	}
	return nil
}

// EnergyHistory returns up to count saved energy snapshots, newest first.
// Entries that fail to decode are skipped.
func (r *Redis) EnergyHistory(ctx context.Context, count int64) ([]Energy, error) {
	data, err := r.client.LRange(ctx, r.key(historyKey), 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read energy history: %w", err)
	}

	history := make([]Energy, 0, len(data))
	for _, d := range data {
		var e Energy
		if err := json.Unmarshal([]byte(d), &e); err != nil {
			continue
		}
		history = append(history, e)
	}
	return history, nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) get(ctx context.Context, name string, dest any) error {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", name, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return nil
}
