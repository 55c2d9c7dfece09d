package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/annel0/constructs/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Addr      string        `yaml:"addr"`       // Адрес Redis сервера
	Password  string        `yaml:"password"`   // Пароль (пустой если не требуется)
	DB        int           `yaml:"db"`         // Номер базы данных
	KeyPrefix string        `yaml:"key_prefix"` // Префикс для ключей
	Timeout   time.Duration `yaml:"timeout"`    // Таймаут операций
}

// DefaultRedisConfig возвращает конфигурацию по умолчанию
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "constructs:",
		Timeout:   5 * time.Second,
	}
}

// RedisStore хранит постройки в Redis (общее хранилище для нескольких узлов)
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	timeout   time.Duration
}

// NewRedisStore подключается к Redis и проверяет соединение
func NewRedisStore(config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Second
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "constructs:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.Timeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Info("🔴 Connected to Redis at %s", config.Addr)
	return NewRedisStoreFromClient(client, config.KeyPrefix), nil
}

// NewRedisStoreFromClient оборачивает готовый клиент
func NewRedisStoreFromClient(client *redis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{client: client, keyPrefix: keyPrefix, timeout: 5 * time.Second}
}

// Save записывает снимок постройки
func (rs *RedisStore) Save(ctx context.Context, id string, data []byte) error {
	if err := rs.client.Set(ctx, rs.keyPrefix+id, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save construction %s: %w", id, err)
	}
	return nil
}

// Load читает снимок постройки
func (rs *RedisStore) Load(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := rs.client.Get(ctx, rs.keyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("failed to load construction %s: %w", id, err)
	}
	return data, true, nil
}

// LoadAll сканирует ключи с префиксом и читает их пайплайном
func (rs *RedisStore) LoadAll(ctx context.Context) (map[string][]byte, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := rs.client.Scan(ctx, cursor, rs.keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	pipe := rs.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get constructions: %w", err)
	}

	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue // ключ удалён между SCAN и GET
		} else if err != nil {
			logging.Warn("⚠️ Failed to get construction %s: %v", keys[i], err)
			continue
		}
		result[strings.TrimPrefix(keys[i], rs.keyPrefix)] = data
	}
	return result, nil
}

// Delete удаляет постройку
func (rs *RedisStore) Delete(ctx context.Context, id string) error {
	if err := rs.client.Del(ctx, rs.keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete construction %s: %w", id, err)
	}
	return nil
}

// Close закрывает клиент
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
