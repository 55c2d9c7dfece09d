package storage

import (
	"fmt"
	"strings"
)

// Поддерживаемые бэкенды
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendMaria  = "maria"
	BackendMongo  = "mongo"
)

// Options выбор и настройки бэкенда хранилища построек
type Options struct {
	Backend  string       `yaml:"backend"`
	DataPath string       `yaml:"data_path"`
	Redis    *RedisConfig `yaml:"redis"`
	MariaDSN string       `yaml:"maria_dsn"`
	Mongo    MongoConfig  `yaml:"mongo"`
}

// Open открывает хранилище по настройкам. Пустой бэкенд означает badger.
func Open(opts Options) (ConstructionStore, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendBadger:
		path := opts.DataPath
		if path == "" {
			path = "data"
		}
		return NewBadgerStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(opts.Redis)
	case BackendMaria:
		if opts.MariaDSN == "" {
			return nil, fmt.Errorf("не задан maria_dsn")
		}
		return NewMariaStore(opts.MariaDSN)
	case BackendMongo:
		return NewMongoStore(opts.Mongo)
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", opts.Backend)
	}
}
