package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/annel0/constructs/internal/spawn"
	"github.com/annel0/constructs/internal/storage"
)

// Config корневая структура конфигурации сервера построек
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Spawn     spawn.Config    `yaml:"spawn"`
	Storage   storage.Options `yaml:"storage"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
	World     WorldConfig     `yaml:"world"`
}

// EventBusConfig шина событий. Пустой URL: шина в памяти.
type EventBusConfig struct {
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

// ServerConfig порты и частота тиков
type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
	TickRate    int `yaml:"tick_rate"`
}

// TelemetryConfig OpenTelemetry
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig уровни логирования
type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// WorldConfig уровни, создаваемые при старте
type WorldConfig struct {
	Seed   int64    `yaml:"seed"`
	Levels []string `yaml:"levels"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "GAME_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "GAME_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}
	return defaultPort
}

// Defaults заполняет незаданные значения
func (c *Config) Defaults() {
	if c.Server.TickRate <= 0 {
		c.Server.TickRate = 20
	}
	if c.Spawn.MaxPerTick <= 0 {
		c.Spawn.MaxPerTick = spawn.DefaultConfig().MaxPerTick
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = storage.BackendBadger
	}
	if c.Storage.DataPath == "" {
		c.Storage.DataPath = "data"
	}
	if c.EventBus.Stream == "" {
		c.EventBus.Stream = "CONSTRUCTS"
	}
	if c.EventBus.Retention <= 0 {
		c.EventBus.Retention = 24
	}
	if c.EventBus.Buffer <= 0 {
		c.EventBus.Buffer = 1024
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "constructs"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if len(c.World.Levels) == 0 {
		c.World.Levels = []string{"overworld"}
	}
}

// Load читает YAML файл конфигурации.
// Если path == "", берётся ENV CONSTRUCTS_CONFIG; без файла возвращаются значения по умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONSTRUCTS_CONFIG")
	}

	// значения spawn заполняются заранее: delay_ticks: 0 в файле означает «без задержки»
	cfg := Config{Spawn: spawn.DefaultConfig()}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	cfg.Defaults()
	return &cfg, nil
}
