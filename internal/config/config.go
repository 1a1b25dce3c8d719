package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/suchimauz/weekly-schedule-sync/internal/core/domain"
)

type Environment string

const (
	EnvLocal      Environment = "local"
	EnvDev        Environment = "dev"
	EnvStage      Environment = "stage"
	EnvProduction Environment = "production"
)

type BackendType string

const (
	BackendMemory        BackendType = "memory"
	BackendHomeAssistant BackendType = "homeassistant"
	BackendRedis         BackendType = "redis"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

type ConfigBasicClient struct {
	Username string
	Password string
}

type Config struct {
	App struct {
		Version  string      `env:"APP_VERSION" envDefault:"local"`
		Env      Environment `env:"APP_ENV" envDefault:"local"`
		Timezone string      `env:"APP_TIMEZONE" envDefault:"Europe/Moscow"`
	}

	HTTP struct {
		Port string `env:"HTTP_SERVER_PORT" envDefault:"8080"`
		Host string `env:"HTTP_SERVER_HOST" envDefault:"localhost"`
	}

	Auth struct {
		BasicClientsString string `env:"AUTH_BASIC_CLIENTS" envDefault:"schedule_sync:schedule_sync"`
		BasicClients       []ConfigBasicClient
	}

	Log struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"console"`
	}

	Backend struct {
		Type BackendType `env:"BACKEND_TYPE" envDefault:"memory"`
	}

	HomeAssistant struct {
		URL       string  `env:"HOMEASSISTANT_URL"`
		Token     string  `env:"HOMEASSISTANT_TOKEN"`
		RateLimit float64 `env:"HOMEASSISTANT_RATE_LIMIT" envDefault:"10"`
	}

	Redis struct {
		Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		Password string `env:"REDIS_PASSWORD"`
		DB       int    `env:"REDIS_DB" envDefault:"0"`
		Channel  string `env:"REDIS_CHANNEL" envDefault:"dayschedule:changes"`
	}

	RabbitMQ struct {
		Enabled  bool   `env:"RABBITMQ_ENABLED"`
		URL      string `env:"RABBITMQ_URL"`
		Exchange string `env:"RABBITMQ_EXCHANGE" envDefault:"homeassistant"`
		Queue    string `env:"RABBITMQ_QUEUE" envDefault:"schedule-sync.state_changed"`
		Bind     string `env:"RABBITMQ_BIND" envDefault:"homeassistant.*.input_text.state_changed"`
	}

	Cache struct {
		Enabled bool `env:"CACHE_ENABLED" envDefault:"true"`
		Size    int  `env:"CACHE_SIZE" envDefault:"256"`
	}

	Store struct {
		ConfirmTimeout time.Duration `env:"STORE_CONFIRM_TIMEOUT" envDefault:"1s"`
		PendingTTL     time.Duration `env:"STORE_PENDING_TTL" envDefault:"30s"`
	}

	Entities struct {
		Monday    string `env:"ENTITY_MONDAY"`
		Tuesday   string `env:"ENTITY_TUESDAY"`
		Wednesday string `env:"ENTITY_WEDNESDAY"`
		Thursday  string `env:"ENTITY_THURSDAY"`
		Friday    string `env:"ENTITY_FRIDAY"`
		Saturday  string `env:"ENTITY_SATURDAY"`
		Sunday    string `env:"ENTITY_SUNDAY"`
	}
}

func NewConfig() (*Config, error) {
	// .env необязателен, переменные окружения имеют приоритет
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	// Приведение окружения к нижнему регистру для унификации
	cfg.App.Env = Environment(strings.ToLower(string(cfg.App.Env)))
	cfg.Backend.Type = BackendType(strings.ToLower(string(cfg.Backend.Type)))
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	cfg.Auth.BasicClients = parseBasicClients(cfg.Auth.BasicClientsString)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseBasicClients(str string) []ConfigBasicClient {
	clients := []ConfigBasicClient{}
	for _, pair := range strings.Split(str, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			clients = append(clients, ConfigBasicClient{
				Username: parts[0],
				Password: parts[1],
			})
		}
	}
	return clients
}

func (c *Config) Validate() error {
	switch c.Backend.Type {
	case BackendMemory, BackendRedis:
	case BackendHomeAssistant:
		if c.HomeAssistant.URL == "" {
			return fmt.Errorf("%w: HOMEASSISTANT_URL is required for homeassistant backend", domain.ErrConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown BACKEND_TYPE %q", domain.ErrConfiguration, c.Backend.Type)
	}

	// Home Assistant сообщает об изменениях только через шину событий
	if c.Backend.Type == BackendHomeAssistant && !c.RabbitMQ.Enabled {
		return fmt.Errorf("%w: RABBITMQ_ENABLED is required for homeassistant backend", domain.ErrConfiguration)
	}

	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		return fmt.Errorf("%w: RABBITMQ_URL is required when RabbitMQ is enabled", domain.ErrConfiguration)
	}

	if c.Store.ConfirmTimeout <= 0 {
		return fmt.Errorf("%w: STORE_CONFIRM_TIMEOUT must be positive", domain.ErrConfiguration)
	}

	_, err := c.DayEntities()
	return err
}

// DayEntities возвращает соответствие день -> сущность хранилища.
// Все семь дней обязательны, сущности не должны повторяться.
func (c *Config) DayEntities() (map[domain.WeekDay]string, error) {
	entities := map[domain.WeekDay]string{
		domain.WeekDayMonday:    c.Entities.Monday,
		domain.WeekDayTuesday:   c.Entities.Tuesday,
		domain.WeekDayWednesday: c.Entities.Wednesday,
		domain.WeekDayThursday:  c.Entities.Thursday,
		domain.WeekDayFriday:    c.Entities.Friday,
		domain.WeekDaySaturday:  c.Entities.Saturday,
		domain.WeekDaySunday:    c.Entities.Sunday,
	}
	return ValidateDayEntities(entities)
}

func ValidateDayEntities(entities map[domain.WeekDay]string) (map[domain.WeekDay]string, error) {
	seen := make(map[string]domain.WeekDay, len(entities))
	result := make(map[domain.WeekDay]string, len(domain.WeekDays))

	for _, day := range domain.WeekDays {
		entityID := strings.TrimSpace(entities[day])
		if entityID == "" {
			return nil, fmt.Errorf("%w: no entity configured for %s", domain.ErrConfiguration, day)
		}
		if other, exists := seen[entityID]; exists {
			return nil, fmt.Errorf("%w: entity %q is used by both %s and %s", domain.ErrConfiguration, entityID, other, day)
		}
		seen[entityID] = day
		result[day] = entityID
	}

	for day := range entities {
		if !day.IsValid() {
			return nil, fmt.Errorf("%w: %q is not a day of week", domain.ErrConfiguration, day)
		}
	}

	return result, nil
}

func (c *Config) IsLocal() bool {
	return c.App.Env == EnvLocal
}

func (c *Config) IsNotLocal() bool {
	return c.App.Env == EnvDev || c.App.Env == EnvStage || c.App.Env == EnvProduction
}
