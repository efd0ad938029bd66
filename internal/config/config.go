// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env             string `yaml:"env" env:"ENV" env-default:"local"`
	Storage         `yaml:"storage"`
	RedisConnection `yaml:"redis_connection"`
	HTTPServer      `yaml:"http_server"`
	JWTToken        `yaml:"jwttoken"`
	Wallet          `yaml:"wallet"`
	RabbitMQ        `yaml:"rabbitmq"`
	Maintenance     `yaml:"maintenance"`
	CORS            `yaml:"cors"`
}

// Storage структура для настройки key-value хранилища.
// Пустой RemoteURL означает работу только с локальным файлом.
type Storage struct {
	RemoteURL      string        `yaml:"remote_url" env:"KV_REMOTE_URL"`
	LocalPath      string        `yaml:"local_path" env:"KV_LOCAL_PATH" env-default:"data/store.json"`
	ConnectRetries int           `yaml:"connect_retries" env-default:"3"`
	ConnectBackoff time.Duration `yaml:"connect_backoff" env-default:"200ms"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env-default:"1s"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" env-default:"3s"`
}

// RedisConnection структура для настройки пула соединений redis
type RedisConnection struct {
	RedisMaxRetries   int           `yaml:"max_retries"`
	RedisDialTimeout  time.Duration `yaml:"dial_timeout" env-default:"2s"`
	RedisTimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"2s"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP    string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":8080"`
	TimeoutHTTP    time.Duration `yaml:"timeouthttp" env-default:"15s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env-default:"60s"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps" env-default:"10"`
	RateLimitBurst int           `yaml:"rate_limit_burst" env-default:"20"`
	RateLimitIdle  time.Duration `yaml:"rate_limit_idle" env-default:"10m"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// Wallet настройки пополнения баланса и протокола проверки записи баланса
type Wallet struct {
	MinDeposit     int64         `yaml:"min_deposit" env-default:"10000"`
	SettleDelay    time.Duration `yaml:"settle_delay" env-default:"100ms"`
	VerifyAttempts int           `yaml:"verify_attempts" env-default:"5"`
	Tolerance      float64       `yaml:"tolerance" env-default:"0.01"`
}

// RabbitMQ настройки публикации событий; пустой URL отключает публикацию
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQExchange   string        `yaml:"exchange" env-default:"storefront"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"3"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
}

// Maintenance расписания фоновых задач.
// Флаг инвертирован: cleanenv подставляет env-default поверх нулевых значений из файла.
type Maintenance struct {
	MaintenanceDisabled bool   `yaml:"disabled"`
	RecoverySpec        string `yaml:"recovery_spec" env-default:"@every 1m"`
	CompactionSpec      string `yaml:"compaction_spec" env-default:"@hourly"`
}

// CORS разрешённые источники для фронтенда
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env-default:"*"`
}

// MustLoad функция для загрузки конфига из файла, путь к которому задан в CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load читает конфиг по указанному пути, переменные окружения перекрывают значения из файла
func Load(path string) (*Config, error) {
	const op = "config.Load"
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"Storage:\n"+
			"  RemoteURL: %s\n"+
			"  LocalPath: %s\n"+
			"  ConnectRetries: %d\n"+
			"  ProbeTimeout: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Wallet:\n"+
			"  MinDeposit: %d\n"+
			"  SettleDelay: %s\n"+
			"  VerifyAttempts: %d\n"+
			"JWTToken:\n"+
			"  TokenTTL: %s\n",
		c.Env,
		c.RemoteURL,
		c.LocalPath,
		c.ConnectRetries,
		c.ProbeTimeout,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.MinDeposit,
		c.SettleDelay,
		c.VerifyAttempts,
		c.TokenTTL,
	)
}
