package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Config хранит все настройки сервиса. Загружается из JSON-файла,
// незаполненные поля получают значения по умолчанию через ApplyDefaults.
type Config struct {
	ListenAddr  string `json:"listen_addr"`
	DatabaseURL string `json:"database_url"`
	FeedBaseURL string `json:"feed_base_url"`

	RabbitMQ RabbitMQ `json:"rabbitmq"`

	// RefreshTimes — фиксированные времена суток "HH:MM" для полного обновления.
	RefreshTimes []string `json:"refresh_times"`

	Workers          int `json:"workers"`
	MaxRetained      int `json:"max_retained"`
	RequestTimeout   int `json:"request_timeout"`
	OriginInterval   int `json:"origin_interval"`
	MaxRetries       int `json:"max_retries"`
	ListingThreshold int `json:"listing_threshold"`

	// TrackingParams дополняет встроенный список отбрасываемых query-параметров.
	TrackingParams []string `json:"tracking_params"`

	UserAgent string `json:"user_agent"`
}

// RabbitMQ — необязательное подключение к брокеру для удалённых
// запросов на обновление и событий о результатах.
type RabbitMQ struct {
	URL        string `json:"url"`
	TaskQueue  string `json:"task_queue"`
	EventQueue string `json:"event_queue"`
}

// ApplyDefaults заполняет нулевые поля значениями по умолчанию.
func (cfg *Config) ApplyDefaults() {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if len(cfg.RefreshTimes) == 0 {
		cfg.RefreshTimes = []string{"06:00", "12:00", "18:00"}
	}
	if cfg.Workers == 0 {
		cfg.Workers = 5
	}
	if cfg.MaxRetained == 0 {
		cfg.MaxRetained = 50
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 15
	}
	if cfg.OriginInterval == 0 {
		cfg.OriginInterval = 1
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ListingThreshold == 0 {
		cfg.ListingThreshold = 5
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "feed-scraper/1.0 (+https://github.com/feed-scraper)"
	}
	if cfg.RabbitMQ.TaskQueue == "" {
		cfg.RabbitMQ.TaskQueue = "refresh_tasks"
	}
	if cfg.RabbitMQ.EventQueue == "" {
		cfg.RabbitMQ.EventQueue = "refresh_events"
	}
}

// Validate проверяет согласованность конфигурации.
func (cfg *Config) Validate() error {
	if cfg.DatabaseURL == "" {
		return errors.New("database_url is required")
	}
	if cfg.Workers < 1 {
		return errors.New("workers must be ≥ 1")
	}
	if cfg.MaxRetained < 1 {
		return errors.New("max_retained must be ≥ 1")
	}
	if cfg.OriginInterval < 1 {
		return errors.New("origin_interval must be ≥ 1 second")
	}
	for _, tm := range cfg.RefreshTimes {
		if _, err := time.Parse("15:04", tm); err != nil {
			return fmt.Errorf("invalid refresh time: %s", tm)
		}
	}
	return nil
}

// LoadConfig читает JSON-файл по пути path, декодирует его в Config
// и применяет значения по умолчанию.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
