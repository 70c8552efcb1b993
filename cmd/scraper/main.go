package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"feed_scraper/internal/config"
	"feed_scraper/internal/db"
	"feed_scraper/internal/fetcher"
	"feed_scraper/internal/logger"
	"feed_scraper/internal/orchestrator"
	"feed_scraper/internal/queue"
	"feed_scraper/internal/server"
)

func main() {
	logger.Init()
	defer logger.Log.Info("Application stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Загрузка конфигурации
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Log.Fatalf("Config load error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Fatalf("Config validation error: %v", err)
	}

	// Инициализация БД
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatalf("DB connection error: %v", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Log.Fatalf("DB migration error: %v", err)
	}

	// Общий HTTP-клиент с per-origin rate limit'ом
	client := fetcher.NewClient(
		time.Duration(cfg.RequestTimeout)*time.Second,
		time.Duration(cfg.OriginInterval)*time.Second,
		cfg.MaxRetries,
		cfg.UserAgent,
	)

	orch := orchestrator.New(orchestrator.Options{
		Store:            database,
		Client:           client,
		Workers:          cfg.Workers,
		MaxRetained:      cfg.MaxRetained,
		ListingThreshold: cfg.ListingThreshold,
		TrackingParams:   cfg.TrackingParams,
		FeedBaseURL:      cfg.FeedBaseURL,
	})

	// RabbitMQ не обязателен: без него работают только расписание и API
	if cfg.RabbitMQ.URL != "" {
		producer, err := queue.NewProducer(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Log.Fatalf("RabbitMQ producer error: %v", err)
		}
		defer producer.Close()
		orch.SetEventProducer(producer, cfg.RabbitMQ.EventQueue)

		consumer, err := queue.NewConsumer(cfg.RabbitMQ.URL, cfg.RabbitMQ.TaskQueue, cfg.Workers)
		if err != nil {
			logger.Log.Fatalf("RabbitMQ consumer error: %v", err)
		}
		defer consumer.Close()

		consumer.Consume(func(task queue.RefreshTask) error {
			_, err := orch.RefreshOne(ctx, task.Name)
			return err
		})
	}

	// Запуск обновлений по расписанию
	go orch.StartSchedule(ctx, cfg.RefreshTimes)

	// HTTP сервер
	srv := server.NewServer(orch, database)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Routes(),
	}
	go func() {
		logger.Log.Infof("Starting HTTP server on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
	ctxShutdown, cancelShutdown := context.WithTimeout(ctx, 5*time.Second)
	defer cancelShutdown()

	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Log.Fatalf("Forced shutdown: %v", err)
	}
}
