package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/in/http"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/in/rabbitmq"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/backend"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/cache"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/homeassistant"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/logger"
	"github.com/suchimauz/weekly-schedule-sync/internal/adapters/out/redisstore"
	"github.com/suchimauz/weekly-schedule-sync/internal/config"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/in"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/ports/out"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/services/schedule_store"
	"github.com/suchimauz/weekly-schedule-sync/internal/core/services/state_manager"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	mainLogger, err := logger.New(cfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Выход с ошибкой только после того, как run выполнил все отложенные остановки
	if err := run(cfg, mainLogger); err != nil {
		mainLogger.WithModule("Main").Error("app.failed", out.LogFields{
			"error": err.Error(),
		})
		os.Exit(1)
	}
}

func run(cfg *config.Config, mainLogger out.LoggerPort) error {
	logger := mainLogger.WithModule("Main")

	logger.Info("app.starting", out.LogFields{
		"version":         cfg.App.Version,
		"env":             cfg.App.Env,
		"timezone":        cfg.App.Timezone,
		"backend":         cfg.Backend.Type,
		"rabbitmqEnabled": cfg.RabbitMQ.Enabled,
		"cacheEnabled":    cfg.Cache.Enabled,
	})

	if cfg.IsNotLocal() {
		gin.SetMode(gin.ReleaseMode)
	}

	entities, err := cfg.DayEntities()
	if err != nil {
		return fmt.Errorf("app.config.entities_invalid: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Хранилище расписания и источник уведомлений из шины событий
	var (
		backendPort  out.BackendPort
		stateHandler in.StateChangeHandler
	)
	switch cfg.Backend.Type {
	case config.BackendHomeAssistant:
		adapter := homeassistant.NewAdapter(cfg, entities, mainLogger)
		backendPort, stateHandler = adapter, adapter

	case config.BackendRedis:
		adapter := redisstore.NewAdapter(cfg, entities, mainLogger)
		defer func() {
			if err := adapter.Close(); err != nil {
				logger.Error("app.redis.close_failed", out.LogFields{
					"error": err.Error(),
				})
			}
		}()
		if err := adapter.Start(ctx); err != nil {
			return fmt.Errorf("app.redis.start_failed: %w", err)
		}
		backendPort = adapter

	default:
		adapter := backend.NewMemoryAdapter(mainLogger)
		adapter.Configure(entities)
		backendPort, stateHandler = adapter, adapter
	}

	// Выключенный кэш передается как nil интерфейса, а не как nil указателя
	var cachePort out.CachePort
	lruCache, err := cache.NewLRUCacheAdapter(cfg, mainLogger)
	if err != nil {
		return fmt.Errorf("app.cache.init_failed: %w", err)
	}
	if lruCache != nil {
		cachePort = lruCache
	}

	store := schedule_store.NewScheduleStore(
		backendPort,
		cachePort,
		state_manager.NewStateManager(mainLogger),
		mainLogger,
		schedule_store.Options{
			ConfirmTimeout: cfg.Store.ConfirmTimeout,
			PendingTTL:     cfg.Store.PendingTTL,
		},
	)
	defer store.Dispose()

	// Слушатель запускается до загрузки, чтобы не пропустить изменения во время нее
	if cfg.RabbitMQ.Enabled {
		if stateHandler == nil {
			logger.Warn("app.rabbitmq.skipped", out.LogFields{
				"message": "Backend delivers its own notifications",
				"backend": cfg.Backend.Type,
			})
		} else {
			listener, err := rabbitmq.NewStateChangedListener(stateHandler, cfg, mainLogger)
			if err != nil {
				return fmt.Errorf("app.rabbitmq.init_failed: %w", err)
			}

			defer func() {
				if err := listener.Stop(); err != nil {
					logger.Error("app.rabbitmq.stop_failed", out.LogFields{
						"error": err.Error(),
					})
				}
			}()

			if err := listener.Start(ctx); err != nil {
				return fmt.Errorf("app.rabbitmq.start_failed: %w", err)
			}
		}
	}

	if err := store.Initialize(ctx); err != nil {
		return fmt.Errorf("app.store.init_failed: %w", err)
	}

	router := gin.Default()
	controller := http.NewScheduleController(store, cfg, mainLogger)
	controller.RegisterRoutes(router)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	httpErr := make(chan error, 1)
	go func() {
		logger.Info("app.http.starting", out.LogFields{
			"host": cfg.HTTP.Host,
			"port": cfg.HTTP.Port,
		})

		httpErr <- router.Run(cfg.HTTP.Host + ":" + cfg.HTTP.Port)
	}()

	select {
	case sig := <-sigChan:
		logger.Info("app.shutdown.initiated", out.LogFields{
			"signal": sig.String(),
		})
	case err := <-httpErr:
		return fmt.Errorf("app.http.failed: %w", err)
	}

	if lruCache != nil {
		stats := lruCache.Stats()
		logger.Debug("app.cache.stats", out.LogFields{
			"size":   stats.Size,
			"hits":   stats.Hits,
			"misses": stats.Misses,
		})
	}
	return nil
}
