package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"segment-assist/internal/assist"
	"segment-assist/internal/cache"
	"segment-assist/internal/client"
	"segment-assist/internal/config"
	"segment-assist/internal/database"
	"segment-assist/internal/handler"
	"segment-assist/internal/logging"
	"segment-assist/internal/metrics"
	"segment-assist/internal/repository"
	"segment-assist/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "segment-assist",
		Short:         "Interactive segmentation assistant server",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, db, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			logger.Info("Миграции выполнены")
			return nil
		},
	}

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the reserved default assistants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, db, err := bootstrap(configPath)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			assistants := service.NewAssistantService(repository.NewAssistantRepository(db), logger, cfg.Models.Dir, cfg.ModelDefaults())
			if err := assistants.EnsureDefaults(cmd.Context()); err != nil {
				return err
			}
			logger.Info("Ассистенты по умолчанию созданы")
			return nil
		},
	}

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
	return rootCmd
}

// bootstrap загружает конфигурацию, создает логгер и подключается к базе данных
func bootstrap(configPath string) (*config.Config, *logrus.Logger, *gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Logging.Level, cfg.IsProduction())

	logger.Info("Подключение к базе данных...")
	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, db, nil
}

func serve(ctx context.Context, configPath string) error {
	cfg, logger, db, err := bootstrap(configPath)
	if err != nil {
		return err
	}
	defer database.Close(db)

	logger.Info("Запуск Segment Assist API Server")

	logger.Info("Выполнение миграций базы данных...")
	if err := database.Migrate(db); err != nil {
		return err
	}
	if err := database.HealthCheck(ctx, db); err != nil {
		return fmt.Errorf("database is unavailable: %w", err)
	}

	// Модельный рантайм
	runtime, err := client.NewRuntime(cfg.Runtime.Transport, cfg.Runtime.URL, cfg.Runtime.Timeout, logger)
	if err != nil {
		return err
	}
	if closer, ok := runtime.(io.Closer); ok {
		defer closer.Close()
	}

	// Кэш результатов (необязателен)
	var results service.ResultCache
	if resultCache := cache.NewResultCache(cfg.Redis); resultCache != nil {
		if err := resultCache.Ping(ctx); err != nil {
			logger.Warnf("Redis недоступен, кэш результатов отключен: %v", err)
			_ = resultCache.Close()
		} else {
			defer resultCache.Close()
			results = resultCache
			logger.Infof("Кэш результатов включен (TTL %v)", cfg.Redis.ResultTTL)
		}
	}

	collectors := metrics.New()

	backends := assist.NewBackendCacheWithDeps(cfg.Models.CacheSize, assist.Deps{
		Runtime:          runtime,
		Logger:           logger,
		LoadTimeout:      cfg.Models.LoadTimeout,
		InferenceTimeout: cfg.Models.InferenceTimeout,
	}, assist.WithObserver(collectors), assist.WithLogger(logger))
	defer backends.Close()

	segmenter := assist.NewSegmenter(backends, collectors, logger)

	// Репозитории и сервисы
	assistantRepo := repository.NewAssistantRepository(db)
	assistantService := service.NewAssistantService(assistantRepo, logger, cfg.Models.Dir, cfg.ModelDefaults())
	if err := assistantService.EnsureDefaults(ctx); err != nil {
		return err
	}
	segmentationService := service.NewSegmentationService(assistantService, segmenter, results, logger)

	// Обработчики
	assistantHandler := handler.NewAssistantHandler(assistantService, segmentationService, logger, cfg.Server.MaxUploadBytes)
	healthHandler := handler.NewHealthHandler(func(ctx context.Context) error {
		return database.HealthCheck(ctx, db)
	}, runtime, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.Middleware(logger))
	router.Use(collectors.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	healthHandler.RegisterRoutes(router)
	assistantHandler.RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(collectors.Handler()))
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Segment Assist API Server",
			"version": handler.Version,
			"status":  "running",
		})
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Сервер запущен на порту %d", cfg.Server.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Остановка сервера...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	logger.Info("Сервер остановлен")
	return nil
}
