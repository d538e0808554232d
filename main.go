package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"medexam-assistant-server/internal/config"
	"medexam-assistant-server/internal/his"
	"medexam-assistant-server/internal/logger"
	"medexam-assistant-server/internal/middleware"
	"medexam-assistant-server/internal/models"
	"medexam-assistant-server/internal/routes"
)

const serviceName = "medexam-server"

func main() {
	rootCmd := &cobra.Command{
		Use:   serviceName,
		Short: "Medical examination assistant API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			closeDatabase(db, log)

			fmt.Printf("Schema migrated on %s database.\n", cfg.Database.Driver)
			return nil
		},
	}
}

// bootstrap loads .env, the configuration and the logger.
func bootstrap() (*config.Config, *zap.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("error loading config: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		return nil, nil, fmt.Errorf("error building logger: %w", err)
	}
	if envErr != nil {
		log.Info("No .env file loaded, using process environment")
	}
	return cfg, log, nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := models.InitDB(models.DatabaseConfig{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
		Debug:  cfg.LogLevel == "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn("Error closing database", zap.Error(err))
	}
}

// connectRedis returns nil when no address is configured or the server is
// unreachable, in which case HIS lookups are not cached.
func connectRedis(cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, HIS cache disabled", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return nil
	}

	log.Info("Redis connected", zap.String("addr", cfg.Addr))
	return client
}

func runServer() error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := openDatabase(cfg)
	if err != nil {
		log.Error("Database initialization failed", zap.Error(err))
		return err
	}
	defer closeDatabase(db, log)

	redisClient := connectRedis(cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}
	hisAdapter := his.New(cfg.HIS, redisClient, log)

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))

	// Configure CORS
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, db, cfg, hisAdapter, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting",
			zap.String("port", cfg.Port),
			zap.String("db_driver", cfg.Database.Driver),
			zap.Bool("auth_enabled", cfg.AuthEnabled),
			zap.Bool("his_enabled", cfg.HIS.BaseURL != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
