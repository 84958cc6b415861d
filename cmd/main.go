/**
 * @description
 * This is the main entry point for the roundup-service. It wires the configuration,
 * the PostgreSQL pool, the optional RabbitMQ and Redis integrations, the auto-donation
 * scheduler and the HTTP API, then serves until SIGINT/SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: local .env loading.
 * - github.com/jackc/pgx/v5: PostgreSQL pool.
 * - github.com/redis/go-redis/v9: write rate limiting.
 */
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sadaqah/roundup-service/internal/api"
	"github.com/sadaqah/roundup-service/internal/app"
	"github.com/sadaqah/roundup-service/internal/config"
	"github.com/sadaqah/roundup-service/internal/store"
	"github.com/sadaqah/roundup-service/pkg/rabbitmq"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment\"")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting roundup-service\" port=%s auth_mode=%s", cfg.ServerPort, cfg.AuthMode)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	if cfg.ApplySchema {
		schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := store.ApplySchema(schemaCtx, dbpool)
		cancel()
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"schema apply failed\" err=%v", err)
		}
		log.Println("level=info component=bootstrap msg=\"schema applied\"")
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{}
	if cfg.RabbitMQURL == "" {
		log.Println("level=warn component=bootstrap msg=\"rabbitmq url missing; events will be dropped\" env=RABBITMQ_URL")
	} else if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.EventsExchange); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer producer.Close()
		publisher = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	var limiter api.RateLimiter
	if cfg.WriteRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; write rate limiting disabled\" env=REDIS_URL")
		} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; write rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			pingErr := redisClient.Ping(pingCtx).Err()
			cancel()
			if pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; write rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	repository := store.NewPostgresRepository(dbpool, cfg.StoreTimeout)
	service := app.NewService(repository, publisher, logger, app.Options{
		DefaultListLimit: cfg.DefaultListLimit,
		MaxListLimit:     cfg.MaxListLimit,
	})

	jobs := app.NewJobs(service, service, logger, cfg.AutoDonateBatchSize)
	scheduler := app.NewScheduler(jobs, logger, cfg.AutoDonateSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"scheduler start failed\" err=%v", err)
	}

	var identity api.IdentityProvider
	switch cfg.AuthMode {
	case config.AuthModeJWKS:
		if cfg.JWKSURL == "" {
			log.Fatalf("level=fatal component=bootstrap msg=\"jwks auth mode requires a JWKS url\" env=JWKS_URL")
		}
		identity = api.NewJWKSIdentity(cfg.JWKSURL, cfg.JWTAudience, cfg.JWTIssuer)
	default:
		identity = api.StaticIdentity{Email: cfg.MockUserEmail}
	}

	router := api.NewRouter(api.NewHandler(service, logger), identity, limiter, api.RouterOptions{
		AllowedOrigins:          cfg.AllowedOrigins(),
		WriteRateLimitPerMinute: cfg.WriteRateLimitPerMinute,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()
	log.Printf("level=info component=http msg=\"listening\" addr=%s", server.Addr)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	<-scheduler.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
