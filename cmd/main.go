/**
 * @description
 * This is the main entry point for the settlement-service. It is responsible
 * for initializing all components of the service, including configuration,
 * database connection, the RabbitMQ producer, the Redis rate limiter, the
 * repository, the three settlement engines, and the HTTP server. It also
 * starts the escrow timeout sweeper and handles graceful shutdown.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: Redis client for arrival-ping rate limiting.
 * - internal/api, internal/app, internal/config, internal/domain, internal/store: Internal packages.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sokoni/settlement-service/internal/api"
	"github.com/sokoni/settlement-service/internal/app"
	"github.com/sokoni/settlement-service/internal/config"
	"github.com/sokoni/settlement-service/internal/domain"
	"github.com/sokoni/settlement-service/internal/store"
	rmrabbit "github.com/sokoni/settlement-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	platformAccountID, err := uuid.Parse(cfg.PlatformAccountID)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"platform account id parse failed\" env=PLATFORM_ACCOUNT_ID err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish notification events.
	// This service only publishes; a missing broker degrades to a no-op.
	var events rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		events = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		events = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the arrival-ping rate limiter. Missing Redis should not
	// prevent the service from booting; arrival pings simply go unthrottled.
	var redisClient *redis.Client
	if cfg.ArrivalPingRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; arrival rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; arrival rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; arrival rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the three engines.
	escrowService := app.NewEscrowService(
		repository,
		events,
		cfg.NotificationExchange,
		platformAccountID,
		time.Duration(cfg.EscrowReleaseWindowHours)*time.Hour,
		domain.SplitPolicy{
			SellerPercent:   cfg.SellerSharePercent,
			DriverPercent:   cfg.DriverSharePercent,
			PlatformPercent: cfg.PlatformFeePercent,
		},
	)
	withdrawalService := app.NewWithdrawalService(repository, events, cfg.NotificationExchange)
	arrivalService := app.NewArrivalService(repository, events, cfg.NotificationExchange, cfg.ArrivalRadiusMeters)
	if redisClient != nil {
		arrivalService.SetRateLimiter(
			app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix),
			cfg.ArrivalPingRateLimitPerMinute,
		)
	}

	// Initialize the API handlers and router.
	handlers := api.NewSettlementHandlers(escrowService, withdrawalService, arrivalService)
	router := api.SettlementRoutes(handlers, cfg.JWKSURL, cfg.InternalAPIKey)

	// Start the background sweeper that auto-releases timed-out escrows.
	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go escrowService.RunSweeper(sweepCtx, time.Duration(cfg.EscrowSweepIntervalMinutes)*time.Minute)

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	cancelSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
