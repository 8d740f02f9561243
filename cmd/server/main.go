package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/haltman-io/mailfwd/internal/api"
	"github.com/haltman-io/mailfwd/internal/config"
	"github.com/haltman-io/mailfwd/internal/confirmation"
	"github.com/haltman-io/mailfwd/internal/mailer"
	"github.com/haltman-io/mailfwd/internal/ratelimit"
	"github.com/haltman-io/mailfwd/internal/repository/postgres"
	"github.com/haltman-io/mailfwd/internal/token"
)

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	// Redis is optional: without it the service runs with admission control
	// disabled (the confirmation core does not need it for correctness).
	var rdb *redis.Client
	var limiter *ratelimit.Limiter
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		limiter = ratelimit.New(rdb, cfg.Redis.Prefix())
		if err := limiter.Ping(ctx); err != nil {
			log.Printf("WARNING: redis unreachable, admission control will fail open: %v", err)
		} else {
			log.Println("Connected to redis")
		}
	} else {
		log.Println("REDIS_URL not set, admission control disabled")
	}

	sender, err := mailer.NewSESSender(ctx, cfg.SES)
	if err != nil {
		log.Fatalf("Failed to initialize mail transport: %v", err)
	}

	confirmations := postgres.NewConfirmationRepo(db)
	aliases := postgres.NewAliasRepo(db)
	domains := postgres.NewDomainRepo(db)
	bans := postgres.NewBanRepo(db)

	codec := token.New(cfg.Confirmation.TokenMinLength, cfg.Confirmation.TokenMaxLength)
	issuer := confirmation.NewIssuer(confirmations, sender, codec, cfg.Confirmation, cfg.Forwarding)
	resolver := confirmation.NewResolver(confirmations, aliases, domains, codec)

	if cfg.Confirmation.SweepIntervalMinutes > 0 {
		sweeper := confirmation.NewSweeper(
			confirmations,
			time.Duration(cfg.Confirmation.SweepIntervalMinutes)*time.Minute,
			time.Duration(cfg.Confirmation.RetentionDays)*24*time.Hour,
		)
		go sweeper.Run(ctx)
		log.Printf("Housekeeping sweeper running every %d minutes", cfg.Confirmation.SweepIntervalMinutes)
	}

	health := api.NewHealthChecker(db, rdb)
	handlers := api.NewHandlers(issuer, resolver, aliases, domains, bans, limiter, cfg, health)
	router := api.SetupRoutes(handlers)

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Forwarding API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
