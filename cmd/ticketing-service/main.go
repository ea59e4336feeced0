package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"eventpass/internal/auth"
	"eventpass/internal/checkin"
	checkinapi "eventpass/internal/checkin/api"
	checkindb "eventpass/internal/checkin/db"
	"eventpass/internal/config"
	"eventpass/internal/database/migrations"
	"eventpass/internal/issuer"
	issuerapi "eventpass/internal/issuer/api"
	issuerdb "eventpass/internal/issuer/db"
	"eventpass/internal/kafka"
	"eventpass/internal/logger"
	"eventpass/internal/mailer"
	"eventpass/internal/payment"
	paymentdb "eventpass/internal/payment/db"
	"eventpass/internal/qr"
)

func openDatabase(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("open postgres: %v", err))
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("connect to postgres: %v", err))
	}
	log.Info("DATABASE", "postgres connection successful")

	return bun.NewDB(sqldb, pgdialect.New())
}

func openRedis(cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("redis unavailable at %s, webhook dedup disabled: %v", cfg.Addr, err))
		return nil
	}
	log.Info("REDIS", "connected to "+cfg.Addr)
	return client
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New()
	defer log.Close()

	if cfg.QR.Secret == "" {
		log.Fatal("CONFIG", "QR_SECRET_KEY must be set")
	}

	bunDB := openDatabase(cfg.Database, log)
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
		if err := runner.Up(); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("migrate: %v", err))
		}
		log.Info("DATABASE", "migrations applied")
	}

	signer := qr.NewSigner(cfg.QR.Secret)

	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer producer.Close()
	}

	var notifier issuer.Notifier
	if cfg.Email.Enabled {
		notifier = mailer.New(cfg.Email)
	}

	var issuerPublisher issuer.Publisher
	var checkinPublisher checkin.Publisher
	if producer != nil {
		issuerPublisher = producer
		checkinPublisher = producer
	}

	issueSvc := issuer.NewService(&issuerdb.DB{Bun: bunDB}, signer, issuerPublisher, notifier, log)
	checkinSvc := checkin.NewService(&checkindb.DB{Bun: bunDB}, signer, checkinPublisher, log)

	var eventCache payment.EventCache
	if redisClient := openRedis(cfg.Redis, log); redisClient != nil {
		defer redisClient.Close()
		eventCache = payment.NewRedisEventCache(redisClient)
	}
	paymentSvc := payment.NewService(&paymentdb.DB{Bun: bunDB}, issueSvc, eventCache, log, cfg.Stripe.WebhookSecret)

	paymentHandler := &payment.Handler{Service: paymentSvc, Logger: log}
	checkinHandler := &checkinapi.Handler{Checkin: checkinSvc, Logger: log}
	ticketHandler := &issuerapi.Handler{DB: &issuerdb.DB{Bun: bunDB}, Logger: log}

	authMiddleware, err := auth.Middleware(cfg.Auth.OIDCIssuer, cfg.Auth.Verify && cfg.Auth.OIDCIssuer != "")
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("configure auth middleware: %v", err))
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook endpoint authenticates via provider signature, not bearer
		// tokens.
		r.Post("/webhooks/stripe", paymentHandler.StripeWebhook)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/events/{eventID}/checkin/validate", checkinHandler.Validate)
			r.Post("/events/{eventID}/checkin", checkinHandler.CheckIn)
			r.Get("/orders/{orderID}/tickets", ticketHandler.GetTicketsByOrder)
			r.Get("/tickets/{ticketID}/qr", ticketHandler.GetTicketQR)
		})
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", "ticketing service on "+cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("http error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctxShutdown)
	log.Info("SERVER", "ticketing service shutdown complete")
}
