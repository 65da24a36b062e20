package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"assurly/internal/audit"
	"assurly/internal/catalog"
	"assurly/internal/claims"
	"assurly/internal/contract"
	jwttoken "assurly/internal/jwt_token"
	"assurly/internal/order"
	"assurly/internal/payment"
	"assurly/internal/platform/config"
	"assurly/internal/platform/httpserver"
	"assurly/internal/platform/logger"
	"assurly/internal/platform/metrics"
	"assurly/internal/platform/postgres"
	"assurly/internal/platform/redis"
	"assurly/internal/pricing"
	"assurly/internal/quote"
	"assurly/internal/sequence"
	httptransport "assurly/internal/transport/http"
	"assurly/pkg/platform/tx"
)

// main wires stores, services and the HTTP router. Business logic lives in
// the internal services; main only chooses backends from configuration.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		log.Info("postgres connected")
	} else {
		log.Warn("no DATABASE_URL, using in-memory stores")
	}

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	publisher, closePublisher, err := buildAuditPublisher(cfg, log)
	if err != nil {
		log.Error("kafka connection failed", "error", err)
		os.Exit(1)
	}
	defer closePublisher()

	m := metrics.New()
	numbers := sequence.New(buildCounterStore(db, redisClient), cfg.SequenceMaxRetries)

	var (
		runner        tx.Runner
		customerStore catalog.CustomerStore
		productStore  catalog.ProductStore
		quoteStore    quote.Store
		orderStore    order.Store
		contractStore contract.Store
		paymentStore  payment.Store
		claimStore    claims.Store
	)
	if db != nil {
		runner = tx.NewSQLRunner(db, cfg.TxTimeout)
		customerStore = catalog.NewPostgresCustomers(db)
		productStore = catalog.NewPostgresProducts(db)
		quoteStore = quote.NewPostgresStore(db)
		orderStore = order.NewPostgresStore(db)
		contractStore = contract.NewPostgresStore(db)
		paymentStore = payment.NewPostgresStore(db)
		claimStore = claims.NewPostgresStore(db)
	} else {
		runner = tx.NewMemoryRunner(cfg.TxTimeout)
		memCatalog := catalog.NewInMemoryStore()
		customerStore = memCatalog
		productStore = memCatalog.Products()
		quoteStore = quote.NewInMemoryStore()
		orderStore = order.NewInMemoryStore()
		contractStore = contract.NewInMemoryStore()
		paymentStore = payment.NewInMemoryStore()
		claimStore = claims.NewInMemoryStore()
	}

	catalogSvc := catalog.NewService(customerStore, productStore,
		catalog.WithLogger(log))
	contractSvc := contract.NewService(contractStore, customerStore, productStore, numbers,
		contract.WithLogger(log),
		contract.WithMetrics(m),
		contract.WithAuditPublisher(publisher))
	orderSvc := order.NewService(orderStore, numbers, runner,
		order.WithLogger(log),
		order.WithMetrics(m),
		order.WithAuditPublisher(publisher),
		order.WithContractIssuer(contractSvc))
	quoteSvc := quote.NewService(quoteStore, customerStore, productStore,
		pricing.NewEngine(pricing.WithMetrics(m)), numbers, runner,
		quote.WithLogger(log),
		quote.WithMetrics(m),
		quote.WithAuditPublisher(publisher),
		quote.WithOrderCreator(orderSvc))
	paymentSvc := payment.NewService(paymentStore, contractStore, runner,
		payment.WithLogger(log),
		payment.WithMetrics(m),
		payment.WithAuditPublisher(publisher),
		payment.WithContractRecorder(contractSvc))
	claimsSvc := claims.NewService(claimStore, contractStore, numbers,
		claims.WithLogger(log),
		claims.WithMetrics(m),
		claims.WithAuditPublisher(publisher))

	tokens := jwttoken.NewService(cfg.JWTSigningKey, "assurly")
	router := httptransport.NewRouter(httptransport.Services{
		Catalog:   catalogSvc,
		Quotes:    quoteSvc,
		Orders:    orderSvc,
		Contracts: contractSvc,
		Payments:  paymentSvc,
		Claims:    claimsSvc,
	}, tokens, log)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("lifecycle engine listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// buildCounterStore prefers Redis for the sequence counters when configured;
// Postgres counters share the main database otherwise.
func buildCounterStore(db *sql.DB, redisClient *redis.Client) sequence.CounterStore {
	switch {
	case redisClient != nil:
		return sequence.NewRedisStore(redisClient.Client)
	case db != nil:
		return sequence.NewPostgresStore(db)
	default:
		return sequence.NewInMemoryStore()
	}
}

func buildAuditPublisher(cfg config.Server, log *slog.Logger) (audit.Publisher, func(), error) {
	if cfg.KafkaBrokers == "" {
		return audit.NopPublisher{}, func() {}, nil
	}
	kp, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AuditTopic)
	if err != nil {
		return nil, nil, err
	}
	return audit.NewResilientPublisher(kp, log), kp.Close, nil
}
