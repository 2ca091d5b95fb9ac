package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/carebook/carebook-api/internal/config"
	"github.com/carebook/carebook-api/internal/domain/credit"
	"github.com/carebook/carebook-api/internal/domain/payment"
	"github.com/carebook/carebook-api/internal/middleware"
	"github.com/carebook/carebook-api/internal/pkg/database"
	"github.com/carebook/carebook-api/internal/pkg/jwt"
	"github.com/carebook/carebook-api/internal/pkg/logger"
	"github.com/carebook/carebook-api/internal/pkg/paystack"
	pkgresponse "github.com/carebook/carebook-api/internal/pkg/response"
)

const identityTokenTTL = 15 * time.Minute

func main() {
	cfg := config.Load()
	logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
		LogFile:     cfg.LogFile,
	})

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Carebook API")

	catalog, err := credit.ParseCatalog(cfg.PlanCatalog)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid PLAN_CATALOG")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database schema")
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	var jwtService *jwt.Service
	if cfg.JWTSecret != "" {
		jwtService = jwt.NewService(cfg.JWTSecret, identityTokenTTL)
	} else {
		log.Warn().Msg("JWT_SECRET is empty, authenticated routes will reject every request")
	}

	if cfg.Paystack.SecretKey == "" {
		log.Warn().Msg("PAYSTACK_SECRET_KEY is empty, payment init and verify will fail")
	}

	// ---------- Repositories ----------
	paymentRepo := payment.NewRepository(db)
	creditRepo := credit.NewRepository(db)

	// ---------- Services ----------
	paystackClient := paystack.NewClient(paystack.Config{
		BaseURL:   cfg.Paystack.BaseURL,
		SecretKey: cfg.Paystack.SecretKey,
		Timeout:   cfg.Paystack.Timeout,
		RetryMax:  cfg.Paystack.RetryMax,
	})
	creditService := credit.NewService(creditRepo, catalog)
	paymentService := payment.NewService(
		paymentRepo,
		payment.NewPaystackGateway(paystackClient, cfg.Paystack.CallbackURL),
		creditService,
		payment.Config{
			WebhookSecret: cfg.Paystack.WebhookSecret,
			Currency:      cfg.Paystack.Currency,
		},
	)

	var initCounter middleware.WindowCounter
	if redis != nil {
		initCounter = middleware.NewRedisCounter(redis)
	}

	r := newRouter(routerDeps{
		cfg:            cfg,
		jwt:            jwtService,
		paymentHandler: payment.NewHandler(paymentService),
		creditHandler:  credit.NewHandler(creditService),
		initCounter:    initCounter,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}

type routerDeps struct {
	cfg            *config.Config
	jwt            *jwt.Service
	paymentHandler *payment.Handler
	creditHandler  *credit.Handler
	initCounter    middleware.WindowCounter
}

func newRouter(d routerDeps) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(d.cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	authMiddleware := middleware.Auth(d.jwt)
	optionalAuth := middleware.OptionalAuth(d.jwt)
	initLimiter := middleware.RateLimit(d.initCounter, "payments_init", d.cfg.InitRateLimit, time.Minute)

	r.Mount("/payments", d.paymentHandler.Routes(authMiddleware, optionalAuth, initLimiter))
	r.Mount("/credits", d.creditHandler.Routes(authMiddleware))

	return r
}
