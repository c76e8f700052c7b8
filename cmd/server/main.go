package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"

	"github.com/ruralpay/remittance/docs"
	"github.com/ruralpay/remittance/internal/audit"
	"github.com/ruralpay/remittance/internal/config"
	"github.com/ruralpay/remittance/internal/database"
	"github.com/ruralpay/remittance/internal/handlers"
	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/ledger"
	"github.com/ruralpay/remittance/internal/logger"
	mW "github.com/ruralpay/remittance/internal/middleware"
	"github.com/ruralpay/remittance/internal/notify"
	"github.com/ruralpay/remittance/internal/rates"
	"github.com/ruralpay/remittance/internal/repository"
	"github.com/ruralpay/remittance/internal/services"
	"github.com/ruralpay/remittance/internal/settlement"
	"github.com/ruralpay/remittance/internal/token"
)

// @title Remittance API
// @version 1.0
// @description Inter-branch remittances with one-time claim codes
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger config is not known yet
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped with error")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET_KEY is required")
	}

	db, err := database.Open(ctx, database.GetConfig(), log)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, log); err != nil {
		return err
	}

	redisClient := database.InitRedis(ctx, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	rc := cfg.Remittance
	clock := idgen.SystemClock{}

	codec, err := token.NewCodec(token.StaticSecret(rc.TokenSecret), rc.TokenSalt, clock)
	if err != nil {
		return err
	}

	auditStore := audit.NewPostgresSink(db)
	deps := services.Deps{
		Store:   repository.NewPostgresStore(db, log),
		Ledger:  ledger.NewPostgresLedger(db, clock, log),
		Codec:   codec,
		Audit:   audit.Multi{auditStore, audit.NewLogSink(log)},
		History: auditStore,
		Clock:   clock,
		Log:     log,
		Config:  rc,
	}

	var rateProvider rates.Provider = rates.NewPostgresProvider(db, rc.ScaleFor)
	if redisClient != nil {
		rateProvider = rates.NewCachedProvider(rateProvider, redisClient, rc.RateCacheTTL, log)
		deps.Notifier = notify.NewRedisNotifier(redisClient, notify.DefaultQueue)
		deps.Settlement = settlement.NewPublisher(redisClient, settlement.DefaultQueue)
	}
	deps.Rates = rateProvider

	service, err := services.NewRemittanceService(deps)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(cfg, log, handlers.NewRemittanceHandler(service, log)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return service.Reaper().Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	service.Drain()
	return err
}

func newRouter(cfg *config.Config, log zerolog.Logger, remittances *handlers.RemittanceHandler) http.Handler {
	docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mW.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(mW.SecurityHeaders)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mW.TenantHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware([]byte(cfg.Auth.JWTSecret)))
			r.Route("/remittances", remittances.Routes)
		})
	})

	return r
}
