package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/revaspay/storefront/internal/config"
	"github.com/revaspay/storefront/internal/database"
	"github.com/revaspay/storefront/internal/handlers"
	"github.com/revaspay/storefront/internal/jobs"
	"github.com/revaspay/storefront/internal/logger"
	"github.com/revaspay/storefront/internal/middleware"
	"github.com/revaspay/storefront/internal/queue"
	"github.com/revaspay/storefront/internal/routes"
	"github.com/revaspay/storefront/internal/services/referral"
	"github.com/revaspay/storefront/internal/services/rewards"
	"github.com/revaspay/storefront/internal/services/settings"
	"github.com/revaspay/storefront/internal/services/wallet"
	"github.com/revaspay/storefront/internal/utils"

	// Operator time zones must resolve even on hosts without a zoneinfo database
	_ "time/tzdata"
)

func main() {
	// Initialize configuration
	cfg := config.LoadConfig()

	log := logger.New(cfg.Environment, "storefront-rewards")
	defer func() { _ = log.Sync() }()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.InitDB(cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.URL,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = redisClient.Close() }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Initialize services
	walletService := wallet.NewWalletService(db)
	referralService := referral.NewReferralService(db)
	settingsService := settings.NewService(db)
	store := rewards.NewGormStore(db)

	sources := []rewards.Source{
		rewards.NewInvestmentSource(store),
		rewards.NewNFTSource(store),
		rewards.NewRankSource(referralService, store, nil),
	}
	policy := rewards.NewDirectReferrerPolicy(referralService, decimal.NewFromFloat(cfg.Rewards.KickbackRate))
	distributor := rewards.NewDistributor(db, walletService, policy, log.Named("distributor"), sources...)
	orchestrator := rewards.NewOrchestrator(rewards.OrchestratorConfig{
		Sources:     sources,
		Distributor: distributor,
		Settings:    settingsService,
		Addresses:   store,
		Settlements: map[rewards.PayoutMode]rewards.SettlementExecutor{
			rewards.PayoutModeOnChain: rewards.NewOnChainSettlement(cfg.Rewards.EthChainID, store, log.Named("settlement")),
		},
		Logger: log.Named("orchestrator"),
	})

	// Background queue for manual runs
	redisQueue := queue.NewRedisQueue(redisClient, db, log.Named("queue"))
	runJobs := jobs.NewRewardRunJobs(redisQueue, orchestrator, log.Named("jobs"))
	jobProcessor := queue.NewJobProcessor(redisQueue, cfg.Rewards.Workers, log.Named("worker"))
	jobs.RegisterAllJobHandlers(jobProcessor, runJobs)
	jobProcessor.Start(ctx)

	// Scheduled runs
	scheduler := jobs.NewRewardScheduler(orchestrator, settingsService, log.Named("scheduler"))
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start reward scheduler", zap.Error(err))
	}

	tokens, err := utils.NewTokenManager(cfg.JWT.Secret)
	if err != nil {
		log.Fatal("Failed to initialize token validation", zap.Error(err))
	}
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Stop()

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecureHeaders(cfg.IsProduction()))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// Setup routes
	routes.RegisterOpsRoutes(router, db)
	routes.RegisterAdminRewardRoutes(router, routes.AdminRoutes{
		Rewards: handlers.NewAdminRewardHandler(
			orchestrator, runJobs, redisQueue, settingsService, scheduler, log.Named("admin")),
		Wallets:     handlers.NewAdminWalletHandler(db, walletService, log.Named("admin")),
		Tokens:      tokens,
		RateLimiter: rateLimiter,
	})

	// Start server
	srv := startServer(router, cfg.Server, log)

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	scheduler.Stop()
	stop()
	jobProcessor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exiting")
}

// startServer starts the HTTP server
func startServer(router *gin.Engine, cfg config.ServerConfig, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))
	return srv
}
