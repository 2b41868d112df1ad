package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"escaperoom/internal/cache"
	"escaperoom/internal/config"
	"escaperoom/internal/logger"
	"escaperoom/internal/metrics"
	"escaperoom/internal/repository"
	"escaperoom/internal/service"
	"escaperoom/internal/tracing"
	"escaperoom/internal/transport/rest"
	"escaperoom/internal/transport/rest/middleware"
	"escaperoom/internal/transport/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("ESCAPEROOM_CONFIG_PATH")
	if configPath == "" {
		configPath = "."
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(err)
	}

	logger.Init(cfg)
	defer logger.Sync()
	log := logger.Log

	metrics.Init()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.Init(cfg.Tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			log.Fatal("failed to init tracing", zap.Error(err))
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				log.Warn("tracing shutdown failed", zap.Error(err))
			}
		}()
	}

	if cfg.AI.IsEnabled() {
		log.Info("puzzle generation enabled", zap.String("model", cfg.AI.Model))
	} else {
		log.Info("GEMINI_API_KEY not set, using built-in riddles")
	}

	// Room document store
	var roomRepo repository.RoomRepo
	switch cfg.Store.Backend {
	case "mongo":
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			log.Fatal("failed to connect to MongoDB", zap.Error(err))
		}
		defer mongoClient.Disconnect(context.Background())

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = mongoClient.Ping(pingCtx, nil)
		cancel()
		if err != nil {
			log.Fatal("failed to ping MongoDB", zap.Error(err))
		}
		if err := repository.EnsureIndexes(ctx, mongoClient, cfg.Mongo.Database); err != nil {
			log.Fatal("failed to create indexes", zap.Error(err))
		}
		roomRepo = repository.NewRoomRepo(mongoClient, cfg.Mongo.Database)
		log.Info("connected to MongoDB", zap.String("database", cfg.Mongo.Database))
	case "memory":
		roomRepo = repository.NewMemoryRoomRepo()
		log.Warn("using in-memory room store; rooms are lost on restart")
	}

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer rdb.Close()
	log.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize WebSocket hub
	wsHub := ws.NewHub()

	// Initialize services
	authSvc := service.NewAuthService(cfg.JWT.Secret, cfg.JWT.TokenTTL)
	leaderboardSvc := service.NewLeaderboardService(cache.NewLeaderboardCache(rdb), cfg.Game.LeaderboardTop)
	puzzleSvc := service.NewPuzzleService(cfg.AI)
	events := cache.NewRoomEvents(rdb)
	roomSvc := service.NewRoomService(roomRepo, events, leaderboardSvc, puzzleSvc, authSvc, cfg.Game)
	roomSvc.SetBroadcaster(wsHub)

	orchestrator := service.NewOrchestrator(roomSvc, events, cfg.Game)
	roomSvc.SetWatcher(orchestrator)
	if err := orchestrator.Resume(ctx); err != nil {
		log.Error("failed to resume rooms", zap.Error(err))
	}
	defer orchestrator.Stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	if err := limiter.TrustProxies(strings.Split(cfg.RateLimit.TrustedProxies, ",")...); err != nil {
		log.Fatal("invalid trusted proxies", zap.Error(err))
	}
	go limiter.Run(ctx)

	router := rest.NewRouter(&rest.Container{
		AuthService:        authSvc,
		RoomService:        roomSvc,
		LeaderboardService: leaderboardSvc,
		WSHub:              wsHub,
		RateLimiter:        limiter,
		AllowedOrigins:     cfg.CORS.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
