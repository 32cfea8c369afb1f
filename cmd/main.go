/*
Package main is the entry point for the lounge chat server.

It loads configuration, initializes the global logger, opens the stores and backend clients,
wires the chat orchestration, serves HTTP and WebSocket traffic, and shuts down gracefully
on SIGINT or SIGTERM.
*/
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"loungechat/internal/app/backend"
	"loungechat/internal/app/chat"
	"loungechat/internal/app/db"
	"loungechat/internal/app/db/mongostore"
	"loungechat/internal/app/friends"
	"loungechat/internal/app/moderation"
	"loungechat/internal/app/pm"
	"loungechat/internal/app/storage"
	"loungechat/internal/configs"
	"loungechat/internal/handler"
	"loungechat/internal/pkg/auth/jwt"
	"loungechat/internal/pkg/logx"
)

// stores groups the persistence backends selected by configuration.
type stores struct {
	mutes    moderation.Repository
	settings chat.SettingsRepository
	blocks   pm.BlockRepository
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *configs.AppConfig) (*stores, error) {
	s := &stores{}

	var pool *pgxpool.Pool
	if cfg.DatabaseDSN != "" {
		var err error
		pool, err = db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)

		s.settings = db.NewSettingsRepository(pool)
		s.blocks = db.NewBlockRepository(pool)
		s.mutes = db.NewMuteRepository(pool)
	} else {
		logx.Warn("DATABASE_URL is empty; mutes, settings and blocks are kept in memory")
		s.settings = db.NewMemorySettings()
		s.blocks = pm.NewMemoryBlocks()
		s.mutes = moderation.NewMemoryRepository()
	}

	if cfg.MuteBackend == configs.MuteBackendMongo {
		mongoCfg := mongostore.DefaultMongoConfig()
		mongoCfg.URI = cfg.MongoURI
		mongoCfg.Database = cfg.MongoDatabase

		mongoDB, err := mongostore.NewMongoDB(ctx, mongoCfg)
		if err != nil {
			s.close()
			return nil, err
		}
		if err := mongoDB.CreateIndexes(ctx); err != nil {
			logx.Warn("Failed to create MongoDB indexes", "error", err.Error())
		}
		s.closers = append(s.closers, func() {
			if err := mongoDB.Close(); err != nil {
				logx.Error(err, "Failed to close MongoDB connection")
			}
		})
		s.mutes = mongostore.NewMuteRepository(mongoDB)
	}

	return s, nil
}

func openPrivateHistory(cfg *configs.AppConfig) (pm.History, func(), error) {
	if cfg.RedisURL == "" {
		h := pm.NewMemoryHistory(pm.HistoryTTL)
		return h, h.Close, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	closeFn := func() {
		if err := client.Close(); err != nil {
			logx.Error(err, "Failed to close Redis client")
		}
	}
	return pm.NewRedisHistory(client), closeFn, nil
}

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment())
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("mute_backend", cfg.MuteBackend).
		Bool("audit_enabled", cfg.AuditEnabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publicKey, err := jwt.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		logx.Fatal(err, "Invalid JWT_PUBLIC_KEY")
	}
	authenticator := jwt.NewAuthenticator(publicKey)

	st, err := openStores(ctx, cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open stores")
	}
	defer st.close()

	pmHistory, closeHistory, err := openPrivateHistory(cfg)
	if err != nil {
		logx.Fatal(err, "Failed to open private message history")
	}
	defer closeHistory()

	httpClient := &http.Client{Timeout: cfg.BackendTimeout}

	friendsCache := friends.NewCache(
		friends.NewHTTPChecker(cfg.FriendsServiceURL, cfg.FriendsServiceSecret, httpClient),
		friends.Options{TTL: cfg.FriendsCacheTTL, Timeout: cfg.BackendTimeout},
	)
	defer friendsCache.Close()

	gate := moderation.NewGate(st.mutes, cfg.MuteCacheTTL)
	defer gate.Close()

	var archiver chat.Archiver
	if cfg.AuditEnabled() {
		store, err := storage.NewStorageService(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3Region:          cfg.S3Region,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			logx.Fatal(err, "Failed to initialize audit storage")
		}
		archiver = storage.NewArchiver(store, cfg.S3AuditPrefix)
	}

	// Initialize the connection manager and the chat orchestration
	manager := chat.NewManager()
	registry := chat.NewRegistry()

	broker := pm.NewBroker(registry, gate, friendsCache, st.blocks, pmHistory, manager, pm.Options{
		BackendTimeout: cfg.BackendTimeout,
	})

	defaultRoom := chat.FallbackRoom
	if len(cfg.DefaultRooms) > 0 {
		defaultRoom = cfg.DefaultRooms[0]
	}

	orchestrator := chat.NewOrchestrator(chat.Deps{
		Registry: registry,
		History:  chat.NewHistoryStore(cfg.HistoryMaxMessages, cfg.HistoryVisibleMessages),
		Gate:     gate,
		Broker:   broker,
		Sender:   manager,
		Auth:     authenticator,
		Profiles: backend.NewClient(cfg.StatisticServiceURL, httpClient),
		Settings: st.settings,
		Blocks:   st.blocks,
		Archiver: archiver,
	}, chat.Options{
		DefaultRoom:    defaultRoom,
		DefaultRooms:   cfg.DefaultRooms,
		BackendTimeout: cfg.BackendTimeout,
	})

	wsLimiter := handler.NewWSLimiter()
	go wsLimiter.Run(ctx)

	// Setup HTTP server and routes
	router := handler.Router(&handler.AppDeps{
		Config:        cfg,
		Manager:       manager,
		Orchestrator:  orchestrator,
		Gate:          gate,
		Settings:      st.settings,
		Authenticator: authenticator,
		WSLimiter:     wsLimiter,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logx.Info("Lounge chat server starting", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	// Hijacked WebSocket connections are not tracked by http.Server.
	manager.Shutdown(shutdownCtx)

	logx.Info("Server gracefully stopped.")
}
