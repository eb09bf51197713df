package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/config"
	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/events"
	"github.com/uniapp/backend/internal/handlers"
	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/middleware"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("development").Fatal("cannot load config", err)
	}

	log := logger.New(cfg.Env)
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Firebase is needed for the firestore backend, firebase sign-in and the gcs host.
	var app *firebase.App
	if cfg.DocStore.Backend == config.BackendFirestore || cfg.Auth.Provider == config.AuthFirebase || cfg.Images.Host == config.HostGCS {
		app, err = services.NewFirebaseApp(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsJSON, cfg.Firebase.StorageBucket)
		if err != nil {
			log.Fatal("failed to initialize firebase", err)
		}
	}

	store, err := docstore.Open(ctx, docstore.OpenOptions{
		Backend:  cfg.DocStore.Backend,
		DataDir:  cfg.DocStore.DataDir,
		MongoURI: cfg.Mongo.URI,
		MongoDB:  cfg.Mongo.DB,
		Firebase: app,
	})
	if err != nil {
		log.Fatal("failed to open document store", err, zap.String("backend", cfg.DocStore.Backend))
	}
	defer store.Close(context.Background())

	// Redis is optional: without it sessions and auth state are single-instance.
	var (
		rdb     *redis.Client
		revoker session.Revoker = session.NewMemoryRevoker()
	)
	if cfg.Redis.URI != "" {
		opt, err := redis.ParseURL(cfg.Redis.URI)
		if err != nil {
			log.Fatal("invalid REDIS_URI", err)
		}
		rdb = redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis ping failed, continuing", zap.Error(err))
		}
		cancel()
		defer rdb.Close()
		revoker = session.NewRedisRevoker(rdb)
	}

	broker := session.NewBroker(rdb, log)
	go broker.Run(ctx)

	provider, err := newAuthProvider(ctx, cfg, app)
	if err != nil {
		log.Fatal("failed to initialize auth provider", err, zap.String("provider", cfg.Auth.Provider))
	}

	host, err := newImageHost(ctx, cfg)
	if err != nil {
		log.Fatal("failed to initialize image host", err, zap.String("host", cfg.Images.Host))
	}
	if c, ok := host.(io.Closer); ok {
		defer c.Close()
	}

	var publisher services.UploadEventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.UploadTopic)
		if err != nil {
			log.Fatal("failed to initialize kafka publisher", err)
		}
		defer p.Close()
		publisher = p
	}

	tokens := session.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiration)

	// Initialize services
	profiles := services.NewProfileService(store)
	accounts := services.NewAccountService(provider, profiles, tokens, revoker, broker, log)
	pipeline := services.NewUploadPipeline(host, profiles, store, publisher, cfg.MaxUploadBytes(), log)
	directory := services.NewDirectoryService(store)
	scores := services.NewScoreService(store, log)

	gate := middleware.NewSessionGate(tokens, revoker, profiles, log)

	routerCfg := handlers.RouterConfig{
		Auth:           handlers.NewAuthHandler(accounts, gate, cfg.Env == "production", log),
		Profile:        handlers.NewProfileHandler(profiles, log),
		Image:          handlers.NewImageHandler(pipeline, cfg.Images.MaxUploadSizeMB, log),
		Directory:      handlers.NewDirectoryHandler(directory, log),
		Live:           handlers.NewLiveHandler(scores, broker, gate, cfg.Server.AllowedOrigins, log),
		Gate:           gate,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if cfg.Images.Host == config.HostLocal {
		routerCfg.UploadDir = cfg.Images.UploadDir
	}

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handlers.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", err)
		}
	}()

	log.Info("server starting",
		zap.String("addr", cfg.Server.Address),
		zap.String("docstore", cfg.DocStore.Backend),
		zap.String("auth", cfg.Auth.Provider),
		zap.String("image_host", cfg.Images.Host))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", err)
	}
	log.Info("server stopped")
}

func newAuthProvider(ctx context.Context, cfg *config.Config, app *firebase.App) (services.AuthProvider, error) {
	if cfg.Auth.Provider == config.AuthFirebase {
		return services.NewFirebaseProvider(ctx, app, cfg.Firebase.APIKey)
	}
	return services.NewLocalProvider(), nil
}

func newImageHost(ctx context.Context, cfg *config.Config) (services.ImageHost, error) {
	switch cfg.Images.Host {
	case config.HostCloudinary:
		return services.NewCloudinaryHost(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
	case config.HostGCS:
		return services.NewGCSHost(ctx, cfg.Firebase.StorageBucket)
	case config.HostLocal:
		return services.NewLocalHost(cfg.Images.UploadDir)
	}
	return services.NewImgBBHost(cfg.ImgBB.APIKey, cfg.ImgBB.Endpoint), nil
}
