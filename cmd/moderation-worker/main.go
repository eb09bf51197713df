package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/config"
	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/events"
	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
)

// The worker consumes upload events, runs SafeSearch on each image and
// records a strike against users whose uploads are flagged.
func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		logger.New("development").Fatal("cannot load config", err)
	}

	log := logger.New(cfg.Env).With(zap.String("component", "moderation-worker"))
	defer logger.Sync(log)

	if len(cfg.Kafka.Brokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required", nil)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var app *firebase.App
	if cfg.DocStore.Backend == config.BackendFirestore {
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

	detector, err := services.NewVisionDetector(ctx)
	if err != nil {
		log.Fatal("failed to initialize vision client", err)
	}
	moderation := services.NewModerationService(detector, services.NewUserFlagService(store), log)

	consumer, err := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.UploadTopic, cfg.Kafka.GroupID, log)
	if err != nil {
		log.Fatal("failed to initialize kafka consumer", err)
	}
	defer consumer.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	health := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", err)
		}
	}()

	log.Info("moderation worker listening",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.UploadTopic),
		zap.String("group", cfg.Kafka.GroupID))

	err = consumer.Run(ctx, func(ctx context.Context, ev models.UploadEvent) error {
		reviewCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		err := moderation.Review(reviewCtx, ev)
		if errors.Is(err, services.ErrImageRejected) {
			log.Info("upload rejected", zap.String("user", ev.UserID), zap.String("record", ev.RecordID))
			return nil
		}
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer stopped", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = health.Shutdown(shutdownCtx)
	log.Info("moderation worker stopped")
}
