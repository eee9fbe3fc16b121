package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/xingyi1145/Neural-Network-Playground/internal/dataset"
	"github.com/xingyi1145/Neural-Network-Playground/internal/platform/env"
	"github.com/xingyi1145/Neural-Network-Playground/internal/platform/httpserver"
	"github.com/xingyi1145/Neural-Network-Playground/internal/platform/objectstore"
	"github.com/xingyi1145/Neural-Network-Playground/internal/platform/postgres"
	repo "github.com/xingyi1145/Neural-Network-Playground/internal/repo/postgres"
	"github.com/xingyi1145/Neural-Network-Playground/internal/session"
	storage "github.com/xingyi1145/Neural-Network-Playground/internal/storage/objectstore"
	"github.com/xingyi1145/Neural-Network-Playground/internal/template"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PLAYGROUND_HTTP_ADDR", ":8000")
	shutdownTimeout, err := env.Duration("PLAYGROUND_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	workers, err := env.Int("WORKER_POOL_SIZE", 1)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	if workers < 1 {
		logger.Error("WORKER_POOL_SIZE must be >= 1", "value", workers)
		os.Exit(2)
	}
	retention, err := env.Int("SESSION_RETENTION", 64)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	evalParallelism, err := env.Int("EVAL_PARALLELISM", 0)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	allowedOrigins := strings.Split(env.String("ALLOWED_ORIGINS", "*"), ",")

	registry := dataset.NewRegistry()
	mustRegister := func(p dataset.Provider) {
		if err := registry.Register(p); err != nil {
			logger.Error("dataset registration failed", "error", err)
			os.Exit(2)
		}
	}
	mustRegister(dataset.NewIris())
	mustRegister(dataset.NewSynthetic(dataset.SyntheticXOR))

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	var minioClient *minio.Client
	if storeCfg.Enabled() {
		minioClient, err = objectstore.NewMinIOClient(storeCfg)
		if err != nil {
			logger.Error("object store client init failed", "error", err)
			os.Exit(2)
		}
		startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := objectstore.EnsureBucket(startupCtx, minioClient, storeCfg); err != nil {
			cancel()
			logger.Error("object store unavailable", "error", err)
			os.Exit(1)
		}

		store, err := storage.NewMinioStoreWithClient(minioClient)
		if err != nil {
			cancel()
			logger.Error("object store wrapper init failed", "error", err)
			os.Exit(2)
		}
		curated := []*dataset.CSVDataset{
			dataset.NewCaliforniaHousing(store, storeCfg.BucketDatasets),
			dataset.NewWineQuality(store, storeCfg.BucketDatasets),
		}
		for _, p := range curated {
			if err := p.Ready(startupCtx); err != nil {
				logger.Warn("curated dataset not ready; training will fail until the file is uploaded", "error", err)
			}
			mustRegister(p)
		}
		cancel()
	}

	if dir := env.String("MNIST_DATA_DIR", ""); dir != "" {
		mustRegister(dataset.NewMNIST(dir))
	}

	catalog, err := template.Load()
	if err != nil {
		logger.Error("template catalog load failed", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	var (
		db            *sql.DB
		sessionStore  session.Store
		modelRecorder session.ModelRecorder
		modelLoader   *repo.ModelStore
	)
	if dbCfg.Enabled() {
		db, err = postgres.Open(ctx, dbCfg)
		if err != nil {
			logger.Error("database unavailable", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := repo.EnsureSchema(startupCtx, db); err != nil {
			cancel()
			logger.Error("schema setup failed", "error", err)
			os.Exit(1)
		}
		store := repo.NewSessionStore(db)
		interrupted, err := store.MarkInterrupted(startupCtx)
		if err != nil {
			cancel()
			logger.Error("interrupted session cleanup failed", "error", err)
			os.Exit(1)
		}
		cancel()
		if interrupted > 0 {
			logger.Info("marked interrupted sessions as failed", "count", interrupted)
		}
		sessionStore = store
		mstore := repo.NewModelStore(db)
		modelRecorder = mstore
		modelLoader = mstore
	}

	models := session.NewModelStore(logger, modelRecorder)
	for _, tpl := range catalog.All() {
		models.Put(session.ModelConfig{
			ID:          tpl.ID,
			Name:        tpl.Name,
			Description: tpl.Description,
			DatasetID:   tpl.DatasetID,
			Layers:      tpl.Layers,
			Status:      "created",
			CreatedAt:   time.Now().UTC(),
		})
	}
	if modelLoader != nil {
		hydrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		stored, err := modelLoader.LoadModelConfigs(hydrateCtx)
		cancel()
		if err != nil {
			logger.Warn("model config hydration failed", "error", err)
		} else {
			for _, mc := range stored {
				models.Put(mc)
			}
			logger.Info("hydrated stored model configs", "count", len(stored))
		}
	}

	manager := session.NewManager(session.Options{
		Logger:          logger,
		Registry:        registry,
		Store:           sessionStore,
		Workers:         workers,
		Retention:       retention,
		EvalParallelism: evalParallelism,
	})
	defer manager.Close(shutdownTimeout)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("playground"))
	var readiness []httpserver.ReadinessCheck
	if db != nil {
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		})
	}
	if minioClient != nil {
		readiness = append(readiness, httpserver.ReadinessCheck{
			Name: "minio",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckBucket(checkCtx, minioClient, storeCfg)
			},
		})
	}
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("playground", readiness...))

	api := newPlaygroundAPI(logger, registry, manager, models, catalog)
	api.register(mux)

	handler := httpserver.CORS(allowedOrigins, mux)

	cfg := httpserver.Config{
		Service:         "playground",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}
	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "playground", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
