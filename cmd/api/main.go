package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinimeta/dicomflow/internal/application"
	"github.com/clinimeta/dicomflow/internal/application/delivery"
	"github.com/clinimeta/dicomflow/internal/application/pipeline"
	"github.com/clinimeta/dicomflow/internal/config"
	"github.com/clinimeta/dicomflow/internal/domain/deident"
	"github.com/clinimeta/dicomflow/internal/domain/executions"
	mysqlp "github.com/clinimeta/dicomflow/internal/infra/db/mysql"
	postgresp "github.com/clinimeta/dicomflow/internal/infra/db/postgres"
	"github.com/clinimeta/dicomflow/internal/infra/httpserver"
	"github.com/clinimeta/dicomflow/internal/infra/monitoring"
	objectStore "github.com/clinimeta/dicomflow/internal/infra/storage"
	"github.com/clinimeta/dicomflow/internal/middleware"
	"github.com/clinimeta/dicomflow/internal/workflow"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("config load error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// connect execution-tracking database
	var repo executions.Repository
	var dbChecker middleware.HealthChecker
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			logger.Error("postgres connect error", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = postgresp.NewExecutionRepository(db)
		dbChecker = &middleware.DatabaseHealthChecker{DB: db}
	default:
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			logger.Error("mysql connect error", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = mysqlp.NewExecutionRepository(db)
		dbChecker = &middleware.DatabaseHealthChecker{DB: db}
	}

	// init object store
	store, err := objectStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		logger.Error("object store init error", "error", err)
		os.Exit(1)
	}

	recorder := monitoring.NewRecorder(logger)

	mode := deident.ModeLenient
	if cfg.Pipeline.Mode == "strict" {
		mode = deident.ModeStrict
	}
	deidentifier := deident.New(deident.DefaultPolicy(), []byte(cfg.Pipeline.DeidentSecret), mode)

	machine := &workflow.Machine{
		Store:        store,
		Deidentifier: deidentifier,
		Recorder:     recorder,
		OutputPrefix: cfg.Pipeline.OutputPrefix,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RetryBase:    time.Duration(cfg.Pipeline.RetryBaseSeconds) * time.Second,
		StepTimeout:  time.Duration(cfg.Pipeline.StepTimeoutSeconds) * time.Second,
	}

	pipelineSvc := &pipeline.Service{
		Repo:         repo,
		Machine:      machine,
		Clock:        application.SystemClock{},
		SuffixFilter: cfg.Pipeline.SuffixFilter,
	}

	deliverySvc := &delivery.Service{
		Store:    store,
		Recorder: recorder,
		TTL:      time.Duration(cfg.Delivery.DefaultTTLSeconds) * time.Second,
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Pipeline: pipelineSvc,
		Delivery: deliverySvc,
		Recorder: recorder,
		Logger:   logger,
		APIKeys:  cfg.Server.APIKeys,
		Health: map[string]middleware.HealthChecker{
			"database":     dbChecker,
			"object_store": &middleware.ObjectStoreHealthChecker{Store: store},
		},
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
