package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stalberm/osu-cs493-assignment-4/internal/entity"
	gatewayhttp "github.com/stalberm/osu-cs493-assignment-4/internal/gateway/http"
	"github.com/stalberm/osu-cs493-assignment-4/internal/photo"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository/memory"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository/rabbit"
	"github.com/stalberm/osu-cs493-assignment-4/internal/repository/s3"
	"github.com/stalberm/osu-cs493-assignment-4/internal/thumbnail"
)

type App struct {
	gateway *gatewayhttp.Gateway
	worker  *thumbnail.Worker
	service *photo.Service
	queue   repository.Queue
	config  *Config

	cancel context.CancelFunc
}

func New(ctx context.Context) (*App, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.Default()

	var store repository.BlobStore
	switch config.Storage.Backend {
	case "memory":
		store = memory.NewStorage()
	case "s3":
		store, err = s3.New(ctx, s3.StorageConfig{
			Endpoint:     config.Storage.Endpoint,
			AccessKey:    config.Storage.AccessKey,
			AccessSecret: config.Storage.AccessSecret,
			Region:       config.Storage.Region,
			Buckets: map[entity.Namespace]string{
				entity.NamespaceOriginals:   config.Storage.OriginalsBucket,
				entity.NamespaceDerivatives: config.Storage.DerivativesBucket,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("s3 storage: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend `%s`", config.Storage.Backend)
	}

	var queue repository.Queue
	if config.Broker.URL == "memory" {
		queue = memory.NewQueue()
	} else {
		queue, err = rabbit.New(rabbit.Config{
			URL:            config.Broker.URL,
			ConnectTimeout: time.Duration(config.Broker.ConnectTimeoutSec) * time.Second,
			PublishTimeout: time.Duration(config.Broker.PublishTimeoutSec) * time.Second,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("rabbit queue: %w", err)
		}
	}

	service := photo.New(photo.Config{
		Store:  store,
		Queue:  queue,
		Jobs:   config.Broker.Queue,
		Logger: logger,
	})

	worker := thumbnail.New(thumbnail.Config{
		Store:           store,
		Queue:           queue,
		Jobs:            config.Broker.Queue,
		Size:            config.Thumbnail.Size,
		MaxImageBytes:   config.Thumbnail.MaxImageBytes,
		DownloadTimeout: time.Duration(config.Thumbnail.DownloadTimeoutSec) * time.Second,
		Consumers:       config.Broker.Workers,
		Logger:          logger,
	})

	gateway := gatewayhttp.New(gatewayhttp.GatewayConfig{
		Photo:     service,
		Address:   config.Gateway.Address,
		BodyLimit: config.Gateway.BodyLimit,
	})

	return &App{
		gateway: gateway,
		worker:  worker,
		service: service,
		queue:   queue,
		config:  config,
	}, nil
}

func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go func() {
		if err := a.worker.Run(ctx); err != nil {
			slog.Error("worker stopped", slog.String("error", err.Error()))
		}
	}()

	go a.service.Reconcile(ctx, time.Duration(a.config.Thumbnail.ReconcileIntervalSec)*time.Second)

	if err := a.gateway.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway run: %w", err)
	}

	return nil
}

func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.gateway.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}

	if a.cancel != nil {
		a.cancel()
	}

	if err := a.queue.Close(); err != nil {
		return fmt.Errorf("queue close: %w", err)
	}

	return nil
}
