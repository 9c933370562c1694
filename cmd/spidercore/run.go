package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	gcppubsub "cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skylineware/spidercore/internal/admission"
	"github.com/skylineware/spidercore/internal/adminhttp"
	"github.com/skylineware/spidercore/internal/bus"
	busmemory "github.com/skylineware/spidercore/internal/bus/memory"
	buspubsub "github.com/skylineware/spidercore/internal/bus/pubsub"
	bussqs "github.com/skylineware/spidercore/internal/bus/sqs"
	"github.com/skylineware/spidercore/internal/clock/system"
	"github.com/skylineware/spidercore/internal/config"
	"github.com/skylineware/spidercore/internal/consumer"
	"github.com/skylineware/spidercore/internal/dataflow"
	"github.com/skylineware/spidercore/internal/dataflow/factory"
	"github.com/skylineware/spidercore/internal/dispatcher"
	sha256hash "github.com/skylineware/spidercore/internal/hash/sha256"
	"github.com/skylineware/spidercore/internal/id/uuid"
	"github.com/skylineware/spidercore/internal/lifecycle"
	"github.com/skylineware/spidercore/internal/metrics"
	"github.com/skylineware/spidercore/internal/proxypool"
	proxypoolmemory "github.com/skylineware/spidercore/internal/proxypool/memory"
	"github.com/skylineware/spidercore/internal/requestqueue"
	"github.com/skylineware/spidercore/internal/scheduler"
	"github.com/skylineware/spidercore/internal/scheduler/memory"
	schedulerpostgres "github.com/skylineware/spidercore/internal/scheduler/postgres"
	schedulersqlite "github.com/skylineware/spidercore/internal/scheduler/sqlite"
	"github.com/skylineware/spidercore/internal/seed"
	"github.com/skylineware/spidercore/internal/statistics"
	"github.com/skylineware/spidercore/internal/statistics/prom"
	statisticsstore "github.com/skylineware/spidercore/internal/statistics/store"
)

var spiderIDFlag string

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load configuration and run a spider until it terminates",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSpider(cmd.Context(), loggerFromContext(cmd.Context()))
		},
	}
	cmd.Flags().StringVar(&spiderIDFlag, "spider-id", "", "spider identity; generated if omitted and not set in config")
	return cmd
}

func runSpider(ctx context.Context, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadRaw(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	hadID := cfg.Spider.ID != "" || spiderIDFlag != ""
	if err := resolveSpiderID(&cfg, spiderIDFlag); err != nil {
		return fmt.Errorf("resolve spider id: %w", err)
	}
	if !hadID {
		logger.Info("generated spider id", zap.String("spider_id", cfg.Spider.ID))
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	metrics.Init()

	b, err := buildBus(ctx, cfg.Bus)
	if err != nil {
		return fmt.Errorf("build bus: %w", err)
	}
	defer func() { _ = b.Close() }()

	store, err := buildScheduler(cfg.Scheduler)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}

	stats, closeStats, err := buildStatistics(ctx, cfg.Statistics, logger)
	if err != nil {
		return fmt.Errorf("build statistics client: %w", err)
	}
	if closeStats != nil {
		defer closeStats(context.Background())
	}

	stage, err := factory.New(ctx, factory.Config{Type: cfg.Storage.Type, Options: cfg.Storage.Options}, logger)
	if err != nil {
		return fmt.Errorf("build storage stage: %w", err)
	}
	pipeline := dataflow.New(stage)

	admitter := admission.New(store, stats, admission.Config{
		RetriedTimes: cfg.Admission.RetriedTimes,
		Depth:        cfg.Admission.Depth,
	}, logger)

	proxies := buildProxyPool(cfg.Proxy)

	inFlight := requestqueue.New()

	publisher := dispatcher.NewPublisher(b, proxies, inFlight, cfg.Dispatch.UseProxy, logger)
	dispatch := dispatcher.New(cfg.Spider.ID, store, inFlight, admitter, publisher, stats, dispatcher.Config{
		Speed:               cfg.Dispatch.Speed,
		RequestedQueueCount: cfg.Dispatch.RequestedQueueCount,
		EmptySleepTime:      cfg.Dispatch.EmptySleepTime,
		RequestTimeout:      cfg.Dispatch.RequestTimeout(),
	}, nil, logger)

	consume := consumer.New(cfg.Spider.ID, inFlight, admitter, pipeline, stats, proxies, cfg.Dispatch.UseProxy, logger)

	var suppliers []lifecycle.RequestSupplier
	if len(cfg.Seed.URLs) > 0 {
		suppliers = append(suppliers, seed.New(cfg.Seed.URLs, cfg.Seed.DownloaderType, sha256hash.New(), system.New()))
	}

	admin := adminhttp.NewServer(adminhttp.Config{
		SpiderID:    cfg.Spider.ID,
		InFlight:    inFlight,
		Store:       store,
		AuthEnabled: cfg.Admin.AuthEnabled,
		APIKey:      cfg.Admin.APIKey,
	})
	adminSrv := &http.Server{Addr: cfg.Admin.Addr, Handler: admin.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("admin http server exited", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = adminSrv.Shutdown(shutdownCtx)
	}()

	controller, err := lifecycle.New(lifecycle.Config{
		ID:        cfg.Spider.ID,
		Name:      cfg.Spider.Name,
		Bus:       b,
		Store:     store,
		Stats:     stats,
		Admitter:  admitter,
		Pipeline:  pipeline,
		Dispatch:  dispatch,
		Consume:   consume,
		Suppliers: suppliers,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("construct lifecycle controller: %w", err)
	}

	reason, err := controller.Run(ctx)
	if err != nil {
		return fmt.Errorf("run spider: %w", err)
	}
	logger.Info("spider terminated", zap.String("reason", string(reason)))
	return nil
}

// resolveSpiderID applies an explicit --spider-id flag over cfg, or
// generates one when neither the flag nor the loaded config supplied an
// identity. Generated ids use UUIDv7 so spider identities sort roughly by
// creation time.
func resolveSpiderID(cfg *config.Config, flag string) error {
	if flag != "" {
		cfg.Spider.ID = flag
		return nil
	}
	if cfg.Spider.ID != "" {
		return nil
	}
	id, err := uuid.NewUUIDGenerator().NewID()
	if err != nil {
		return fmt.Errorf("generate spider id: %w", err)
	}
	cfg.Spider.ID = id
	return nil
}

func buildBus(ctx context.Context, cfg config.BusConfig) (bus.Bus, error) {
	switch cfg.Backend {
	case "", "memory":
		return busmemory.New(), nil
	case "pubsub":
		client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("connect pubsub: %w", err)
		}
		return buspubsub.New(client), nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQS.Region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg)
		resolve := func(topic string) (string, error) {
			url, ok := cfg.SQS.QueueURLsByTopic[topic]
			if !ok {
				return "", fmt.Errorf("no queue url configured for topic %q", topic)
			}
			return url, nil
		}
		return bussqs.New(client, resolve, cfg.SQS.WaitTimeSeconds), nil
	default:
		return nil, fmt.Errorf("unrecognized bus backend %q", cfg.Backend)
	}
}

func buildScheduler(cfg config.SchedulerConfig) (scheduler.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return memory.NewStore(), nil
	case "postgres":
		return schedulerpostgres.New(schedulerpostgres.Config{DSN: cfg.DSN})
	case "sqlite":
		return schedulersqlite.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unrecognized scheduler backend %q", cfg.Backend)
	}
}

func buildProxyPool(cfg config.ProxyConfig) proxypool.Pool {
	if len(cfg.Endpoints) == 0 {
		return nil
	}
	endpoints := make([]proxypoolmemory.Config, 0, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		endpoints = append(endpoints, proxypoolmemory.Config{
			URI:             e.URI,
			InitialScore:    e.InitialScore,
			LeasesPerSecond: e.LeasesPerSecond,
		})
	}
	return proxypoolmemory.NewPool(endpoints)
}

func buildStatistics(ctx context.Context, cfg config.StatisticsConfig, logger *zap.Logger) (statistics.Client, func(context.Context), error) {
	switch cfg.Backend {
	case "", "prom":
		return prom.New(logger), nil, nil
	case "postgres":
		client, err := statisticsstore.New(ctx, statisticsstore.Config{DSN: cfg.DSN}, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unrecognized statistics backend %q", cfg.Backend)
	}
}
