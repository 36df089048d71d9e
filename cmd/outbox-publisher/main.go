package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/farmlink-backend/internal/bootstrap"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
	"github.com/angelmondragon/farmlink-backend/pkg/pubsub"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, "outbox-publisher")
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		return err
	}
	rt.OnClose("pubsub", pubsubClient.Close)

	guard, err := idempotency.NewManager(rt.Redis, cfg.Outbox.DeliveryTTL)
	if err != nil {
		logg.Error(ctx, "failed to build delivery guard", err)
		return err
	}

	eventRegistry, err := registry.New(cfg.PubSub)
	if err != nil {
		logg.Error(ctx, "failed to build event registry", err)
		return err
	}
	store := outbox.NewStore(rt.DB.DB())
	relay, err := NewRelay(RelayParams{
		Outbox:      cfg.Outbox,
		Logger:      logg,
		DB:          rt.DB,
		Topics:      pubsubClient,
		Events:      store,
		Resolver:    eventRegistry,
		DeadLetters: store,
		Guard:       guard,
		Metrics:     metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(ctx, "failed to create outbox relay", err)
		return err
	}

	ctx = rt.Context(ctx)
	bootstrap.ServeMetrics(ctx, logg, cfg.Outbox.MetricsAddr)

	logg.Info(ctx, "starting outbox relay")
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox relay stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "outbox relay shut down")
	return nil
}
