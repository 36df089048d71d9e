package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/farmlink-backend/api/routes"
	"github.com/angelmondragon/farmlink-backend/internal/bootstrap"
	"github.com/angelmondragon/farmlink-backend/internal/cart"
	"github.com/angelmondragon/farmlink-backend/internal/checkout"
	"github.com/angelmondragon/farmlink-backend/internal/notifications"
	"github.com/angelmondragon/farmlink-backend/internal/orders"
	product "github.com/angelmondragon/farmlink-backend/internal/products"
	"github.com/angelmondragon/farmlink-backend/pkg/metrics"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Start(ctx, "api")
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg, logg, dbClient := rt.Config, rt.Logger, rt.DB

	policy := cart.PolicyFromConfig(cfg.Checkout)
	cartRepo := cart.NewRepository(dbClient.DB())
	productRepo := product.NewRepository(dbClient.DB())
	ordersRepo := orders.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	cartService, err := cart.NewService(cartRepo, dbClient, productRepo, policy)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		return err
	}
	checkoutService, err := checkout.NewService(checkout.Deps{
		Tx:            dbClient,
		Cart:          cartRepo,
		Products:      productRepo,
		Orders:        ordersRepo,
		Notifications: notificationsRepo,
		Outbox:        outbox.NewWriter(outbox.NewStore(dbClient.DB()), logg),
		Policy:        policy,
		Metrics:       metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		Logger:        logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create checkout service", err)
		return err
	}
	ordersService, err := orders.NewService(ordersRepo, dbClient)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		return err
	}
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			rt.Redis,
			promhttp.Handler(),
			cartService,
			checkoutService,
			ordersService,
			notificationsService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = logg.WithFields(rt.Context(ctx), map[string]any{
		"addr":   server.Addr,
		"driver": dbClient.Driver(),
	})
	logg.Info(ctx, "starting api server")
	if err := bootstrap.Serve(ctx, logg, server, shutdownTimeout); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		return err
	}
	logg.Info(ctx, "api server shut down")
	return nil
}
