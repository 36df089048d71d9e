package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
)

const metricsShutdownTimeout = 5 * time.Second

// ServeMetrics exposes the default Prometheus registry on addr in the
// background until ctx ends. A blank addr disables it.
func ServeMetrics(ctx context.Context, logg *logger.Logger, addr string) {
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		ctx := logg.WithField(ctx, "metrics_addr", addr)
		if err := Serve(ctx, logg, srv, metricsShutdownTimeout); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
}

// Serve runs srv until ctx is cancelled, then drains it within timeout.
// It returns the listener's error if the server stops on its own.
func Serve(ctx context.Context, logg *logger.Logger, srv *http.Server, timeout time.Duration) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error(ctx, "http server shutdown failed", err)
		return err
	}
	return nil
}
