package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nrzngr/exvoria-strat-management/internal/adapters/httpapi"
	"github.com/nrzngr/exvoria-strat-management/internal/core"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, nil)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

// serve runs until ctx is done. When ready is non-nil it receives the bound
// address once the listener is open.
func (a *app) serve(ctx context.Context, ready chan<- string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := core.NewPromRecorder(reg)
	if err != nil {
		return err
	}
	svc, err := a.openService(ctx, core.WithMetricsRecorder(rec))
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	api := httpapi.New(svc,
		httpapi.WithLogger(a.logger),
		httpapi.WithGatherer(reg),
		httpapi.WithMaxMultipartBytes(a.cfg.Server.MaxMultipartBytes),
		httpapi.WithMaxRequestBytes(a.cfg.Server.MaxRequestBytes))
	srv := &http.Server{
		Handler:      api.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return err
	}
	a.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("storage", a.cfg.Storage.Driver),
		zap.String("blob", string(svc.Blobs().Driver())))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
