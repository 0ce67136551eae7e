package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/helipad/internal/metrics"
	"github.com/dgnsrekt/helipad/internal/notify"
	"github.com/dgnsrekt/helipad/internal/poller"
	"github.com/dgnsrekt/helipad/internal/server"
	"github.com/dgnsrekt/helipad/internal/ws"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the node for boosts and serve the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	logger.Info("configuration loaded",
		zap.String("version", version),
		zap.String("node", cfg.Node.Address),
		zap.String("database", cfg.Database.Path),
		zap.String("listen", cfg.HTTP.Listen),
		zap.Duration("pollInterval", cfg.PollInterval()),
		zap.Int("batchSize", cfg.Poller.BatchSize),
		zap.Bool("wsEnabled", cfg.HTTP.WSEnabled),
		zap.Bool("notifyEnabled", cfg.Notify.Enabled),
	)

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	node, err := connectNode(ctx)
	if err != nil {
		return err
	}
	defer node.Close()

	m := metrics.New()

	decoder, err := newDecoder(m)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifier := notify.New(&cfg.Notify, logger.Named("notify"))
	defer notifier.Wait()
	publishers := poller.Publishers{notifier}

	opts := server.Options{
		Version: version,
		Metrics: m.Handler(),
	}

	// WebSocket feed (optional)
	if cfg.HTTP.WSEnabled {
		encoder, err := ws.NewEncoder()
		if err != nil {
			return err
		}
		defer encoder.Close()

		hub := ws.NewHub(encoder, logger.Named("ws"))
		go hub.Run(ctx)

		publishers = append(publishers, hub)
		opts.LiveFeed = hub.HandleWS
		logger.Info("WebSocket enabled",
			zap.Strings("groups", []string{ws.GroupBoosts, ws.GroupStreams, ws.GroupPayments}),
		)
	}

	p := poller.New(poller.Config{
		Interval:  cfg.PollInterval(),
		BatchSize: uint64(cfg.Poller.BatchSize),
	}, node, st, decoder, publishers, m, logger.Named("poller"))

	srv := server.NewServer(st, newSender(node, m), node, opts, logger.Named("api"))
	router, err := server.NewRouter(srv, logger.Named("http"))
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	pollDone := make(chan error, 1)
	go func() {
		pollDone <- p.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		runErr = err
	}

	// Cancel context to stop the poller and WebSocket hub
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := <-pollDone; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("poller stopped", zap.Error(err))
	}

	logger.Info("server stopped")
	return runErr
}
