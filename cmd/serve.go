package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/inbound-carrier/internal/api"
	"github.com/sells-group/inbound-carrier/internal/monitoring"
	"github.com/sells-group/inbound-carrier/internal/negotiation"
	"github.com/sells-group/inbound-carrier/internal/recorder"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for the call platform",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.ValidateServe(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cat, err := initCatalog()
		if err != nil {
			return err
		}
		verifier, breaker, err := initVerifier()
		if err != nil {
			return err
		}

		rec := recorder.New(st)
		nego := negotiation.NewService(cat, st, rec)
		handler := api.NewServer(api.Config{
			APIKey:      cfg.Server.APIKey,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, verifier, cat, nego, rec).Handler()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           handler,
			ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		}

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.Int("loads", cat.Len()),
		)
		opts := serverOptions{
			SessionTTL:      cfg.Negotiation.SessionTTL(),
			PruneInterval:   cfg.Negotiation.PruneInterval(),
			ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSecs) * time.Second,
		}
		if cfg.Monitoring.Enabled {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(st, breaker),
				monitoring.NewAlerter(cfg.Monitoring),
				cfg.Monitoring,
			)
			opts.Background = append(opts.Background, checker.Run)
		}
		return runServer(ctx, srv, nego, opts)
	},
}

type sessionPruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type serverOptions struct {
	SessionTTL      time.Duration
	PruneInterval   time.Duration
	ShutdownTimeout time.Duration
	// Background loops run until the server stops.
	Background []func(ctx context.Context)
}

// runServer serves until ctx is done, then drains in-flight requests. The
// session pruner and any background loops run alongside and stop with the
// server.
func runServer(ctx context.Context, srv *http.Server, pruner sessionPruner, opts serverOptions) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")

		timeout := opts.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})

	g.Go(func() error {
		runPruner(gctx, pruner, opts.SessionTTL, opts.PruneInterval)
		return nil
	})

	for _, run := range opts.Background {
		g.Go(func() error {
			run(gctx)
			return nil
		})
	}

	return g.Wait()
}

// runPruner deletes stale sessions every interval until ctx is done. A
// non-positive ttl or interval disables it.
func runPruner(ctx context.Context, pruner sessionPruner, ttl, interval time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := pruner.Prune(ctx, ttl); err != nil && ctx.Err() == nil {
				zap.L().Warn("session prune failed", zap.Error(err))
			}
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
