package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/rapture-inbox/internal/app"
	"github.com/teemow/rapture-inbox/internal/config"
	"github.com/teemow/rapture-inbox/internal/inbox"
	"github.com/teemow/rapture-inbox/internal/instrumentation"
	"github.com/teemow/rapture-inbox/internal/logging"
	"github.com/teemow/rapture-inbox/internal/server"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep the vault in sync by polling the mailbox",
		Long: `Poll the Drive mailbox every sync_interval_minutes while signed in.
The config file is watched for changes: a new destination folder or interval
applies without a restart. With [metrics] enabled a Prometheus /metrics
endpoint and health probes are served on metrics.addr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			return runWatch(cmd.Context(), rt)
		},
	}
}

func runWatch(parent context.Context, rt *runtimeEnv) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			rt.logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	a, err := rt.openApp(ctx, provider.Metrics())
	if err != nil {
		return err
	}
	defer a.Close()

	serverContext := server.NewServerContext(ctx, a)
	defer func() { _ = serverContext.Shutdown() }()

	p := newPoller(a.PollSync, a.Auth().IsAuthenticated, rt.cfg, rt.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return p.Run(gctx)
	})

	if rt.cfg.Metrics.Enabled && provider.Enabled() && provider.ServesPrometheus() {
		health := server.NewHealthChecker(serverContext)
		metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    rt.cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
			Health:                  health,
			Logger:                  rt.logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}

		g.Go(func() error {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			health.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if _, err := os.Stat(filepath.Dir(rt.configPath)); err == nil {
		watcher := &config.Watcher{
			Path:   rt.configPath,
			Logger: rt.logger,
			Reload: rt.resolve,
			OnChange: func(cfg *config.Config) {
				a.ApplyConfig(cfg)
				p.SetInterval(cfg.SyncInterval())
			},
		}
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				rt.logger.Warn("Live config reload disabled", logging.Err(err))
			}
			return nil
		})
	} else {
		rt.logger.Info("Config directory missing, live reload disabled", logging.Path(filepath.Dir(rt.configPath)))
	}

	rt.logger.Info("Watching Rapture mailbox",
		slog.String("interval", rt.cfg.SyncInterval().String()),
		logging.Path(a.Status().VaultPath),
		logging.Folder(a.Status().Destination))

	return g.Wait()
}

// poller runs a sync on every tick while signed in.
type poller struct {
	sync          func(context.Context) inbox.Result
	authenticated func() bool
	interval      time.Duration
	syncOnStart   bool
	resets        chan time.Duration
	logger        *slog.Logger
}

func newPoller(sync func(context.Context) inbox.Result, authenticated func() bool, cfg *config.Config, logger *slog.Logger) *poller {
	return &poller{
		sync:          sync,
		authenticated: authenticated,
		interval:      cfg.SyncInterval(),
		syncOnStart:   cfg.Inbox.SyncOnStart,
		resets:        make(chan time.Duration, 1),
		logger:        logging.WithOperation(logging.WithComponent(logger, "poller"), "inbox.poll"),
	}
}

// SetInterval changes the polling interval. The next tick is one full new
// interval away.
func (p *poller) SetInterval(d time.Duration) {
	for {
		select {
		case p.resets <- d:
			return
		default:
			select {
			case <-p.resets:
			default:
			}
		}
	}
}

// Run blocks until ctx is done.
func (p *poller) Run(ctx context.Context) error {
	if p.syncOnStart {
		p.tick(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-p.resets:
			if d != p.interval {
				p.logger.Info("Sync interval changed", slog.String("interval", d.String()))
				p.interval = d
			}
			ticker.Reset(d)
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *poller) tick(ctx context.Context) {
	if !p.authenticated() {
		p.logger.DebugContext(ctx, "Skipping sync while signed out")
		return
	}

	result := p.sync(ctx)
	switch {
	case app.IsNotAuthenticated(result):
		p.logger.DebugContext(ctx, "Skipping sync while signed out")
	case !result.Success():
		p.logger.WarnContext(ctx, inbox.Summary(result))
	case result.FilesDownloaded > 0:
		p.logger.InfoContext(ctx, inbox.Summary(result))
	}
}
