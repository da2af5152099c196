package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/rapture-inbox/internal/instrumentation"
	"github.com/teemow/rapture-inbox/internal/logging"
	"github.com/teemow/rapture-inbox/internal/server"
	"github.com/teemow/rapture-inbox/internal/tools/inbox_tools"
)

func newServeCmd() *cobra.Command {
	var (
		yolo bool
		poll bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Start an MCP (Model Context Protocol) server on stdin/stdout exposing the
inbox as tools: sync status, run history and sign-in state.

By default the server is read-only. Use --yolo to also expose the tools that
run a sync or change the stored credentials. Use --poll to keep syncing on
the configured interval while the server runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), rt, !yolo, poll)
		},
	}

	cmd.Flags().BoolVar(&yolo, "yolo", false, "Enable write operations (sync, login, logout)")
	cmd.Flags().BoolVar(&poll, "poll", false, "Sync on the configured interval while serving")

	return cmd
}

func runServe(parent context.Context, rt *runtimeEnv, readOnly, poll bool) error {
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(ctx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			rt.logger.Warn("Error during instrumentation shutdown", logging.Err(err))
		}
	}()

	a, err := rt.openApp(ctx, provider.Metrics())
	if err != nil {
		return err
	}
	defer a.Close()

	serverContext := server.NewServerContext(ctx, a)
	if provider.Enabled() {
		serverContext.SetMetrics(provider.Metrics())
		serverContext.SetAuditLogger(instrumentation.NewAuditLogger(rt.logger, instrConfig.AuditLogging))
	}
	defer func() { _ = serverContext.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("rapture-inbox", version,
		mcpserver.WithToolCapabilities(true),
	)

	if err := inbox_tools.RegisterInboxTools(mcpSrv, serverContext, readOnly); err != nil {
		return fmt.Errorf("failed to register inbox tools: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	stdioCtx, stopPolling := context.WithCancel(gctx)
	defer stopPolling()

	g.Go(func() error {
		defer stopPolling()
		return runStdioServer(mcpSrv)
	})

	if poll {
		p := newPoller(a.PollSync, a.Auth().IsAuthenticated, rt.cfg, rt.logger)
		g.Go(func() error {
			return p.Run(stdioCtx)
		})
	}

	return g.Wait()
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
