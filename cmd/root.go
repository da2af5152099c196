package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/rapture-inbox/internal/app"
	"github.com/teemow/rapture-inbox/internal/config"
	"github.com/teemow/rapture-inbox/internal/instrumentation"
	"github.com/teemow/rapture-inbox/internal/logging"
)

// rootCmd represents the base command for the rapture-inbox application
var rootCmd = &cobra.Command{
	Use:   "rapture-inbox",
	Short: "Moves Rapture notes from a Google Drive mailbox into an Obsidian vault",
	Long: `rapture-inbox drains the Rapture/Obsidian folder on Google Drive into a
folder of your vault. Every note that is written locally is removed from the
mailbox, so each note arrives exactly once.

It can run as:
  - A one-shot sync (default)
  - A polling daemon (watch)
  - An MCP (Model Context Protocol) server for AI assistants (serve)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath  string
	vaultPath   string
	destination string
	logLevel    string
}

var flags globalFlags

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "rapture-inbox version %s\n" .Version}}`)

	// If no subcommand is provided, run a single sync by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "sync")
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", fmt.Sprintf("Config file (default %s, env %s)", config.DefaultConfigPath(), config.EnvConfig))
	pf.StringVar(&flags.vaultPath, "vault", "", "Vault root directory")
	pf.StringVar(&flags.destination, "destination", "", "Vault folder notes are written to")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newCallbackCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}

// overrides converts the flags that were actually set into config overrides.
func (g *globalFlags) overrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{ConfigPath: g.configPath}
	if cmd.Flags().Changed("vault") {
		o.VaultPath = &g.vaultPath
	}
	if cmd.Flags().Changed("destination") {
		o.DestinationFolder = &g.destination
	}
	if cmd.Flags().Changed("log-level") {
		o.LogLevel = &g.logLevel
	}
	return o
}

// runtimeEnv is the resolved configuration and logger of one command run.
type runtimeEnv struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger
	resolve    func() (*config.Config, error)
}

func loadRuntime(cmd *cobra.Command) (*runtimeEnv, error) {
	overrides := flags.overrides(cmd)
	resolve := func() (*config.Config, error) {
		cfg, _, err := config.Resolve(config.ReadEnvOverrides(), overrides)
		return cfg, err
	}

	cfg, path, err := config.Resolve(config.ReadEnvOverrides(), overrides)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	return &runtimeEnv{cfg: cfg, configPath: path, logger: logger, resolve: resolve}, nil
}

func (r *runtimeEnv) openApp(ctx context.Context, metrics *instrumentation.Metrics) (*app.App, error) {
	a, err := app.New(ctx, app.Options{
		Config:  r.cfg,
		Metrics: metrics,
		Logger:  r.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start inbox: %w", err)
	}
	return a, nil
}
