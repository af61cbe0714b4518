// Package commands implements relo's single-command CLI: one process runs
// as either the supervising server or, internally, the short-lived client,
// selected by --client.
package commands

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/relohq/relo/internal/client"
	"github.com/relohq/relo/internal/config"
	"github.com/relohq/relo/internal/libhandle"
	"github.com/relohq/relo/internal/logger"
	"github.com/relohq/relo/internal/metrics"
	"github.com/relohq/relo/internal/server"
	"github.com/relohq/relo/internal/watcher"
)

// Build-time variables injected via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	cfgFile         string
	filePath        string
	profile         string
	host            string
	port            int
	watcherKind     string
	clientMode      bool
	logLevel        string
	logFormat       string
	pollInterval    time.Duration
	metricsAddr     string
	shutdownTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "relo <input>",
	Short: "relo hot-reloads a dynamically loaded library as it's rebuilt",
	Long: `relo supervises a short-lived client process that loads a shared
library and runs it. The library is either the one built from <input> (a
project directory) or the prebuilt library named by --file, in which case
<input> is ignored; <input> itself is never loaded as a library file.
When the artifact changes on disk, relo
asks the running client for its state, restarts it against the new
build, and hands the state back.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.MaximumNArgs(1),
	RunE:          runRoot,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "optional YAML config file")
	rootCmd.Flags().StringVar(&filePath, "file", "", "library file to load directly, bypassing build artifact resolution (required in --client mode)")
	rootCmd.Flags().StringVar(&profile, "profile", "debug", "build profile used to resolve an artifact inside a project directory")
	rootCmd.Flags().StringVar(&host, "host", "localhost", "control socket host")
	rootCmd.Flags().IntVar(&port, "port", 49152, "control socket port")
	rootCmd.Flags().StringVar(&watcherKind, "watcher", "poll", "watcher strategy: poll or notify")
	rootCmd.Flags().BoolVar(&clientMode, "client", false, "internal: run in client mode, connect back to the parent server")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", watcher.DefaultPollInterval, "poll watcher interval (only with --watcher=poll)")
	rootCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, expose a Prometheus /metrics endpoint on this address (server mode only)")
	rootCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 5*time.Second, "max time to wait for a clean shutdown before giving up (server mode only)")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func runRoot(cmd *cobra.Command, args []string) error {
	applyConfigFileDefaults(cmd)

	if err := logger.Init(logger.Config{Level: logLevel, Format: logFormat}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if clientMode {
		return runClientMode()
	}
	return runServerMode(args)
}

// applyConfigFileDefaults loads an optional config file and, for every
// flag the user did not explicitly set on the command line, substitutes
// the config file's value. CLI flags always win over the config file.
func applyConfigFileDefaults(cmd *cobra.Command) {
	if cfgFile == "" && !config.DefaultConfigExists() {
		return
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Warn("failed to load config file, using flag defaults", logger.Err(err))
		return
	}

	flags := cmd.Flags()
	if !flags.Changed("log-level") {
		logLevel = cfg.Logging.Level
	}
	if !flags.Changed("log-format") {
		logFormat = cfg.Logging.Format
	}
	if !flags.Changed("host") {
		host = cfg.Network.Host
	}
	if !flags.Changed("port") {
		if p, err := strconv.Atoi(cfg.Network.Port); err == nil {
			port = p
		}
	}
	if !flags.Changed("watcher") {
		watcherKind = cfg.Watcher.Kind
	}
	if !flags.Changed("poll-interval") {
		pollInterval = cfg.Watcher.PollInterval
	}
	if !flags.Changed("profile") {
		profile = cfg.Build.Profile
	}
	if !flags.Changed("metrics-addr") {
		metricsAddr = cfg.Metrics.Addr
	}
	if !flags.Changed("shutdown-timeout") {
		shutdownTimeout = cfg.ShutdownTimeout
	}
}

func runClientMode() error {
	if filePath == "" {
		return fmt.Errorf("relo: --client requires --file")
	}
	c := client.New(client.Config{
		ServerAddr:  net.JoinHostPort(host, strconv.Itoa(port)),
		LibraryPath: filePath,
	}, libhandle.Load)
	return c.Run()
}

func runServerMode(args []string) error {
	var input string
	if len(args) == 1 {
		input = args[0]
	}

	artifactPath, err := resolveArtifact(input, filePath, profile)
	if err != nil {
		return fmt.Errorf("relo: %w", err)
	}

	var reg *prometheus.Registry
	var m *metrics.Metrics
	var metricsSrv *metrics.Server
	if metricsAddr != "" {
		reg = prometheus.NewRegistry()
		m = metrics.New(reg)
		metricsSrv = metrics.NewServer(metricsAddr, reg)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				logger.Error("metrics server stopped", logger.Err(err))
			}
		}()
	} else {
		m = metrics.New(nil)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("relo: resolve own executable: %w", err)
	}

	srv, err := server.New(server.Config{
		Host:            host,
		Port:            port,
		ArtifactPath:    artifactPath,
		LoadedPath:      stablePath(artifactPath),
		WatcherKind:     watcher.Kind(watcherKind),
		PollInterval:    pollInterval,
		Executable:      exe,
		Args:            os.Args[1:],
		ShutdownTimeout: shutdownTimeout,
		Metrics:         m,
	}, nil)
	if err != nil {
		return fmt.Errorf("relo: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverDone := make(chan error, 1)
	go func() { serverDone <- srv.Run(ctx) }()

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			if metricsSrv != nil {
				_ = metricsSrv.Shutdown(shutdownTimeout)
			}
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigCh)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownTimeout)
		}
		return err
	}

	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownTimeout)
	}
	return nil
}
