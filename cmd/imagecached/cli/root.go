// Package cli implements the imagecached command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/felixge/fgprof"
	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pixelvault/imagecache"
	"github.com/pixelvault/imagecache/cmd/imagecached/cli/config"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cfgFile is the path to the config file (set via --config flag).
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "imagecached",
	Short: "Load, inspect, and prune the on-disk image cache",
	Long: `imagecached drives the imagecache library from the command line.

It loads URLs through the same asynchronous, ETag-revalidating cache the
library exposes, and offers subcommands to inspect or prune the cache
directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return startProfiling(cmd.Context())
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose debug logging")
	rootCmd.PersistentFlags().String("dir", "", "Cache directory path (default: XDG cache dir)")
	rootCmd.PersistentFlags().Bool("insecure", true, "Allow invalid TLS certificates on origin requests")
	rootCmd.PersistentFlags().Int("max-requests", 4, "Maximum concurrent HTTP transfers")
	rootCmd.PersistentFlags().Int("cache-max-size", 3, "Maximum number of blob files kept on disk")
	rootCmd.PersistentFlags().String("profile-addr", "", "If set, serve an fgprof wall-clock profile on this address")
	rootCmd.PersistentFlags().String("pyroscope-url", "", "If set, send continuous profiles to this Pyroscope server")

	//nolint:errcheck // flags are defined above, so Lookup never returns nil
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	//nolint:errcheck
	viper.BindPFlag("dir", rootCmd.PersistentFlags().Lookup("dir"))
	//nolint:errcheck
	viper.BindPFlag("insecure", rootCmd.PersistentFlags().Lookup("insecure"))
	//nolint:errcheck
	viper.BindPFlag("max-requests", rootCmd.PersistentFlags().Lookup("max-requests"))
	//nolint:errcheck
	viper.BindPFlag("cache-max-size", rootCmd.PersistentFlags().Lookup("cache-max-size"))
	//nolint:errcheck
	viper.BindPFlag("profile-addr", rootCmd.PersistentFlags().Lookup("profile-addr"))
	//nolint:errcheck
	viper.BindPFlag("pyroscope-url", rootCmd.PersistentFlags().Lookup("pyroscope-url"))

	rootCmd.Version = version
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := config.Dir()
		if err == nil {
			viper.AddConfigPath(configDir)
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Environment variables: IMAGECACHED_DIR, IMAGECACHED_MAX_REQUESTS, etc.
	viper.SetEnvPrefix("IMAGECACHED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config:", viper.ConfigFileUsed())
		}
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// resolvedCacheDir returns the configured cache directory, falling back to
// the XDG default.
func resolvedCacheDir() (string, error) {
	if dir := viper.GetString("dir"); dir != "" {
		return dir, nil
	}
	return config.CacheDir()
}

// loggerFromFlags builds the slog.Logger this CLI's commands hand to the
// library, honoring --verbose.
func loggerFromFlags() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newCache constructs an imagecache.Cache configured from the resolved
// flags/config/env, passing callback through to the library unchanged.
func newCache(callback func(imagecache.Result)) (*imagecache.Cache, error) {
	dir, err := resolvedCacheDir()
	if err != nil {
		return nil, fmt.Errorf("determine cache directory: %w", err)
	}

	return imagecache.New(dir, callback,
		imagecache.WithLogger(loggerFromFlags()),
		imagecache.WithMaxRequests(viper.GetInt("max-requests")),
		imagecache.WithInsecureSkipVerify(viper.GetBool("insecure")),
		imagecache.WithCacheMaxSize(viper.GetInt("cache-max-size")),
	)
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// startProfiling wires the optional --profile-addr fgprof handler and
// --pyroscope-url continuous profiler, adapted from a throwaway spike in
// the teacher lineage into a permanent opt-in flag pair on the daemon.
func startProfiling(ctx context.Context) error {
	if addr := viper.GetString("profile-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/debug/fgprof", fgprof.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintln(os.Stderr, "profile server:", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	if url := viper.GetString("pyroscope-url"); url != "" {
		_, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "imagecached",
			ServerAddress:   url,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return fmt.Errorf("start pyroscope profiling: %w", err)
		}
	}

	return nil
}
