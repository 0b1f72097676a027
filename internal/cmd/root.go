// Package cmd implements the tilestore command-line surface: serve,
// expire, get and warm, all sharing a cobra root command and a viper
// configuration tree, following the same structure as the teacher's own
// internal/cmd package.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/storage"

	// Backends register themselves against storage.Default from their
	// own init() functions; importing them for side effect here is what
	// makes them available to the config-driven factory.
	_ "github.com/MeKo-Tech/tilestore/internal/storage/compositing"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/diskstore"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/expiryoverlay"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/httpstore"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/nullstore"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/perstyle"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/s3store"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/sqlitestore"
	_ "github.com/MeKo-Tech/tilestore/internal/storage/unionstore"
)

var cfgFile string
var logger *slog.Logger

var rootCmd = &cobra.Command{
	Use:   "tilestore",
	Short: "A tile storage server and operator CLI",
	Long: `tilestore serves, expires and inspects map tiles backed by a
configurable graph of storage backends: local disk, SQLite, S3, HTTP
remotes, and decorators that compose them (union, per-style routing,
compositing, expiry overlay).`,
}

func Execute() {
	if logger == nil {
		initLogging() // fallback in case cobra init didn't fire
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")

	if err := viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("TILESTORE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

func initLogging() {
	levelStr := strings.ToLower(viper.GetString("log-level"))
	level := slog.LevelInfo
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error", "err":
		level = slog.LevelError
	default:
		fmt.Fprintf(os.Stderr, "Unknown log level %q, defaulting to info\n", levelStr)
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// buildStorage loads the "storage" subtree of the active viper config
// and constructs the root Storage graph from it, freezing the registry
// on first use so all backend init() registrations are locked in.
func buildStorage() (storage.Storage, error) {
	storage.Default.Freeze()

	tree := config.New(viper.AllSettings()).Subtree("storage")
	if len(tree.Keys()) == 0 {
		return nil, fmt.Errorf("cmd: config is missing a %q section", "storage")
	}

	root, err := storage.Default.Create(tree)
	if err != nil {
		return nil, fmt.Errorf("cmd: building storage graph: %w", err)
	}
	return root, nil
}
