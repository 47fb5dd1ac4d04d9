package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/route-beacon/bgpmon-filter/internal/config"
	"github.com/route-beacon/bgpmon-filter/internal/db"
	"github.com/route-beacon/bgpmon-filter/internal/maintenance"
	"github.com/route-beacon/bgpmon-filter/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "migrate":
		runMigrate(os.Args[2:])
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bgpmon-filter <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Connect upstream and relay matching updates")
	fmt.Println("  migrate   Run audit database migrations")
	fmt.Println()
	fmt.Println("Flags (serve, migrate): --config_file, and every key in")
	fmt.Println("the configuration file table, e.g. --server, --port, --stdout.")
}

func loadConfig(args []string) *config.Config {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)
	config.Flags(fs)
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "parsing flags: %v\n", err)
		os.Exit(1)
	}

	configFile, _ := fs.GetString("config_file")
	cfg, err := config.Load(configFile, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(levelFromSyslog(cfg.LogLevel))
	if cfg.Debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.LogFile != "" {
		zapCfg.OutputPaths = []string{cfg.LogFile}
		zapCfg.ErrorOutputPaths = []string{cfg.LogFile}
	}

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// levelFromSyslog maps the configuration file's syslog-style 0-7 severity
// onto zap's level scale: 0-3 (emerg..err) map to error, 4 (warning) to
// warn, 5-6 (notice, info) to info, and 7 (debug) to debug.
func levelFromSyslog(level int) zapcore.Level {
	switch {
	case level <= 3:
		return zap.ErrorLevel
	case level <= 4:
		return zap.WarnLevel
	case level <= 6:
		return zap.InfoLevel
	default:
		return zap.DebugLevel
	}
}

func runServe(args []string) {
	cfg := loadConfig(args)
	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("starting bgpmon-filter",
		zap.String("server", cfg.Server), zap.Int("port", cfg.Port),
		zap.Int("listening_port", cfg.ListeningPort),
	)

	if err := supervisor.Run(context.Background(), cfg, logger); err != nil {
		logger.Error("fatal startup error", zap.Error(err))
		os.Exit(1)
	}
}

func runMigrate(args []string) {
	cfg := loadConfig(args)
	logger := initLogger(cfg)
	defer logger.Sync()

	if cfg.AuditDSN == "" {
		fmt.Fprintln(os.Stderr, "migrate: audit_dsn is not configured, nothing to migrate")
		os.Exit(1)
	}

	logger.Info("running audit database migrations")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.AuditDSN, 4, 1)
	if err != nil {
		logger.Fatal("failed to connect to audit database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	pm := maintenance.NewPartitionManager(pool, cfg.AuditRetentionDays, "UTC", logger)
	if err := pm.CreatePartitions(ctx); err != nil {
		logger.Fatal("failed to create initial partitions", zap.Error(err))
	}

	logger.Info("migrations complete")
}

// migrationsDir returns the path to the migrations directory relative to
// the binary, matching the teacher's rib-ingester layout.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}
