// =============================================================================
// artifactctl 主入口
// =============================================================================
// 制品存储的运维命令行工具
//
// 使用方法:
//
//	artifactctl stats --config artifactflow.yaml
//	artifactctl list --type video_raw --status completed
//	artifactctl lineage <artifact_id>
//	artifactctl verify [--chain] [artifact_id]
//	artifactctl history <artifact_id>
//	artifactctl export --format csv --out audit.csv
//	artifactctl cleanup --days 30
//	artifactctl migrate up
//	artifactctl serve --addr :9090 --verify-interval 1h
//	artifactctl version
// =============================================================================
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/artifactflow/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run dispatches a subcommand and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	app := &app{stdout: stdout, stderr: stderr}
	var err error
	switch args[0] {
	case "stats":
		err = app.runStats(ctx, args[1:])
	case "list":
		err = app.runList(ctx, args[1:])
	case "lineage":
		err = app.runLineage(ctx, args[1:])
	case "verify":
		err = app.runVerify(ctx, args[1:])
	case "history":
		err = app.runHistory(ctx, args[1:])
	case "export":
		err = app.runExport(ctx, args[1:])
	case "cleanup":
		err = app.runCleanup(ctx, args[1:])
	case "migrate":
		err = app.runMigrate(ctx, args[1:])
	case "serve":
		err = app.runServe(ctx, args[1:])
	case "version":
		printVersion(stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "artifactctl %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `artifactctl - artifact store administration

Usage:
  artifactctl <command> [options]

Commands:
  stats                 Show storage, artifact, run and audit statistics
  list                  List artifacts (--type, --status, --run, --module)
  lineage <id>          Print the upstream lineage of an artifact
  verify [id]           Verify checksums (all artifacts when no id); --chain also checks the audit hash chain
  history <id>          Print the audit history of an artifact
  export                Export the audit trail (--format json|jsonl|csv, --out, --since, --until, --op)
  cleanup               Remove artifacts older than --days (default 30)
  migrate <sub>         Catalog schema: up, down, down-all, steps N, goto V, force V, version, status, info
  serve                 Serve /healthz, /readyz, /stats and /metrics (--addr, --verify-interval)
  version               Show version information
  help                  Show this help message

Common options:
  --config <path>       Path to configuration file (YAML)

Examples:
  artifactctl stats --config /etc/artifactflow/config.yaml
  artifactctl list --type video_deid --status completed
  artifactctl verify --chain
  artifactctl export --format csv --out audit.csv --since 2026-01-01
  artifactctl cleanup --days 90
  artifactctl migrate status
  artifactctl serve --addr 127.0.0.1:9090 --verify-interval 6h`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	// stdout 保留给命令输出
	outputs := make([]string, 0, len(cfg.OutputPaths))
	for _, p := range cfg.OutputPaths {
		if p == "stdout" {
			p = "stderr"
		}
		outputs = append(outputs, p)
	}
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
