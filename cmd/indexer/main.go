// Command indexer is the entry dispatcher (C9): it parses the mode from
// os.Args, loads configuration, builds the logger and observability
// surface, opens RPC sessions and DB pools, runs schema bootstrap, and
// dispatches to the scheduler. Grounded on compliance/cmd/main.go and
// service/reporting/regulatory/cmd/main.go's config → db → migrations →
// services → router → signal-based shutdown ordering (SPEC_FULL.md §4.9).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/csic/platform/blockchain/indexer/internal/config"
	"github.com/csic/platform/blockchain/indexer/internal/explorer"
	"github.com/csic/platform/blockchain/indexer/internal/notifier"
	"github.com/csic/platform/blockchain/indexer/internal/observability"
	"github.com/csic/platform/blockchain/indexer/internal/rpcgateway"
	"github.com/csic/platform/blockchain/indexer/internal/scheduler"
	"github.com/csic/platform/blockchain/indexer/internal/store"
)

// blocksPerHour approximates block production at ~6s/block, per spec.md §6's
// index_last_hours/index_last_days conversion.
const blocksPerHour = 600

const usage = `indexer - Ethereum chain indexer

Usage:
  indexer index_all                index blocks from START_BLOCK to END_BLOCK (chain tip if -1)
  indexer index_live                subscribe and index each new block until SIGINT
  indexer index_last N               index the last N blocks
  indexer index_last_hours H         index approximately the last H hours of blocks
  indexer index_last_days D          index approximately the last D days of blocks
  indexer help | --help | -h         show this message
  indexer -v | --version             show the build version
`

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Print(usage)
		return 0
	}

	switch args[0] {
	case "help", "--help", "-h":
		fmt.Print(usage)
		return 0
	case "-v", "--version":
		version := os.Getenv("VERSION")
		if version == "" {
			version = "dev"
		}
		fmt.Println(version)
		return 0
	case "index_all", "index_live", "index_last", "index_last_hours", "index_last_days":
	default:
		fmt.Print(usage)
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		return 1
	}

	logger, err := observability.NewLogger(cfg.App.LogLevel)
	if err != nil {
		fmt.Printf("failed to build logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	if err := writePIDFile("app.pid"); err != nil {
		logger.Error("failed to write pid file", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rpcPool, err := rpcgateway.Dial(ctx, cfg.RPC.WSEndpoint, cfg.Pool.WSConnections)
	if err != nil {
		logger.Error("failed to open rpc pool", zap.Error(err))
		return 1
	}
	defer rpcPool.Close()

	dbPools, err := store.OpenPools(ctx, cfg.Postgres, cfg.Pool.DBConnections)
	if err != nil {
		logger.Error("failed to open db pools", zap.Error(err))
		return 1
	}
	defer dbPools.Close()

	if err := dbPools.Bootstrap(ctx, cfg.App.Version, cfg.Postgres.CreateTableOrder); err != nil {
		logger.Error("schema bootstrap failed, proceeding against existing schema", zap.Error(err))
	}

	explorerClient := explorer.New(cfg.Explorer.Endpoint, cfg.Explorer.APIKey, logger)

	var eventNotifier *notifier.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		eventNotifier = notifier.New(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		defer eventNotifier.Close()
	} else {
		logger.Warn("KAFKA_BROKERS not set, event notification disabled")
	}

	metrics := observability.NewMetrics()
	ready := &observability.Ready{}
	obsServer := observability.NewServer(cfg.Metrics.Addr, cfg.App.LogLevel != "debug", metrics, ready, logger)
	obsServer.Start()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("observability server shutdown error", zap.Error(err))
		}
	}()

	sched := scheduler.New(rpcPool, dbPools, explorerClient, eventNotifier, metrics, logger, cfg.Pool.MaxConcurrency)
	ready.Set(true)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	mode := args[0]
	switch mode {
	case "index_all":
		return runRange(ctx, sched, logger, cfg.Range.StartBlock, cfg.Range.EndBlock)
	case "index_live":
		return runLive(ctx, cancel, quit, sched, logger)
	case "index_last":
		n, err := parseArg(args, "index_last")
		if err != nil {
			logger.Error("invalid index_last argument", zap.Error(err))
			fmt.Print(usage)
			return 1
		}
		return runLastN(ctx, rpcPool, sched, logger, n)
	case "index_last_hours":
		h, err := parseArg(args, "index_last_hours")
		if err != nil {
			logger.Error("invalid index_last_hours argument", zap.Error(err))
			fmt.Print(usage)
			return 1
		}
		return runLastN(ctx, rpcPool, sched, logger, h*blocksPerHour)
	case "index_last_days":
		d, err := parseArg(args, "index_last_days")
		if err != nil {
			logger.Error("invalid index_last_days argument", zap.Error(err))
			fmt.Print(usage)
			return 1
		}
		return runLastN(ctx, rpcPool, sched, logger, d*24*blocksPerHour)
	default:
		fmt.Print(usage)
		return 0
	}
}

func parseArg(args []string, mode string) (int64, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a numeric argument", mode)
	}
	n, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s argument %q is not a number: %w", mode, args[1], err)
	}
	return n, nil
}

func runRange(ctx context.Context, sched *scheduler.Scheduler, logger *zap.Logger, start, end int64) int {
	if err := sched.RunRange(ctx, start, end); err != nil {
		logger.Error("range indexing failed", zap.Error(err))
		return 1
	}
	return 0
}

func runLastN(ctx context.Context, rpcPool *rpcgateway.Pool, sched *scheduler.Scheduler, logger *zap.Logger, n int64) int {
	latest, err := rpcPool.Session(0).LatestBlockNumber(ctx)
	if err != nil {
		logger.Error("failed to resolve chain tip for index_last", zap.Error(err))
		return 1
	}
	start := int64(latest) - n + 1
	if start < 0 {
		start = 0
	}
	return runRange(ctx, sched, logger, start, int64(latest))
}

func runLive(ctx context.Context, cancel context.CancelFunc, quit <-chan os.Signal, sched *scheduler.Scheduler, logger *zap.Logger) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- sched.RunLive(ctx)
	}()

	select {
	case <-quit:
		logger.Info("received shutdown signal, stopping live-tail indexing")
		cancel()
		if err := <-errCh; err != nil {
			logger.Error("live-tail indexing stopped with error", zap.Error(err))
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil {
			logger.Error("live-tail indexing failed", zap.Error(err))
			return 1
		}
		return 0
	}
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
