package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peter-kozarec/frontier/internal/dbg"
	"github.com/peter-kozarec/frontier/pkg/frontier"
	"github.com/peter-kozarec/frontier/pkg/market"
	"github.com/peter-kozarec/frontier/pkg/market/duckdb"
	"github.com/peter-kozarec/frontier/pkg/market/mapped"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := dbg.NewLogger(cfg.Log.Mode, cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	logger.Info(fmt.Sprintf("frontier %s", Version))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, cfg); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted")
			return
		}
		logger.Error("frontier run failed", zap.Error(err))
		cancel()
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("done")
}

func run(ctx context.Context, logger *zap.Logger, cfg Config) error {
	from, to, err := cfg.Period()
	if err != nil {
		return err
	}

	provider, closeProvider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	defer closeProvider()

	prices, err := provider.Prices(ctx, cfg.Symbols, from, to)
	if err != nil {
		return fmt.Errorf("unable to load prices: %w", err)
	}

	returns, _, err := market.PctChange(prices)
	if err != nil {
		return fmt.Errorf("unable to compute returns: %w", err)
	}
	periods, _ := returns.Dims()

	logger.Info("returns loaded",
		zap.Strings("symbols", prices.Symbols),
		zap.Int("prices", len(prices.Dates)),
		zap.Int("periods", periods))

	builder := frontier.NewBuilder(
		frontier.WithGridSize(cfg.GridSize),
		frontier.WithWorkers(cfg.Workers),
		frontier.WithLogger(logger),
		frontier.WithSolverOptions(cfg.SolverOptions()),
	)

	res, err := builder.BuildFromReturns(ctx, returns)
	if err != nil {
		return err
	}

	report, err := frontier.NewReport(res, prices.Symbols)
	if err != nil {
		return err
	}
	report.Print(logger)

	if mv, ok := res.MinimumVariance(); ok {
		logger.Info("minimum variance portfolio",
			zap.Float64("return", mv.Return),
			zap.Float64("volatility", mv.Volatility),
			zap.Float64s("weights", mv.Weights))
	}
	logger.Info("efficient points", zap.Int("count", len(res.Efficient())))

	if cfg.Output != "" {
		if err := writeOutput(cfg.Output, newOutput(res, prices.Symbols, periods)); err != nil {
			return err
		}
		logger.Info("frontier written", zap.String("path", cfg.Output))
	}

	return nil
}

func newProvider(cfg Config) (market.Provider, func(), error) {
	switch cfg.Provider {
	case ProviderDuckDB:
		r := duckdb.NewReader(cfg.DSN)
		if err := r.Connect(); err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	case ProviderMapped:
		return mapped.NewStore(cfg.DataDir), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
