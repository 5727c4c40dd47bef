package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"

	"LiqPool/internal/di"
	"LiqPool/pkg/config"
	"LiqPool/pkg/util"
)

func main() {
	var (
		configPath = flag.String("config", "config/config.yaml", "config file path")
		symbol     = flag.String("symbol", "", "symbol to replay (default pipeline.symbol)")
		from       = flag.String("from", "", "range start, RFC3339 or YYYY-MM-DD (default backtest.from)")
		to         = flag.String("to", "", "range end, exclusive (default backtest.to)")
		source     = flag.String("source", "", "bar source: clickhouse or sqlite (default backtest.source)")
		sqlitePath = flag.String("sqlite", "", "sqlite database path")
		asJSON     = flag.Bool("json", false, "print the summary as JSON instead of tables")
	)
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *symbol != "" {
		cfg.Pipeline.Symbol = strings.ToUpper(*symbol)
	} else if cfg.Backtest.Symbol != "" {
		cfg.Pipeline.Symbol = cfg.Backtest.Symbol
	}
	if *source != "" {
		cfg.Backtest.Source = *source
	}
	if *sqlitePath != "" {
		cfg.Backtest.SQLite = *sqlitePath
	}
	if *from != "" {
		t, ok := util.ParseTime(*from)
		if !ok {
			log.Fatalf("-from: cannot parse %q", *from)
		}
		cfg.Backtest.From = t
	}
	if *to != "" {
		t, ok := util.ParseTime(*to)
		if !ok {
			log.Fatalf("-to: cannot parse %q", *to)
		}
		cfg.Backtest.To = t
	}
	period := time.Duration(cfg.Pipeline.BasePeriod) * time.Minute
	cfg.Backtest.From, cfg.Backtest.To = util.AlignRange(cfg.Backtest.From, cfg.Backtest.To, period)
	// flags may have changed the range or the source
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Backtest.From.IsZero() || cfg.Backtest.To.IsZero() {
		log.Fatalf("backtest range is required: set -from and -to or backtest.from/backtest.to")
	}

	bt, cleanup, err := di.InitializeBacktester(cfg)
	if err != nil {
		log.Fatalf("backtest initialization failed: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sum, err := bt.Run(ctx, cfg.Backtest.From, cfg.Backtest.To)
	if err != nil {
		log.Printf("backtest failed: %v", err)
		cleanup()
		os.Exit(1)
	}

	if *asJSON {
		var b []byte
		if b, err = jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(sum, "", "  "); err == nil {
			_, err = os.Stdout.Write(append(b, '\n'))
		}
	} else {
		err = sum.Render(os.Stdout)
	}
	if err != nil {
		log.Printf("write summary: %v", err)
	}
}
