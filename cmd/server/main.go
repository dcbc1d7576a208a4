package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hakimelghazi/quoter/config"
	exdb "github.com/hakimelghazi/quoter/db"
	"github.com/hakimelghazi/quoter/internal/engine"
	"github.com/hakimelghazi/quoter/internal/journal"
	"github.com/hakimelghazi/quoter/internal/metrics"
	"github.com/hakimelghazi/quoter/internal/util"
	"github.com/hakimelghazi/quoter/pricefeed"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// QUOTER_CONFIG points at an optional YAML file; .env and env vars win over it
	cfg, err := config.Load(os.Getenv("QUOTER_CONFIG"), "")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("quoter exited unexpectedly", zap.Error(err))
	}
	logger.Info("quoter stopped gracefully")
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	if cfg.File != "" {
		return util.NewLoggerWithFile(cfg.Level, cfg.File)
	}
	return util.NewLogger(cfg.Level)
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("starting quoter", zap.String("addr", cfg.HTTP.Addr))

	// 1) sinks
	prices := pricefeed.NewPriceCache()
	sinks := []journal.Sink{prices}

	var ledger *exdb.TradeLedger
	if cfg.Database.URL != "" {
		pool, err := exdb.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		ledger = exdb.NewTradeLedger(pool)
		if err := ledger.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, ledger)
		logger.Info("trade ledger enabled")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		ks := journal.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer ks.Close()
		sinks = append(sinks, ks)
		logger.Info("kafka publishing enabled", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	// 2) journal + metrics; the collector reads the journal's drop counter
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var jr *journal.Journal
	collector, err := metrics.NewCollector(reg, func() uint64 { return jr.Dropped() })
	if err != nil {
		return err
	}
	jr = journal.New(cfg.Journal.Buffer, logger, append(sinks, collector)...)

	// 3) engine
	mgr := engine.NewManager(logger, util.RealClock{}, jr)

	// 4) router
	s := &server{
		mgr:     mgr,
		prices:  prices,
		metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		log:     logger.Named("http"),
	}
	if ledger != nil {
		// leave s.ledger a nil interface when disabled
		s.ledger = ledger
	}
	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: newRouter(s, routerOptions{
			timeout:     cfg.HTTP.RequestTimeout,
			corsOrigins: cfg.HTTP.CORSOrigins,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// the journal outlives the HTTP server so in-flight requests still get journaled
	jctx, stopJournal := context.WithCancel(context.WithoutCancel(ctx))
	defer stopJournal()
	g.Go(func() error { return jr.Run(jctx) })

	if cfg.Feed.URL != "" {
		feed := pricefeed.NewHTTPFeed(cfg.Feed.URL, cfg.Feed.Timeout)
		g.Go(func() error {
			pricefeed.StartQuoteUpdater(gctx, feed, mgr, cfg.Feed.Symbols, cfg.Feed.Interval, logger.Named("feed"))
			return nil
		})
		logger.Info("quote feed enabled", zap.String("url", cfg.Feed.URL), zap.Strings("symbols", cfg.Feed.Symbols))
	}

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		defer stopJournal()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
