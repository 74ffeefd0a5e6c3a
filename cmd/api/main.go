package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/QuantumCredits/internal/api"
	"github.com/fastprodman/QuantumCredits/internal/clients/payout"
	"github.com/fastprodman/QuantumCredits/internal/clients/randomsource"
	"github.com/fastprodman/QuantumCredits/internal/config"
	"github.com/fastprodman/QuantumCredits/internal/events"
	"github.com/fastprodman/QuantumCredits/internal/events/kafka"
	"github.com/fastprodman/QuantumCredits/internal/events/nats"
	"github.com/fastprodman/QuantumCredits/internal/infra/dbutils"
	"github.com/fastprodman/QuantumCredits/internal/infra/logging"
	"github.com/fastprodman/QuantumCredits/internal/infra/metrics"
	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore/memory"
	pgkv "github.com/fastprodman/QuantumCredits/internal/repos/kvstore/postgres"
	sqlitekv "github.com/fastprodman/QuantumCredits/internal/repos/kvstore/sqlite"
	"github.com/fastprodman/QuantumCredits/internal/services/generation"
	"github.com/fastprodman/QuantumCredits/internal/services/ledger"
	"github.com/fastprodman/QuantumCredits/internal/services/notifier"
	"github.com/fastprodman/QuantumCredits/internal/services/withdrawal"
	"github.com/fastprodman/QuantumCredits/pkg/envconf"
	"github.com/fastprodman/QuantumCredits/pkg/shutdownqueue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	queue := shutdownqueue.New()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := queue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	store, err := openStore(ctx, cfg.Store, queue)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := metrics.New(reg)

	// --- Ledger ---
	n := notifier.New()
	l := ledger.New(store, n,
		ledger.WithConversionRate(cfg.Ledger.ConversionRate),
		ledger.WithMaxAttempts(cfg.Ledger.MaxAttempts),
	)

	repaired, err := l.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile ledger: %w", err)
	}

	balance, err := l.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}

	m.SetBalance(balance.InexactFloat64())

	slog.Info("ledger ready",
		"driver", cfg.Store.Driver,
		"balance", balance.String(),
		"conversion_rate", l.ConversionRate().String(),
		"repaired", repaired,
	)

	// --- Events ---
	err = startForwarder(l, n, m, cfg.Events, queue)
	if err != nil {
		return fmt.Errorf("start events: %w", err)
	}

	// --- Services ---
	drawer := randomsource.NewFallback(
		randomsource.NewQRNG(cfg.QRNG.URL, &http.Client{Timeout: cfg.QRNG.Timeout}),
		randomsource.Local{},
		cfg.QRNG.Timeout,
	)

	gen := generation.NewService(drawer, l, m)
	wd := withdrawal.NewService(l, newGateway(cfg.Payout), m)

	// --- HTTP server ---
	h := api.NewHandler(l, gen, wd, n)
	srv := api.NewServer(cfg.Port, api.NewRouter(h, api.RouterOptions{
		Gatherer:     reg,
		AdminEnabled: cfg.AdminEnabled,
	}))

	queue.Add("http server", srv.Shutdown)

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.Port, "admin", cfg.AdminEnabled)

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, queue *shutdownqueue.Queue) (kvstore.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		slog.Warn("using in-memory store, the ledger will not survive a restart")

		return memory.New(), nil
	case config.DriverSQLite:
		db, err := dbutils.OpenSQLite(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}

		queue.AddCloser("sqlite", db)

		err = sqlitekv.Migrate(db)
		if err != nil {
			return nil, err
		}

		return sqlitekv.New(db), nil
	case config.DriverPostgres:
		db, err := dbutils.OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}

		queue.AddCloser("postgres", db)

		return pgkv.New(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newGateway(cfg config.PayoutConfig) withdrawal.Gateway {
	if cfg.URL == "" {
		slog.Warn("PAYOUT_URL not set, withdrawals use the simulated gateway")

		return payout.Simulated{}
	}

	return payout.NewHTTP(cfg.URL, cfg.Currency, &http.Client{Timeout: cfg.Timeout})
}

// startForwarder keeps the balance gauge current and, when configured,
// mirrors every change to a broker.
func startForwarder(l *ledger.Ledger, n *notifier.Notifier, m *metrics.Metrics, cfg config.EventsConfig, queue *shutdownqueue.Queue) error {
	sinks := []events.Publisher{
		events.PublisherFunc(func(_ context.Context, e events.Event) error {
			m.SetBalance(e.Balance.InexactFloat64())
			return nil
		}),
	}

	switch cfg.Sink {
	case config.SinkNone, "":
	case config.SinkNATS:
		p, err := nats.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}

		queue.AddCloser("nats", p)
		sinks = append(sinks, p)
	case config.SinkKafka:
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)

		queue.AddCloser("kafka", p)
		sinks = append(sinks, p)
	default:
		return fmt.Errorf("unknown events sink %q", cfg.Sink)
	}

	fwd := events.NewForwarder(l, cfg.Buffer, sinks...)
	detach := fwd.Attach(n)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		_ = fwd.Run(runCtx)
	}()

	queue.Add("event forwarder", func(ctx context.Context) error {
		detach()
		cancel()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	slog.Info("event forwarding started", "sink", cfg.Sink)

	return nil
}
