package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ethgate-dev/ethgate/gateway"
	"github.com/ethgate-dev/ethgate/origins"
	"github.com/ethgate-dev/ethgate/origins/fileregistry"
	originsmem "github.com/ethgate-dev/ethgate/origins/memstore"
	"github.com/ethgate-dev/ethgate/provider/wsprovider"
	"github.com/ethgate-dev/ethgate/trust"
	trustmem "github.com/ethgate-dev/ethgate/trust/memstore"
	"github.com/ethgate-dev/ethgate/trust/redistore"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type options struct {
	listenAddr   string
	trustBackend string
	sessionTTL   time.Duration
	rateRPS      float64
	rateBurst    int
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	listenAddr := flag.String("listen", "127.0.0.1:9545", "gateway listen address")
	providerURL := flag.String("provider-url", "", "upstream executor websocket URL (overrides PROVIDER_URL)")
	extensionsFile := flag.String("extensions-file", "", "path to the YAML extension allow-list (overrides EXTENSIONS_FILE)")
	trustBackend := flag.String("trust-backend", "memory", "trust store backend: memory | redis")
	redisAddr := flag.String("redis-addr", "", "redis address for the redis trust backend (overrides REDIS_ADDR)")
	sessionTTL := flag.Duration("session-ttl", 0, "sliding session idle window (0 uses the 60s default)")
	rateRPS := flag.Float64("rate-rps", 0, "per-identity request rate limit in requests per second (0 disables)")
	rateBurst := flag.Int("rate-burst", 0, "per-identity burst allowance for the rate limit")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	logFormat := flag.String("log-format", "text", "log format: text | json")
	flag.Parse()
	if *showVersion {
		fmt.Printf("ethgate version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *providerURL != "" {
		_ = os.Setenv("PROVIDER_URL", *providerURL)
	}
	if *extensionsFile != "" {
		_ = os.Setenv("EXTENSIONS_FILE", *extensionsFile)
	}
	if *redisAddr != "" {
		_ = os.Setenv("REDIS_ADDR", *redisAddr)
	}

	logHandler := newLogHandler(*logLevel, *logFormat)
	log := slog.New(logHandler)

	err := run(ctx, log, logHandler, options{
		listenAddr:   *listenAddr,
		trustBackend: *trustBackend,
		sessionTTL:   *sessionTTL,
		rateRPS:      *rateRPS,
		rateBurst:    *rateBurst,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("ethgate failed", slog.String("err", err.Error()))
		os.Exit(1)
	}
	log.Info("ethgate stopped")
}

func run(ctx context.Context, log *slog.Logger, logHandler slog.Handler, opts options) error {
	executor, err := wsprovider.NewFromEnv(wsprovider.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build provider client: %w", err)
	}

	var registry origins.Registry
	if os.Getenv("EXTENSIONS_FILE") != "" {
		fileReg, err := fileregistry.NewFromEnv(fileregistry.WithLogger(log))
		if err != nil {
			return fmt.Errorf("load extension allow-list: %w", err)
		}
		defer func() { _ = fileReg.Close() }()
		registry = fileReg
	} else {
		log.Warn("no extension allow-list configured, extension connections will be rejected")
	}

	var store trust.Store
	switch strings.ToLower(opts.trustBackend) {
	case "", "memory":
		store = trustmem.New()
	case "redis":
		redisStore, err := redistore.NewFromEnv()
		if err != nil {
			return fmt.Errorf("build redis trust store: %w", err)
		}
		defer func() { _ = redisStore.Close() }()
		store = redisStore
	default:
		return fmt.Errorf("unknown trust backend %q", opts.trustBackend)
	}

	promRegistry := prometheus.NewRegistry()

	srv, err := gateway.New(ctx, gateway.Config{
		Executor: executor,
		Origins:  originsmem.New(originsmem.WithLogger(log)),
		Registry: registry,
		Trust:    trust.NewGate(store, trust.WithLogger(log)),
		Summon: func(ctx context.Context) {
			log.Info("wallet summon requested")
		},
		SessionTTL:        opts.sessionTTL,
		RateLimitRPS:      opts.rateRPS,
		RateLimitBurst:    opts.rateBurst,
		MetricsRegisterer: promRegistry,
		LogHandler:        logHandler,
	})
	if err != nil {
		return fmt.Errorf("build gateway: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", srv)
	mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpSrv := &http.Server{
		Addr:              opts.listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 3)
	go func() { errCh <- executor.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()
	go func() {
		log.Info("ethgate listening",
			slog.String("addr", opts.listenAddr),
			slog.String("version", version),
		)
		err := httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		_ = httpSrv.Close()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func newLogHandler(level, format string) slog.Handler {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}
