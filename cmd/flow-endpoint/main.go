package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"lifetap/flow-backend/internal/api"
	"lifetap/flow-backend/internal/config"
	"lifetap/flow-backend/internal/crypto"
	"lifetap/flow-backend/internal/incident"
	"lifetap/flow-backend/internal/metrics"
	"lifetap/flow-backend/internal/platform/privacylog"
	"lifetap/flow-backend/internal/platform/ratelimiter"
	"lifetap/flow-backend/internal/session"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	configPath := flag.String("config", "", "Path to config.yaml (optional)")
	keyPath := flag.String("private-key", "", "Path to the RSA private key PEM (overrides config)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("flow-endpoint version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	logger := slog.New(privacylog.Wrap(slog.NewTextHandler(os.Stderr, nil)))
	slog.SetDefault(logger)

	cfg := config.Load(*configPath)
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *keyPath != "" {
		cfg.PrivateKeyPath = *keyPath
	}

	privateKey, err := crypto.LoadPrivateKey(cfg.PrivateKeyPath)
	if err != nil {
		// Serving without the key would turn every request into a 421 storm;
		// refuse to start instead.
		logger.Error("flow-endpoint failed to load private key", "error", err)
		os.Exit(1)
	}

	store := session.NewMemoryStore(cfg.SessionTTL)
	m := metrics.New(func() float64 { return float64(store.Len()) })

	var directory incident.MemberDirectory
	var creator incident.Creator
	if cfg.Downstream.BaseURL != "" {
		rest := incident.NewRESTClient(cfg.Downstream.BaseURL, cfg.Downstream.ServiceKey, cfg.Downstream.Timeout)
		directory = rest
		creator = rest
	} else {
		logger.Warn("no downstream configured; using in-memory incident collaborators")
		directory = incident.NewStaticDirectory()
		creator = incident.NewMemoryCreator()
	}

	handler := api.NewHandler(api.HandlerOptions{
		Transport:         crypto.NewTransport(privateKey),
		Store:             store,
		Directory:         directory,
		Creator:           creator,
		Notifier:          &incident.LogNotifier{Logger: logger},
		Limiter:           ratelimiter.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0),
		Metrics:           m,
		Logger:            logger,
		AppSecret:         cfg.AppSecret,
		FlowVersion:       cfg.FlowVersion,
		DownstreamTimeout: cfg.Downstream.Timeout,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go session.Sweep(ctx, store, cfg.SweepInterval, logger)

	srv := api.NewServer(cfg.ListenAddr, handler, m.Handler(), logger)
	logger.Info("flow-endpoint starting", "version", version)
	if err := srv.Run(ctx); err != nil {
		logger.Error("flow-endpoint failed", "error", err)
		os.Exit(1)
	}
	logger.Info("flow-endpoint stopped")
}
