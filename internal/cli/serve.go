package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/config"
	"github.com/evcraddock/estate-market/internal/events"
	"github.com/evcraddock/estate-market/internal/logging"
	"github.com/evcraddock/estate-market/internal/web"
)

func newServeCmd() *cobra.Command {
	var (
		port    int
		envFile string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  "Start the HTTP server for the marketplace pages and JSON API. Settings come from EM_* environment variables and an optional .env file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), envFile, port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "port to listen on (default: EM_PORT or 8080)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env when present)")

	return cmd
}

func runServe(ctx context.Context, envFile string, port int) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Port = port
	}

	var extra []slog.Handler
	if cfg.FluentEnabled() {
		fl, err := logging.DialFluent(cfg.FluentHost, cfg.FluentPort, "estate-market")
		if err != nil {
			return err
		}
		defer func() { _ = fl.Close() }()
		extra = append(extra, logging.NewFluentHandler(fl, logLevel(cfg.DevMode)))
	}
	logging.Setup(cfg.DevMode, extra...)

	network, err := cfg.ResolveNetwork()
	if err != nil {
		return fmt.Errorf("resolving network: %w", err)
	}

	database, err := openDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer closeDB(database)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backend chain.Backend
	client, err := chain.Dial(ctx, network.RPCURL)
	switch {
	case err == nil:
		defer client.Close()
		backend = client
	case errors.Is(err, chain.ErrNoBackend):
		slog.Warn("no RPC endpoint configured; chain reads are disabled", "network", network.Name)
	default:
		slog.Warn("blockchain unavailable; chain reads are disabled", "network", network.Name, "err", err)
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.EventsEnabled() {
		p, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Warn("event broker unavailable; sale events are not published", "err", err)
		} else {
			publisher = p
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("closing event publisher", "err", err)
		}
	}()

	srv, err := web.NewServer(web.Options{
		DB:         database,
		Network:    network,
		Backend:    backend,
		Publisher:  publisher,
		BaseURL:    cfg.BaseURL,
		Secret:     cfg.SessionSecret,
		ChatDelay:  cfg.ChatDelay,
		TrustProxy: cfg.TrustProxy,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.ListenAndServe(ctx, cfg.Port)
}

func logLevel(devMode bool) slog.Level {
	if devMode {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
