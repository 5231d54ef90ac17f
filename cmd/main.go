package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-realtime-gateway/internal/infrastructure/auth"
	"go-realtime-gateway/internal/infrastructure/broker"
	"go-realtime-gateway/internal/infrastructure/config"
	"go-realtime-gateway/internal/infrastructure/hub"
	"go-realtime-gateway/internal/infrastructure/logger"
	"go-realtime-gateway/internal/infrastructure/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "realtime-gateway",
		Short:         "Fan out market events to SSE and WebSocket clients",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gateway version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the streaming gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.NewLogrusLogger(&cfg.Log)

	hubInstance := hub.New(log, hub.Options{
		HeartbeatInterval: cfg.Hub.HeartbeatInterval,
		WriteTimeout:      cfg.Hub.WriteTimeout,
		FanoutWorkers:     cfg.Hub.FanoutWorkers,
	})

	// The hub must run before the router accepts streams.
	if err := hubInstance.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	bridge := broker.NewBridge(cfg.Broker, hubInstance, log)
	authenticator := auth.NewStaticAuthenticator(cfg.Auth.TokenTable())

	router := InitRouter(log, hubInstance, authenticator, cfg)
	httpSrv := server.NewHTTPServer(router, cfg.Server)

	app := newApplication(log, httpSrv, hubInstance, bridge, cfg.Server.ShutdownTimeout)
	if err := app.Run(ctx); err != nil {
		log.Errorf("Gateway stopped with error: %v", err)
		return err
	}
	log.Info("Gateway stopped")
	return nil
}

type Application struct {
	logger          logger.Logger
	httpSrv         server.Server
	hub             *hub.Hub
	bridge          *broker.Bridge
	shutdownTimeout time.Duration
}

func newApplication(
	logger logger.Logger,
	httpSrv server.Server,
	hubInstance *hub.Hub,
	bridge *broker.Bridge,
	shutdownTimeout time.Duration,
) *Application {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &Application{
		logger:          logger.WithField("component", "app"),
		httpSrv:         httpSrv,
		hub:             hubInstance,
		bridge:          bridge,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run blocks until ctx is cancelled or a component fails, then shuts down
// the hub, the broker bridge and the HTTP server in that order.
func (app *Application) Run(ctx context.Context) error {
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(egCtx)
	})

	eg.Go(func() error {
		return app.bridge.Start(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout)
		defer cancel()

		if err := app.hub.Stop(shutdownCtx); err != nil {
			app.logger.Errorf("Failed to stop hub: %v", err)
		}
		app.bridge.Stop()

		return app.httpSrv.Stop(shutdownCtx)
	})

	return eg.Wait()
}
