package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/navychat/internal/server"
)

// version is overridden at build time with -ldflags.
var version = "dev"

type rootOptions struct {
	configPath string
	port       string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "navychat",
		Short:        "NavyChat realtime chat server",
		Long:         "Runs the NavyChat session gateway: display names, contacts, a shared room and private threads over WebSocket.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVarP(&opts.port, "port", "p", "", "listen address, overrides config (e.g. :8080)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newVersionCommand())
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := server.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.port != "" {
		cfg.Port = opts.port
	}

	logger, err := server.NewLogger(opts.debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting NavyChat server", zap.String("version", version), zap.String("port", cfg.Port))

	srv := server.NewServer(cfg, logger)
	srv.StartHub()
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.StartServer(httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")
		return srv.Shutdown(httpServer)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}
