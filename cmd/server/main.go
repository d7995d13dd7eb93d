package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/pflag"

	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		configPath string
		port       string
		logLevel   string
		logFormat  string
	)

	flagSet := pflag.NewFlagSet("roomchat", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to a YAML config file (environment variables override it)")
	flagSet.StringVar(&port, "port", "", "listen address, e.g. :8080 (overrides SERVER_PORT)")
	flagSet.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", "text", "log format: text or json")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}

	logger, err := newLogger(logLevel, logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	slog.SetDefault(logger)

	cfg := server.NewConfigFromEnv()
	if configPath != "" {
		cfg, err = server.LoadConfigFile(configPath)
		if err != nil {
			logger.Error("failed to load configuration", "error", err)
			return 1
		}
	}
	if port != "" {
		if !strings.Contains(port, ":") {
			port = ":" + port
		}
		cfg.Port = port
	}
	server.SetConfig(cfg)
	active := server.CurrentConfig()

	logger.Info("starting room chat server",
		"addr", active.Port,
		"default_room", active.DefaultRoom,
		"allowed_origins", active.AllowedOrigins)

	server.StartHub()
	httpServer := server.CreateServer(active.Port, server.SetupRoutes())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.StartServer(httpServer)
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		active.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServerContext(ctx, httpServer)
			},
			"hub": func(_ context.Context) error {
				return server.GetHub().Shutdown(active.ShutdownTimeout)
			},
		},
	)

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
			return 1
		}
		// Shutdown already closed the listener; let the remaining
		// operations finish.
		return <-wait
	case exitCode := <-wait:
		logger.Info("server exited", "code", exitCode)
		return exitCode
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q: want text or json", format)
	}
}
