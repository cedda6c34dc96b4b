package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"tradejournal/internal/api"
	"tradejournal/internal/app"
	"tradejournal/internal/config"
	"tradejournal/internal/logging"
)

var exit = os.Exit

// onListen is called with the bound address once the server accepts
// connections.
var onListen = func(net.Addr) {}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Error("server exited", "err", err)
		stop()
		exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("server", flag.ContinueOnError)
	var (
		dataDir string
		envFile string
		port    int
		host    string
	)
	flags.StringVar(&dataDir, "data-dir", "", "Directory for the database and logs")
	flags.StringVar(&envFile, "env-file", ".env", "Optional .env file to load")
	flags.IntVar(&port, "port", 8000, "Port to run the server on")
	flags.StringVar(&host, "host", "127.0.0.1", "Host to bind the server to")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	if dataDir != "" {
		config.SetRuntimeDataDir(dataDir)
	}

	resolvedDataDir, err := config.GetDataDir()
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	logger, writer, err := logging.NewLogger(filepath.Join(resolvedDataDir, "logs"), slog.LevelInfo)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close log writer", "err", err)
		}
	}()

	authCfg, err := config.LoadAuthConfig()
	if err != nil {
		return err
	}
	serverCfg, err := config.LoadServerConfig()
	if err != nil {
		return err
	}
	auth, err := api.NewAuthenticator(authCfg.JWTSecret, authCfg.TokenTTL)
	if err != nil {
		return err
	}

	core, err := app.OpenCore(logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error("failed to close core", "err", err)
		}
	}()

	handler := api.NewRouter(core, api.Options{
		Auth:             auth,
		Logger:           logger,
		AllowedOrigins:   serverCfg.CORSOrigins,
		AnalyzePerMinute: serverCfg.AnalyzePerMinute,
	})
	handler = middleware.Compress(5)(handler)

	listener, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Analyses may retry a slow model for a few minutes.
		WriteTimeout: 4 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server starting", "addr", listener.Addr().String())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()
	onListen(listener.Addr())

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
