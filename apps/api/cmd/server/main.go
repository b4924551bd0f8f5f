package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"docrelay/packages/go/backend/config"
	"docrelay/packages/go/backend/di"
	"docrelay/packages/go/backend/telemetry"
)

type serveOptions struct {
	configPath string
	addr       string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:           "docrelay",
		Short:         "Document upload and progressive translation relay",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", os.Getenv("APP_CONFIG_PATH"), "path to a YAML config file")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address, overrides config and APP_SERVER_ADDR")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}

func loadConfig(opts *serveOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

func run(ctx context.Context, opts *serveOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	logger, level, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics, err := telemetry.New()
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	container, err := di.FromConfig(cfg, logger, metrics)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Errorw("failed to close services", "error", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newHandler(container, cfg, logger),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infow("server listening", "addr", cfg.Server.Addr,
			"translator", cfg.Translation.Provider, "speech", cfg.Speech.Provider, "cache", cfg.Cache.Backend)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return container.Sweeper.Run(gctx)
	})

	if opts.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, opts.configPath, logger.Named("config"), func(next config.Config) {
				if opts.logLevel == "" {
					if err := level.UnmarshalText([]byte(next.Log.Level)); err != nil {
						logger.Warnw("ignoring invalid log level", "level", next.Log.Level)
					}
				}
				container.Jobs.SetPacing(next.Pipeline.PacingDelay)
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Infow("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("graceful shutdown failed", "error", err)
			if closeErr := server.Close(); closeErr != nil {
				logger.Errorw("forced close failed", "error", closeErr)
			}
		}
		return nil
	})

	return g.Wait()
}

func newLogger(levelName string) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	level := zap.NewAtomicLevel()
	if levelName != "" {
		if err := level.UnmarshalText([]byte(levelName)); err != nil {
			return nil, level, fmt.Errorf("invalid log level %q: %w", levelName, err)
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, level, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), level, nil
}

func newHandler(c *di.Container, cfg config.Config, logger *zap.SugaredLogger) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /upload", uploadHandler(c.Documents, cfg.Upload, cfg.Pipeline.MaxParagraphRunes, c.Metrics, logger.Named("upload")))
	mux.Handle("GET /ws/{id}", sessionHandler(c.Dispatcher, cfg.Server.AllowedOrigins, logger.Named("ws")))
	mux.Handle("GET /audio/{id}", audioHandler(c.Audio, logger.Named("audio")))

	health := healthHandler(c, logger)
	mux.Handle("GET /health", health)
	mux.Handle("GET /healthz", health)

	corsOptions := cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}
	if len(corsOptions.AllowedOrigins) == 0 {
		corsOptions.AllowedOrigins = []string{"*"}
	}

	return loggingMiddleware(logger.Named("http"), cors.New(corsOptions).Handler(mux))
}

func loggingMiddleware(logger *zap.SugaredLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(lrw, r)
		logger.Infow("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lrw.statusCode,
			"duration", time.Since(start),
		)
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(statusCode int) {
	lrw.statusCode = statusCode
	lrw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets websocket upgrades pass through the middleware.
func (lrw *loggingResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := lrw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	lrw.statusCode = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
