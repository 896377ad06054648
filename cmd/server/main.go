package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/api"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/auth"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/config"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/document/extractor"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/logging"
	"github.com/sanjeevkumarraob/pdf-ingest-service/internal/session"
	"github.com/sanjeevkumarraob/pdf-ingest-service/pkg/pagestore"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Errorf("Server stopped with error: %v", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize PDF loader and ingester
	loader := extractor.NewPDFLoader(
		extractor.WithValidation(cfg.PDF.Validate),
		extractor.WithLogger(logger),
	)
	ingester := document.NewIngester(loader,
		document.WithTempDir(cfg.Upload.TempDir),
		document.WithMaxFileSize(cfg.Upload.MaxFileSize),
		document.WithMaxFiles(cfg.Upload.MaxFiles),
		document.WithWorkers(cfg.Upload.Workers),
		document.WithChunkSize(cfg.Upload.ChunkSize),
		document.WithLogger(logger),
	)

	// Initialize page store
	pages := pagestore.New[extractor.Page](&pagestore.Config{TTL: cfg.Session.TTL})
	defer func() {
		if err := pages.Close(); err != nil {
			logger.Warnf("Failed to close page store: %v", err)
		}
	}()

	// Initialize session store
	key := []byte(cfg.Session.Secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("failed to generate session key: %w", err)
		}
		logger.Warn("SESSION_SECRET not set, sessions will not survive a restart")
	}
	sessionManager := session.NewManager(logger, session.NewCookieStore(key), session.Options{
		MaxAge: cfg.Session.MaxAge,
		Secure: cfg.Session.Secure,
	})

	var jwtManager *auth.JWTManager
	if cfg.Auth.Secret != "" {
		jwtManager = auth.NewJWTManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		logger.Info("Bearer token auth enabled for /api")
	}

	handler := api.NewHandler(ingester, pages, sessionManager, logger, cfg.Upload.MaxFileSize)
	router := api.NewRouter(handler, api.RouterConfig{
		AllowOrigins: cfg.Server.AllowOrigins,
		JWTManager:   jwtManager,
	}, logger)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Infof("Server starting on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
