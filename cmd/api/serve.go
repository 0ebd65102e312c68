package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pilothub/api/internal/app"
	"pilothub/api/internal/deploy"
	"pilothub/api/internal/export"
	"pilothub/api/internal/genai"
	"pilothub/api/internal/gitrepo"
	"pilothub/api/internal/notify"
	"pilothub/api/internal/search"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		return err
	}

	var ai genai.Client
	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		dialer, err := genai.NewDialer(cfg.ProxyAddr)
		if err != nil {
			return err
		}
		gemini, err := genai.NewGemini(ctx, genai.GeminiOptions{
			Endpoint: cfg.GeminiEndpoint,
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.GeminiModel,
			Dialer:   dialer,
		})
		if err != nil {
			return err
		}
		defer gemini.Close()
		ai = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set; generation disabled")
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, search.NewLocal(), logger)

	exporter := export.NewService(nil, 2)
	if chrome := export.NewChromeRenderer(); chrome.Available() {
		exporter = export.NewService(chrome, 2)
	} else {
		logger.Info("headless chrome not found; pdf and png export disabled")
	}

	var publisher *deploy.Publisher
	if strings.TrimSpace(cfg.S3Endpoint) != "" {
		objectStore, err := deploy.NewMinioStore(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3UseSSL)
		if err != nil {
			return err
		}
		publisher = deploy.NewPublisher(objectStore, cfg.S3Bucket, cfg.PublicBaseURL)
	}

	var desktop notify.Notifier
	if cfg.DesktopNotify {
		desktop = notify.NewDesktop("Pilot")
	}

	service, err := app.New(ctx, app.Deps{
		Config:    cfg,
		Store:     rt.store,
		AI:        ai,
		Git:       gitrepo.New(cfg.ReposDir),
		Search:    searchService,
		Exporter:  exporter,
		Publisher: publisher,
		Notifier:  desktop,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if err := service.Bootstrap(ctx); err != nil {
		logger.Warn("bootstrap error (will retry on next restart)", "error", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation streams can run for minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("pilot api listening", "addr", cfg.Addr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-sigCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := service.Controller().Unload(shutdownCtx); err != nil {
		logger.Warn("unload on shutdown", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	return nil
}
