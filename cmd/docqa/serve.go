package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"docqa/internal/app"
	"docqa/internal/config"
	"docqa/internal/ratelimit"
	"docqa/internal/server"
	"docqa/internal/util"
	"docqa/pkg/ai"
	"docqa/pkg/chunker"
	"docqa/pkg/extract"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser, err := util.InitLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	text, err := ai.NewGenerator(ai.GeneratorConfig{
		Provider: cfg.GenerationProvider,
		Model:    cfg.GenerationModel,
		BaseURL:  cfg.GenerationBaseURL,
		APIKey:   cfg.APIKey(),
	})
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}

	chunks := chunker.New(chunker.WithChunkSize(cfg.ChunkSizeWords))
	appCore, err := app.New(app.Config{
		Generator:          ai.NewAnswerGenerator(text),
		Chunker:            chunks,
		UploadDir:          cfg.UploadDir,
		SearchLimit:        cfg.SearchLimit,
		MaxUploadFiles:     cfg.MaxUploadFiles,
		MaxFileBytes:       cfg.MaxFileBytes(),
		ExtractConcurrency: cfg.ExtractConcurrency,
		GenerationTimeout:  time.Duration(cfg.GenerationTimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	chatLimiter, err := newLimiter(cfg, "chat", cfg.ChatRateLimitPerMinute)
	if err != nil {
		return err
	}
	defer closeLimiter(chatLimiter)
	uploadLimiter, err := newLimiter(cfg, "upload", cfg.UploadRateLimitPerMinute)
	if err != nil {
		return err
	}
	defer closeLimiter(uploadLimiter)

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		StaticDir:          cfg.StaticDir,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies:     trusted,
		ChatLimiter:        chatLimiter,
		UploadLimiter:      uploadLimiter,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("docqa server listening",
			"addr", addr,
			"provider", cfg.GenerationProvider,
			"model", cfg.GenerationModel,
			"redis", cfg.RedisAddr != "",
			"chunk_size", chunks.ChunkSize(),
			"extensions", extract.SupportedExtensions(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		return err
	}
	return nil
}

func newLimiter(cfg config.FileConfig, name string, perMinute int) (ratelimit.Limiter, error) {
	limiter, err := ratelimit.New(ratelimit.Config{
		Limit:         perMinute,
		Window:        time.Minute,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		Prefix:        "docqa:ratelimit:" + name,
	})
	if err != nil {
		return nil, fmt.Errorf("init %s limiter: %w", name, err)
	}
	return limiter, nil
}

func closeLimiter(l ratelimit.Limiter) {
	if c, ok := l.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("close rate limiter", "err", err)
		}
	}
}
