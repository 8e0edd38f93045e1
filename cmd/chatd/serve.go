package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "chatd/internal/apidocs"
	"chatd/internal/config"
	"chatd/internal/httpapi"
	"chatd/internal/journal"
	"chatd/internal/logging"
	"chatd/internal/manager"
	"chatd/internal/registry"
)

func runServe(ctx context.Context, fs *pflag.FlagSet, f *serverFlags) error {
	cfg, err := loadConfig(fs, f)
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()
	zlog.Logger = logger

	mcfg := manager.ManagerConfig{
		Backend:       cfg.Backend,
		Adapter:       buildAdapter(cfg),
		MaxConcurrent: cfg.MaxConcurrent,
		Defaults: &manager.GenerationDefaults{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			Stop:        cfg.Stop,
		},
		StreamPace:   cfg.StreamPace(),
		StreamBuffer: cfg.StreamBuffer,
		Publisher:    manager.NewLogPublisher(logger),
		Logger:       &logger,
		LlamaCtx:     cfg.LlamaCtx,
		LlamaThreads: cfg.LlamaThreads,
		GPULayers:    cfg.GPULayers(),
	}

	if cfg.JournalPath != "" {
		jr, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return err
		}
		defer jr.Close()
		mcfg.Journal = jr
		logger.Info().Str("path", cfg.JournalPath).Msg("request journal enabled")
	}

	if cfg.Backend == config.BackendServer {
		// the remote server owns the weights; the file name is sent as the model name
		mcfg.Model.ID = cfg.ModelFile
		mcfg.Model.Name = cfg.ModelName
		mcfg.Model.Path = cfg.ModelFile
	} else if m, err := registry.Resolve(cfg.ModelsDir, cfg.ModelFile); err != nil {
		logger.Error().Err(err).Str("models_dir", cfg.ModelsDir).Msg("no model to load")
	} else {
		mcfg.Model = m
		if cfg.ModelName != "" {
			mcfg.Model.Name = cfg.ModelName
		}
	}

	mgr := manager.NewWithConfig(mcfg)
	defer mgr.Close()

	if rep := mgr.SanityCheck(ctx); !rep.OK() {
		for _, e := range rep.Errors {
			logger.Warn().Str("backend", rep.Backend).Msg(e)
		}
	}

	httpapi.SetLogger(logger)
	httpapi.SetBaseContext(ctx)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetRequestTimeout(cfg.RequestTimeout())
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins)
	httpapi.SetRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)
	httpapi.SetSwaggerEnabled(cfg.Swagger)
	httpapi.SetRequestLogLevel(requestLogLevel(logger.GetLevel()))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A failed load leaves the API up; chat requests get 503 until restart.
		if err := mgr.Load(gctx); err != nil {
			logger.Error().Err(err).Msg("model load failed")
		}
		return nil
	})
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend).Int("max_concurrent", cfg.MaxConcurrent).Msg("chatd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		logger.Info().Msg("shutting down")
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("graceful shutdown error")
		}
		return nil
	})
	return g.Wait()
}

// buildAdapter selects the inference adapter for the configured backend. Nil
// lets the manager use the in-process llama.cpp adapter.
func buildAdapter(cfg config.Config) manager.InferenceAdapter {
	switch cfg.Backend {
	case config.BackendServer:
		return manager.NewLlamaServerAdapter(cfg.LlamaServerURL, cfg.LlamaAPIKey, cfg.RequestTimeout(), 5*time.Second)
	case config.BackendSpawn:
		return manager.NewLlamaSubprocessAdapter(manager.SpawnConfig{
			Bin:            cfg.LlamaBin,
			Host:           cfg.LlamaHost,
			CtxSize:        cfg.LlamaCtx,
			GPULayers:      cfg.GPULayers(),
			Threads:        cfg.LlamaThreads,
			RequestTimeout: cfg.RequestTimeout(),
		})
	default:
		return nil
	}
}

// requestLogLevel maps the process log level to the per-request default.
func requestLogLevel(l zerolog.Level) string {
	switch {
	case l <= zerolog.DebugLevel:
		return "debug"
	case l <= zerolog.InfoLevel:
		return "info"
	case l <= zerolog.ErrorLevel:
		return "error"
	default:
		return "off"
	}
}
