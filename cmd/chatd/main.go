// Binary chatd serves streaming chat and the session store over HTTP.
//
// Usage:
//
//	chatd [flags]
//
// Flags:
//
//	-config  path to YAML config file (default: ~/.config/chatstream/config.yaml)
//	-addr    listen address, overrides server.addr (default: :8080)
//
// Edits to the config file are picked up while running: provider, model,
// tools and system prompt apply to the next stream request.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitop-dev/chatstream/pkg/ai"
	"github.com/bitop-dev/chatstream/pkg/ai/providers/openai"
	"github.com/bitop-dev/chatstream/pkg/chat"
	"github.com/bitop-dev/chatstream/pkg/config"
	"github.com/bitop-dev/chatstream/pkg/logging"
	"github.com/bitop-dev/chatstream/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	addrFlag := flag.String("addr", "", "listen address (overrides server.addr)")
	flag.Parse()

	config.LoadEnv(*configPath)
	cfg, err := config.LoadFileConfig(*configPath)
	if err != nil {
		fatalf("%v", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		fatalf("%v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	store, err := cfg.Database.OpenStore()
	if err != nil {
		fatalf("%v", err)
	}
	defer store.Close()

	ctl := chat.New(chat.Options{
		Providers: ai.NewRegistry(openai.New(openai.Options{Logger: logger})),
		Store:     store,
		Logger:    logger,
	})
	srv := server.New(server.Options{
		Controller: ctl,
		Store:      store,
		Defaults:   defaultsFrom(cfg),
		Logger:     logger,
	})

	reloader := config.NewReloader(*configPath, cfg, logger)
	reloader.OnReload = func(c *config.FileConfig) { srv.SetDefaults(defaultsFrom(c)) }
	reloader.Start()
	defer reloader.Stop()

	addr := cfg.Server.Addr
	if *addrFlag != "" {
		addr = *addrFlag
	}
	if addr == "" {
		addr = ":8080"
	}
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("chatd: listening", "addr", addr, "provider", cfg.Provider, "model", cfg.Model)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("chatd: serve", "error", err)
		}
	case <-ctx.Done():
		logger.Info("chatd: shutting down")
	}

	// Abort streams first so their handlers return and Shutdown can drain.
	ctl.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		logger.Warn("chatd: shutdown", "error", err)
	}
}

func defaultsFrom(cfg *config.FileConfig) server.Defaults {
	return server.Defaults{
		Config:       cfg.ProviderConfig(),
		Tools:        cfg.ToolTypes(),
		SystemPrompt: cfg.SystemPrompt,
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fatal: "+format+"\n", args...)
	os.Exit(1)
}
