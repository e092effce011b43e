package config

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"
)

// DefaultReloadInterval is how often a Reloader polls its file.
const DefaultReloadInterval = 2 * time.Second

// Reloader polls a config file and publishes each valid new version.
// Invalid edits are logged and the previous config stays current.
type Reloader struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	lastMod time.Time
	current *FileConfig

	// OnReload is called after a successful reload with the new config.
	OnReload func(cfg *FileConfig)
}

// NewReloader creates a reloader for path whose current config is initial.
// Call Start to begin watching.
func NewReloader(path string, initial *FileConfig, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	r := &Reloader{path: path, interval: DefaultReloadInterval, logger: logger, current: initial}
	if info, err := os.Stat(path); err == nil {
		r.lastMod = info.ModTime()
	}
	return r
}

// Current returns the last successfully loaded config.
func (r *Reloader) Current() *FileConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Start begins polling the config file. Call Stop to end.
func (r *Reloader) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.poll(ctx)
}

// Stop ends the polling goroutine and waits for it to finish.
func (r *Reloader) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Reloader) poll(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.check()
		}
	}
}

// check reloads when the file's modification time moved forward.
func (r *Reloader) check() bool {
	info, err := os.Stat(r.path)
	if err != nil {
		return false // file may have been temporarily removed
	}

	r.mu.Lock()
	if !info.ModTime().After(r.lastMod) {
		r.mu.Unlock()
		return false
	}
	r.lastMod = info.ModTime()
	r.mu.Unlock()

	cfg, err := LoadFileConfig(r.path)
	if err != nil {
		r.logger.Warn("config reload: parse error", "path", r.path, "error", err)
		return false
	}
	r.apply(cfg)
	return true
}

func (r *Reloader) apply(cfg *FileConfig) {
	r.mu.Lock()
	r.current = cfg
	r.mu.Unlock()

	r.logger.Info("config reloaded",
		"path", r.path,
		"provider", cfg.Provider,
		"model", cfg.Model,
		"max_tokens", cfg.MaxTokens,
	)

	if r.OnReload != nil {
		r.OnReload(cfg)
	}
}

// ReloadOnce reads the config file and applies it immediately.
func (r *Reloader) ReloadOnce() error {
	cfg, err := LoadFileConfig(r.path)
	if err != nil {
		return err
	}
	r.apply(cfg)
	return nil
}
