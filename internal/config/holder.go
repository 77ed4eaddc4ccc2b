package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
)

// Holder holds the configuration with atomic reload. A reload either
// validates and applies the whole new configuration or keeps the old one
// untouched.
type Holder struct {
	mu         sync.RWMutex
	current    Config
	configPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	reloadMu        sync.RWMutex
	reloadListeners []chan<- Config
}

// NewHolder creates a holder around an already-loaded configuration.
func NewHolder(initial Config, configPath string) *Holder {
	return &Holder{
		current:    initial,
		configPath: configPath,
		logger:     log.WithComponent("config"),
	}
}

// Get returns the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Reload re-reads the configuration from disk and applies it atomically.
func (h *Holder) Reload(_ context.Context) error {
	h.logger.Info().Str(log.FieldEvent, "config.reload_start").Msg("reloading configuration")

	newCfg, err := Load(h.configPath)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str(log.FieldEvent, "config.reload_failed").
			Msg("failed to load new configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	h.mu.Lock()
	oldCfg := h.current
	h.current = newCfg
	h.mu.Unlock()

	h.notifyListeners(newCfg)
	h.logChanges(oldCfg, newCfg)

	h.logger.Info().
		Str(log.FieldEvent, "config.reload_success").
		Msg("configuration reloaded successfully")
	return nil
}

// StartWatcher begins watching the config file for changes. No-op when
// the daemon runs from ENV only.
func (h *Holder) StartWatcher(ctx context.Context) error {
	if h.configPath == "" {
		h.logger.Info().
			Str(log.FieldEvent, "config.watcher_disabled").
			Msg("config file watcher disabled (using ENV-only configuration)")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher

	if err := watcher.Add(h.configPath); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}

	h.logger.Info().
		Str(log.FieldEvent, "config.watcher_started").
		Str(log.FieldPath, h.configPath).
		Msg("watching config file for changes")

	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	// Debounce so editors that write in several bursts trigger one
	// reload, not five.
	var debounceTimer *time.Timer
	const debounce = 500 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Str(log.FieldEvent, "config.watcher_stopped").Msg("config watcher stopped")
			_ = h.watcher.Close()
			return

		case event, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, func() {
					if err := h.Reload(ctx); err != nil {
						h.logger.Error().
							Err(err).
							Str(log.FieldEvent, "config.auto_reload_failed").
							Msg("automatic config reload failed")
					}
				})
			}

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().
				Err(err).
				Str(log.FieldEvent, "config.watcher_error").
				Msg("config watcher error")
		}
	}
}

// Stop closes the watcher if one is running.
func (h *Holder) Stop() {
	if h.watcher != nil {
		_ = h.watcher.Close()
	}
}

// RegisterListener registers a channel that receives the new
// configuration after every successful reload. Sends are non-blocking;
// a full channel is skipped.
func (h *Holder) RegisterListener(ch chan<- Config) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	h.reloadListeners = append(h.reloadListeners, ch)
}

func (h *Holder) notifyListeners(newCfg Config) {
	h.reloadMu.RLock()
	defer h.reloadMu.RUnlock()

	for _, ch := range h.reloadListeners {
		select {
		case ch <- newCfg:
		default:
			h.logger.Warn().
				Str(log.FieldEvent, "config.listener_skip").
				Msg("skipped notifying listener (channel full)")
		}
	}
}

// logChanges records the dynamic settings that actually changed.
func (h *Holder) logChanges(old, newCfg Config) {
	if old.LogLevel != newCfg.LogLevel {
		h.logger.Info().
			Str("old", old.LogLevel).
			Str("new", newCfg.LogLevel).
			Msg("config changed: LogLevel")
	}
	if old.SessionTimeout != newCfg.SessionTimeout {
		h.logger.Info().
			Dur("old", old.SessionTimeout).
			Dur("new", newCfg.SessionTimeout).
			Msg("config changed: SessionTimeout")
	}
	if old.SweepInterval != newCfg.SweepInterval {
		h.logger.Info().
			Dur("old", old.SweepInterval).
			Dur("new", newCfg.SweepInterval).
			Msg("config changed: SweepInterval")
	}
	if len(old.Targets) != len(newCfg.Targets) {
		h.logger.Info().
			Int("old", len(old.Targets)).
			Int("new", len(newCfg.Targets)).
			Msg("config changed: Targets")
	}
}
