package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"corral/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// LimitsListener is called with the freshly loaded config whenever the file
// changes on disk and still parses.
type LimitsListener func(cfg *Config)

// Watcher reloads the config file on FS events and notifies listeners.
// Only listeners decide what is safe to apply at runtime; the watcher never
// mutates live components itself.
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.Mutex
	listeners []LimitsListener
}

// NewWatcher starts watching path. The file must already load cleanly.
func NewWatcher(path string) (*Watcher, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config watcher requires path")
	}
	if _, err := Load(path); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}
	w := &Watcher{path: path, v: v}
	v.OnConfigChange(func(evt fsnotify.Event) {
		cfg, err := Load(w.path)
		if err != nil {
			logger.Errorf("config reload failed (%s): %v", evt.Name, err)
			return
		}
		logger.Infof("config reloaded from %s", filepath.Base(w.path))
		w.notify(cfg)
	})
	v.WatchConfig()
	return w, nil
}

// Subscribe registers a listener for future reloads.
func (w *Watcher) Subscribe(fn LimitsListener) {
	if fn == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) notify(cfg *Config) {
	w.mu.Lock()
	listeners := append([]LimitsListener(nil), w.listeners...)
	w.mu.Unlock()
	for _, fn := range listeners {
		go func(cb LimitsListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("config listener panic: %v", r)
				}
			}()
			cb(cfg)
		}(fn)
	}
}
