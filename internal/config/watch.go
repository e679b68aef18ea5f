package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/kerner1000/riskmanager/internal/logger"
)

// ChangeListener is invoked with the freshly reloaded RiskConfig whenever
// the watched file changes.
type ChangeListener func(RiskConfig)

// Watcher hot-reloads the account list and unprotected-loss-percentage from
// the main config file. Backend connection settings (rest/socket/fx) are
// intentionally not live-reloaded: switching them requires restarting the
// gateway, so a change to those sections is logged and otherwise ignored.
type Watcher struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	current   RiskConfig
	listeners []ChangeListener
}

// NewWatcher loads path once and starts watching it for changes.
func NewWatcher(path string) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	w := &Watcher{path: path, v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := w.reload(); err != nil {
			logger.Warnf("config watch: reload of %s failed: %v", w.path, err)
			return
		}
		logger.Infof("config watch: reloaded risk.accounts / risk.unprotected-loss-percentage from %s", w.path)
		logger.Warnf("config watch: rest/socket/fx sections are not hot-reloaded; restart to apply changes there")
	})
	v.WatchConfig()
	return w, nil
}

func (w *Watcher) reload() error {
	var cfg Config
	if err := w.v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return err
	}
	setKeys := make(keySet)
	collectSettingsKeys(w.v.AllSettings(), setKeys)
	cfg.Risk.applyDefaults(setKeys)
	if err := cfg.Risk.validate(); err != nil {
		return err
	}

	w.mu.Lock()
	w.current = cfg.Risk
	listeners := append([]ChangeListener(nil), w.listeners...)
	w.mu.Unlock()

	for _, l := range listeners {
		l(cfg.Risk)
	}
	return nil
}

// Snapshot returns the most recently loaded RiskConfig.
func (w *Watcher) Snapshot() RiskConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Subscribe registers a listener invoked on every successful reload.
func (w *Watcher) Subscribe(l ChangeListener) {
	if l == nil {
		return
	}
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}
