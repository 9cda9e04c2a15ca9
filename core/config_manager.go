package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// ConfigManager owns the active governance configuration. Reload builds a
// candidate through the provider and resolver chain and swaps it in only
// after validation; a rejected candidate leaves the prior snapshot serving.
type ConfigManager struct {
	defaults Config
	runtime  Config
	provider ConfigProvider
	resolver OptionsResolver
	current  atomic.Pointer[Config]
	logger   Logger

	mu       sync.Mutex
	watchers []chan Config

	Now func() time.Time
}

func NewConfigManager(runtime Config, provider ConfigProvider, resolver OptionsResolver, logger Logger) (*ConfigManager, error) {
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	manager := &ConfigManager{
		defaults: DefaultConfig(),
		runtime:  runtime,
		provider: provider,
		resolver: resolver,
		logger:   glog.Ensure(logger),
		Now:      time.Now,
	}
	resolved, err := manager.buildCandidate(context.Background())
	if err != nil {
		return nil, fmt.Errorf("core: initial config load failed: %w", err)
	}
	manager.current.Store(&resolved)
	return manager, nil
}

// Current returns the active snapshot. It never returns a partially applied
// configuration.
func (m *ConfigManager) Current() Config {
	if m == nil {
		return DefaultConfig()
	}
	if cfg := m.current.Load(); cfg != nil {
		return *cfg
	}
	return m.defaults
}

// Reload rebuilds configuration from the backing source. On validation
// failure the active snapshot stays in place and the rejection is logged
// with the reason; the error wraps ErrConfigRejected.
func (m *ConfigManager) Reload(ctx context.Context) error {
	if m == nil {
		return nil
	}
	candidate, err := m.buildCandidate(ctx)
	if err != nil {
		retained := m.Current()
		m.logger.Error("config reload rejected",
			"error", err.Error(),
			"retained_service_name", retained.ServiceName,
		)
		return fmt.Errorf("core: %w: %v", ErrConfigRejected, err)
	}
	m.current.Store(&candidate)
	m.logger.Info("config reload applied",
		"service_name", candidate.ServiceName,
		"governor_max_concurrent", candidate.Governor.MaxConcurrent,
		"shaper_soft_threshold", candidate.Shaper.SoftTokenThreshold,
	)
	m.notify(candidate)
	return nil
}

// Watch returns a channel that receives each applied snapshot. The channel
// is buffered; a slow consumer drops intermediate snapshots, never blocks
// reloads.
func (m *ConfigManager) Watch() <-chan Config {
	if m == nil {
		closed := make(chan Config)
		close(closed)
		return closed
	}
	ch := make(chan Config, 1)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	m.mu.Unlock()
	return ch
}

func (m *ConfigManager) buildCandidate(ctx context.Context) (Config, error) {
	loaded, err := m.provider.Load(ctx, m.defaults)
	if err != nil {
		return Config{}, err
	}
	resolved, err := m.resolver.Resolve(m.defaults, loaded, m.runtime)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func (m *ConfigManager) notify(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, watcher := range m.watchers {
		select {
		case watcher <- cfg:
		default:
			select {
			case <-watcher:
			default:
			}
			select {
			case watcher <- cfg:
			default:
			}
		}
	}
}

var _ ConfigSource = (*ConfigManager)(nil)
