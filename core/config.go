package core

import (
	"fmt"
	"strings"
	"time"
)

type CredentialConfig struct {
	TokenURL      string        `koanf:"token_url" mapstructure:"token_url"`
	ClientID      string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string        `koanf:"client_secret" mapstructure:"client_secret"`
	RefreshMargin time.Duration `koanf:"refresh_margin" mapstructure:"refresh_margin"`
	DefaultTTL    time.Duration `koanf:"default_ttl" mapstructure:"default_ttl"`
}

type WindowConfig struct {
	Limit    int           `koanf:"limit" mapstructure:"limit"`
	Interval time.Duration `koanf:"interval" mapstructure:"interval"`
}

type GovernorConfig struct {
	MaxConcurrent int           `koanf:"max_concurrent" mapstructure:"max_concurrent"`
	CallerWindow  WindowConfig  `koanf:"caller_window" mapstructure:"caller_window"`
	AccountWindow WindowConfig  `koanf:"account_window" mapstructure:"account_window"`
	MaxWait       time.Duration `koanf:"max_wait" mapstructure:"max_wait"`
	MaxAttempts   int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	RetryInitial  time.Duration `koanf:"retry_initial" mapstructure:"retry_initial"`
	RetryMax      time.Duration `koanf:"retry_max" mapstructure:"retry_max"`
}

type CursorConfig struct {
	SigningKey string        `koanf:"signing_key" mapstructure:"signing_key"`
	TTL        time.Duration `koanf:"ttl" mapstructure:"ttl"`
	SweepEvery time.Duration `koanf:"sweep_every" mapstructure:"sweep_every"`
}

type PaginationConfig struct {
	DefaultPageSize int `koanf:"default_page_size" mapstructure:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size" mapstructure:"max_page_size"`
}

type ShaperConfig struct {
	SoftTokenThreshold int     `koanf:"soft_token_threshold" mapstructure:"soft_token_threshold"`
	HardTokenCap       int     `koanf:"hard_token_cap" mapstructure:"hard_token_cap"`
	EstimateMargin     float64 `koanf:"estimate_margin" mapstructure:"estimate_margin"`
	ChunkTokens        int     `koanf:"chunk_tokens" mapstructure:"chunk_tokens"`
}

type TransportConfig struct {
	BaseURL        string        `koanf:"base_url" mapstructure:"base_url"`
	ConnectTimeout time.Duration `koanf:"connect_timeout" mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// EndpointOverride narrows governance settings for one named endpoint. Zero
// values inherit from the top-level sections.
type EndpointOverride struct {
	CallerWindow    WindowConfig `koanf:"caller_window" mapstructure:"caller_window"`
	AccountWindow   WindowConfig `koanf:"account_window" mapstructure:"account_window"`
	MaxPageSize     int          `koanf:"max_page_size" mapstructure:"max_page_size"`
	DefaultPageSize int          `koanf:"default_page_size" mapstructure:"default_page_size"`
}

type Config struct {
	ServiceName string                      `koanf:"service_name" mapstructure:"service_name"`
	Credential  CredentialConfig            `koanf:"credential" mapstructure:"credential"`
	Governor    GovernorConfig              `koanf:"governor" mapstructure:"governor"`
	Cursor      CursorConfig                `koanf:"cursor" mapstructure:"cursor"`
	Pagination  PaginationConfig            `koanf:"pagination" mapstructure:"pagination"`
	Shaper      ShaperConfig                `koanf:"shaper" mapstructure:"shaper"`
	Transport   TransportConfig             `koanf:"transport" mapstructure:"transport"`
	Endpoints   map[string]EndpointOverride `koanf:"endpoints" mapstructure:"endpoints"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "gateway",
		Credential: CredentialConfig{
			RefreshMargin: 2 * time.Minute,
			DefaultTTL:    time.Hour,
		},
		Governor: GovernorConfig{
			MaxConcurrent: 4,
			CallerWindow:  WindowConfig{Limit: 30, Interval: time.Minute},
			AccountWindow: WindowConfig{Limit: 120, Interval: time.Minute},
			MaxWait:       10 * time.Second,
			MaxAttempts:   4,
			RetryInitial:  500 * time.Millisecond,
			RetryMax:      8 * time.Second,
		},
		Cursor: CursorConfig{
			TTL:        15 * time.Minute,
			SweepEvery: time.Minute,
		},
		Pagination: PaginationConfig{
			DefaultPageSize: 25,
			MaxPageSize:     100,
		},
		Shaper: ShaperConfig{
			SoftTokenThreshold: 2000,
			HardTokenCap:       6000,
			EstimateMargin:     0.20,
			ChunkTokens:        1500,
		},
		Transport: TransportConfig{
			ConnectTimeout: 5 * time.Second,
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   8 << 20,
		},
		Endpoints: map[string]EndpointOverride{},
	}
}

func (w WindowConfig) validate(name string) error {
	if w.Limit <= 0 {
		return fmt.Errorf("core: %s limit must be positive", name)
	}
	if w.Interval <= 0 {
		return fmt.Errorf("core: %s interval must be positive", name)
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Governor.MaxConcurrent <= 0 {
		return fmt.Errorf("core: governor max_concurrent must be positive")
	}
	if err := c.Governor.CallerWindow.validate("governor caller_window"); err != nil {
		return err
	}
	if err := c.Governor.AccountWindow.validate("governor account_window"); err != nil {
		return err
	}
	if c.Governor.MaxWait <= 0 {
		return fmt.Errorf("core: governor max_wait must be positive")
	}
	if c.Governor.MaxAttempts <= 0 {
		return fmt.Errorf("core: governor max_attempts must be positive")
	}
	if c.Governor.RetryInitial <= 0 || c.Governor.RetryMax < c.Governor.RetryInitial {
		return fmt.Errorf("core: governor retry bounds are invalid")
	}
	if c.Cursor.TTL <= 0 {
		return fmt.Errorf("core: cursor ttl must be positive")
	}
	if c.Pagination.DefaultPageSize <= 0 {
		return fmt.Errorf("core: pagination default_page_size must be positive")
	}
	if c.Pagination.MaxPageSize < c.Pagination.DefaultPageSize {
		return fmt.Errorf("core: pagination max_page_size must be >= default_page_size")
	}
	if c.Shaper.SoftTokenThreshold <= 0 {
		return fmt.Errorf("core: shaper soft_token_threshold must be positive")
	}
	if c.Shaper.HardTokenCap < c.Shaper.SoftTokenThreshold {
		return fmt.Errorf("core: shaper hard_token_cap must be >= soft_token_threshold")
	}
	if c.Shaper.EstimateMargin < 0 || c.Shaper.EstimateMargin > 1 {
		return fmt.Errorf("core: shaper estimate_margin must be within [0, 1]")
	}
	if c.Shaper.ChunkTokens <= 0 || c.Shaper.ChunkTokens > c.Shaper.HardTokenCap {
		return fmt.Errorf("core: shaper chunk_tokens must be positive and within hard_token_cap")
	}
	if c.Transport.MaxBodyBytes <= 0 {
		return fmt.Errorf("core: transport max_body_bytes must be positive")
	}
	for name, override := range c.Endpoints {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("core: endpoint override name is required")
		}
		if override.CallerWindow.Limit != 0 || override.CallerWindow.Interval != 0 {
			if err := override.CallerWindow.validate("endpoint " + name + " caller_window"); err != nil {
				return err
			}
		}
		if override.AccountWindow.Limit != 0 || override.AccountWindow.Interval != 0 {
			if err := override.AccountWindow.validate("endpoint " + name + " account_window"); err != nil {
				return err
			}
		}
		if override.MaxPageSize < 0 || override.DefaultPageSize < 0 {
			return fmt.Errorf("core: endpoint %s page sizes must not be negative", name)
		}
		if override.MaxPageSize > 0 && override.DefaultPageSize > override.MaxPageSize {
			return fmt.Errorf("core: endpoint %s default_page_size exceeds max_page_size", name)
		}
	}
	return nil
}

// ForEndpoint resolves the effective governance settings for one endpoint,
// overlaying any named override on the top-level sections.
func (c Config) ForEndpoint(name string) (GovernorConfig, PaginationConfig) {
	governor := c.Governor
	pagination := c.Pagination
	override, ok := c.Endpoints[strings.TrimSpace(name)]
	if !ok {
		return governor, pagination
	}
	if override.CallerWindow.Limit > 0 && override.CallerWindow.Interval > 0 {
		governor.CallerWindow = override.CallerWindow
	}
	if override.AccountWindow.Limit > 0 && override.AccountWindow.Interval > 0 {
		governor.AccountWindow = override.AccountWindow
	}
	if override.DefaultPageSize > 0 {
		pagination.DefaultPageSize = override.DefaultPageSize
	}
	if override.MaxPageSize > 0 {
		pagination.MaxPageSize = override.MaxPageSize
	}
	return governor, pagination
}
