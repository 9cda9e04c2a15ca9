package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	leaseSource     LeaseSource
	governor        CallGovernor
	transport       TransportAdapter
	cursorCodec     CursorCodec
	cursorCache     CursorCache
	paginator       Paginator
	estimator       TokenEstimator
	shaper          Shaper
	fieldMaps       FieldMapSource
	auditSink       AuditSink
	registry        Registry
	now             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithLeaseSource(source LeaseSource) Option {
	return func(b *serviceBuilder) {
		b.leaseSource = source
	}
}

func WithCallGovernor(governor CallGovernor) Option {
	return func(b *serviceBuilder) {
		b.governor = governor
	}
}

func WithTransportAdapter(transport TransportAdapter) Option {
	return func(b *serviceBuilder) {
		b.transport = transport
	}
}

func WithCursorCodec(codec CursorCodec) Option {
	return func(b *serviceBuilder) {
		b.cursorCodec = codec
	}
}

func WithCursorCache(cache CursorCache) Option {
	return func(b *serviceBuilder) {
		b.cursorCache = cache
	}
}

func WithPaginator(paginator Paginator) Option {
	return func(b *serviceBuilder) {
		b.paginator = paginator
	}
}

func WithTokenEstimator(estimator TokenEstimator) Option {
	return func(b *serviceBuilder) {
		b.estimator = estimator
	}
}

func WithShaper(shaper Shaper) Option {
	return func(b *serviceBuilder) {
		b.shaper = shaper
	}
}

func WithFieldMapSource(source FieldMapSource) Option {
	return func(b *serviceBuilder) {
		b.fieldMaps = source
	}
}

func WithAuditSink(sink AuditSink) Option {
	return func(b *serviceBuilder) {
		b.auditSink = sink
	}
}

func WithRegistry(registry Registry) Option {
	return func(b *serviceBuilder) {
		b.registry = registry
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("gateway", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		registry:        NewResourceRegistry(),
		auditSink:       NewMemoryAuditSink(0),
		now:             time.Now,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return gatewayErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if section := credentialToLayerMap(cfg.Credential, includeZero); len(section) > 0 {
		layer["credential"] = section
	}
	if section := governorToLayerMap(cfg.Governor, includeZero); len(section) > 0 {
		layer["governor"] = section
	}
	if section := cursorToLayerMap(cfg.Cursor, includeZero); len(section) > 0 {
		layer["cursor"] = section
	}
	if section := paginationToLayerMap(cfg.Pagination, includeZero); len(section) > 0 {
		layer["pagination"] = section
	}
	if section := shaperToLayerMap(cfg.Shaper, includeZero); len(section) > 0 {
		layer["shaper"] = section
	}
	if section := transportToLayerMap(cfg.Transport, includeZero); len(section) > 0 {
		layer["transport"] = section
	}
	if len(cfg.Endpoints) > 0 {
		endpoints := make(map[string]any, len(cfg.Endpoints))
		for name, override := range cfg.Endpoints {
			endpoints[name] = map[string]any{
				"caller_window":     windowToLayerMap(override.CallerWindow),
				"account_window":    windowToLayerMap(override.AccountWindow),
				"max_page_size":     override.MaxPageSize,
				"default_page_size": override.DefaultPageSize,
			}
		}
		layer["endpoints"] = endpoints
	}
	return layer
}

func credentialToLayerMap(cfg CredentialConfig, includeZero bool) map[string]any {
	section := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.TokenURL) != "" {
		section["token_url"] = cfg.TokenURL
	}
	if includeZero || strings.TrimSpace(cfg.ClientID) != "" {
		section["client_id"] = cfg.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.ClientSecret) != "" {
		section["client_secret"] = cfg.ClientSecret
	}
	if includeZero || cfg.RefreshMargin > 0 {
		section["refresh_margin"] = cfg.RefreshMargin
	}
	if includeZero || cfg.DefaultTTL > 0 {
		section["default_ttl"] = cfg.DefaultTTL
	}
	return section
}

func governorToLayerMap(cfg GovernorConfig, includeZero bool) map[string]any {
	section := map[string]any{}
	if includeZero || cfg.MaxConcurrent > 0 {
		section["max_concurrent"] = cfg.MaxConcurrent
	}
	if includeZero || cfg.CallerWindow.Limit > 0 {
		section["caller_window"] = windowToLayerMap(cfg.CallerWindow)
	}
	if includeZero || cfg.AccountWindow.Limit > 0 {
		section["account_window"] = windowToLayerMap(cfg.AccountWindow)
	}
	if includeZero || cfg.MaxWait > 0 {
		section["max_wait"] = cfg.MaxWait
	}
	if includeZero || cfg.MaxAttempts > 0 {
		section["max_attempts"] = cfg.MaxAttempts
	}
	if includeZero || cfg.RetryInitial > 0 {
		section["retry_initial"] = cfg.RetryInitial
	}
	if includeZero || cfg.RetryMax > 0 {
		section["retry_max"] = cfg.RetryMax
	}
	return section
}

func cursorToLayerMap(cfg CursorConfig, includeZero bool) map[string]any {
	section := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.SigningKey) != "" {
		section["signing_key"] = cfg.SigningKey
	}
	if includeZero || cfg.TTL > 0 {
		section["ttl"] = cfg.TTL
	}
	if includeZero || cfg.SweepEvery > 0 {
		section["sweep_every"] = cfg.SweepEvery
	}
	return section
}

func paginationToLayerMap(cfg PaginationConfig, includeZero bool) map[string]any {
	section := map[string]any{}
	if includeZero || cfg.DefaultPageSize > 0 {
		section["default_page_size"] = cfg.DefaultPageSize
	}
	if includeZero || cfg.MaxPageSize > 0 {
		section["max_page_size"] = cfg.MaxPageSize
	}
	return section
}

func shaperToLayerMap(cfg ShaperConfig, includeZero bool) map[string]any {
	section := map[string]any{}
	if includeZero || cfg.SoftTokenThreshold > 0 {
		section["soft_token_threshold"] = cfg.SoftTokenThreshold
	}
	if includeZero || cfg.HardTokenCap > 0 {
		section["hard_token_cap"] = cfg.HardTokenCap
	}
	if includeZero || cfg.EstimateMargin > 0 {
		section["estimate_margin"] = cfg.EstimateMargin
	}
	if includeZero || cfg.ChunkTokens > 0 {
		section["chunk_tokens"] = cfg.ChunkTokens
	}
	return section
}

func transportToLayerMap(cfg TransportConfig, includeZero bool) map[string]any {
	section := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.BaseURL) != "" {
		section["base_url"] = cfg.BaseURL
	}
	if includeZero || cfg.ConnectTimeout > 0 {
		section["connect_timeout"] = cfg.ConnectTimeout
	}
	if includeZero || cfg.RequestTimeout > 0 {
		section["request_timeout"] = cfg.RequestTimeout
	}
	if includeZero || cfg.MaxBodyBytes > 0 {
		section["max_body_bytes"] = cfg.MaxBodyBytes
	}
	return section
}

func windowToLayerMap(cfg WindowConfig) map[string]any {
	return map[string]any{
		"limit":    cfg.Limit,
		"interval": cfg.Interval,
	}
}
