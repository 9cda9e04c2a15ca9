package gateway

import (
	"github.com/goliatone/go-gateway/core"
	"github.com/goliatone/go-gateway/credential"
	"github.com/goliatone/go-gateway/cursor"
	"github.com/goliatone/go-gateway/governor"
	"github.com/goliatone/go-gateway/paginate"
	"github.com/goliatone/go-gateway/shape"
	"github.com/goliatone/go-gateway/transport"
)

// Pipeline is the default concrete stack behind a Service: REST transport
// under the governor, OAuth2 client-credentials leases, HMAC cursors with an
// in-memory resume cache, and the character-count shaper. Callers that need
// a different implementation for one seam swap it through the matching
// service option.
type Pipeline struct {
	Transport *transport.RESTAdapter
	Leases    *credential.Manager
	Governor  *governor.Executor
	Codec     *cursor.HMACCodec
	Cache     *cursor.MemoryCache
	Paginator *paginate.Engine
	Estimator shape.CharEstimator
	FieldMaps *shape.StaticFieldMapSource
	Shaper    *shape.Shaper
}

// NewPipeline wires the default stack from configuration. It needs the
// sections the constructors validate: transport base_url, credential
// token_url/client_id/client_secret, and a cursor signing key.
func NewPipeline(cfg Config) (*Pipeline, error) {
	restAdapter, err := transport.NewRESTAdapter(cfg.Transport)
	if err != nil {
		return nil, err
	}

	exchanger, err := credential.NewHTTPExchanger(cfg.Credential)
	if err != nil {
		return nil, err
	}
	leases, err := credential.NewManager(exchanger,
		credential.WithRefreshMargin(cfg.Credential.RefreshMargin),
	)
	if err != nil {
		return nil, err
	}

	executor, err := governor.New(cfg.Governor, restAdapter)
	if err != nil {
		return nil, err
	}

	codec, err := cursor.NewHMACCodec(cfg.Cursor.SigningKey, cfg.Cursor.TTL)
	if err != nil {
		return nil, err
	}
	cache := cursor.NewMemoryCache(cfg.Cursor.TTL)

	engine, err := paginate.NewEngine(codec, cache, cfg.Cursor.TTL)
	if err != nil {
		return nil, err
	}

	estimator := shape.NewCharEstimator(cfg.Shaper.EstimateMargin)
	fieldMaps := shape.NewStaticFieldMapSource()
	shaper, err := shape.NewShaper(cfg.Shaper, estimator, fieldMaps)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		Transport: restAdapter,
		Leases:    leases,
		Governor:  executor,
		Codec:     codec,
		Cache:     cache,
		Paginator: engine,
		Estimator: estimator,
		FieldMaps: fieldMaps,
		Shaper:    shaper,
	}, nil
}

// Options exposes the pipeline as service options. Caller-supplied options
// applied after these override individual seams.
func (p *Pipeline) Options() []Option {
	if p == nil {
		return nil
	}
	return []Option{
		core.WithTransportAdapter(p.Transport),
		core.WithLeaseSource(p.Leases),
		core.WithCallGovernor(p.Governor),
		core.WithCursorCodec(p.Codec),
		core.WithCursorCache(p.Cache),
		core.WithPaginator(p.Paginator),
		core.WithTokenEstimator(p.Estimator),
		core.WithShaper(p.Shaper),
		core.WithFieldMapSource(p.FieldMaps),
	}
}

// New builds a service on the default pipeline. The shaper section must pass
// validation before the pipeline can be assembled, so the runtime config is
// resolved against defaults first.
func New(cfg Config, opts ...Option) (*Service, error) {
	resolver := core.GoOptionsResolver{}
	resolved, err := resolver.Resolve(core.DefaultConfig(), core.DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}

	pipeline, err := NewPipeline(resolved)
	if err != nil {
		return nil, err
	}

	options := pipeline.Options()
	options = append(options, opts...)
	return core.NewService(cfg, options...)
}
