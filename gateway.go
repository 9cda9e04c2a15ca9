package gateway

import "github.com/goliatone/go-gateway/core"

type Config = core.Config

type GovernorConfig = core.GovernorConfig
type CredentialConfig = core.CredentialConfig
type CursorConfig = core.CursorConfig
type PaginationConfig = core.PaginationConfig
type ShaperConfig = core.ShaperConfig
type TransportConfig = core.TransportConfig
type EndpointOverride = core.EndpointOverride

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type LeaseSource = core.LeaseSource
type CallGovernor = core.CallGovernor
type TransportAdapter = core.TransportAdapter
type CursorCodec = core.CursorCodec
type CursorCache = core.CursorCache
type Paginator = core.Paginator
type TokenEstimator = core.TokenEstimator
type Shaper = core.Shaper
type FieldMapSource = core.FieldMapSource
type Logger = core.Logger
type LoggerProvider = core.LoggerProvider
type AuditSink = core.AuditSink
type AuditReader = core.AuditReader
type Registry = core.Registry

type Item = core.Item
type Lease = core.Lease
type Envelope = core.Envelope
type ResourceDescriptor = core.ResourceDescriptor

type ListRequest = core.ListRequest
type GetRequest = core.GetRequest
type ActivityFilter = core.ActivityFilter
type ActivityPage = core.ActivityPage

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithLeaseSource      = core.WithLeaseSource
	WithCallGovernor     = core.WithCallGovernor
	WithTransportAdapter = core.WithTransportAdapter
	WithCursorCodec      = core.WithCursorCodec
	WithCursorCache      = core.WithCursorCache
	WithPaginator        = core.WithPaginator
	WithTokenEstimator   = core.WithTokenEstimator
	WithShaper           = core.WithShaper
	WithFieldMapSource   = core.WithFieldMapSource
	WithAuditSink        = core.WithAuditSink
	WithRegistry         = core.WithRegistry
	WithClock            = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
