package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// LeaseSource hands out fresh upstream credentials. Implementations own
// refresh timing and single-flight renewal; callers treat every returned
// lease as already valid.
type LeaseSource interface {
	Acquire(ctx context.Context) (Lease, error)
	Invalidate(ctx context.Context, reason string) error
}

// CallRequest describes one governed outbound call before transport details
// are applied.
type CallRequest struct {
	Method        string
	Path          string
	Query         map[string]string
	Headers       map[string]string
	Body          []byte
	Endpoint      string
	CorrelationID string
}

// CallResponse is the governed counterpart of an upstream HTTP response.
type CallResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// CallGovernor admits, paces, and retries outbound calls. Execute blocks
// until a permit and window slot are available or ctx ends; exhausted
// capacity within the configured wait bound surfaces ErrRateLimited.
type CallGovernor interface {
	Execute(ctx context.Context, req CallRequest) (CallResponse, error)
}

// TransportAdapter performs a single upstream HTTP exchange with no retry or
// admission logic of its own.
type TransportAdapter interface {
	Do(ctx context.Context, req CallRequest) (CallResponse, error)
}

// CursorCodec mints and resolves opaque signed cursor tokens.
type CursorCodec interface {
	Encode(state CursorState) (string, error)
	Decode(token string) (CursorState, error)
}

// CursorCache holds resume state keyed by cursor token. Get on a missing or
// expired key returns ErrCursorInvalid; entries leave the cache only through
// TTL sweep, so re-resolving a live cursor is idempotent.
type CursorCache interface {
	Put(ctx context.Context, token string, state ResumeState) error
	Get(ctx context.Context, token string) (ResumeState, error)
	Sweep(ctx context.Context) (int, error)
}

// FetchRequest is what the pagination engine asks a fetcher for.
type FetchRequest struct {
	Descriptor ResourceDescriptor
	Offset     int
	Limit      int
	Filters    map[string]string
}

// FetchResult is one raw upstream page before shaping.
type FetchResult struct {
	Items      []Item
	TotalCount int
}

// Fetcher retrieves raw upstream rows. Implementations that cannot push
// offset/limit upstream return the full set and let the engine slice.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResult, error)
}

// Paginator turns an unbounded upstream listing into bounded pages with
// continuation cursors.
type Paginator interface {
	Page(ctx context.Context, fetcher Fetcher, req FetchRequest, state CursorState) (Page, error)
}

// TokenEstimator approximates context cost for a serialized payload. The
// character heuristic is the default; a real tokenizer can drop in behind
// the same contract.
type TokenEstimator interface {
	Estimate(payload []byte) CostEstimate
}

// Shaper decides between full, preview, and chunk renditions based on
// estimated cost and the active thresholds.
type Shaper interface {
	Shape(ctx context.Context, descriptor ResourceDescriptor, items []Item, estimate CostEstimate) (ShapedResponse, error)
}

// FieldMapSource supplies the preview projection for a resource type.
type FieldMapSource interface {
	FieldsFor(resourceType string) ([]string, bool)
}

// AuditSink records governance events. Record must not block the caller's
// request path on persistence failures.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// ActivityFilter selects audit entries for operational review.
type ActivityFilter struct {
	Action        string
	Status        AuditStatus
	CorrelationID string
	From          *time.Time
	To            *time.Time
	Page          int
	PerPage       int
}

// ActivityPage is one bounded slice of audit history.
type ActivityPage struct {
	Items   []AuditEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

// AuditReader lists recorded governance events newest first.
type AuditReader interface {
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// MetricsRecorder mirrors the counter/histogram surface the service emits
// per operation.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ConfigSource exposes the active governance configuration snapshot.
type ConfigSource interface {
	Current() Config
}

// RawConfigLoader produces candidate configuration values from the backing
// store. The manager validates every candidate before it can become current.
type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}
