package core

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Item is the typed envelope for one upstream resource. Upstream schemas are
// dynamic, so values stay generic and projection goes through Lookup with
// declared field paths instead of ad-hoc map walking at call sites.
type Item map[string]any

// Lookup resolves a dot-separated field path against nested objects.
func (i Item) Lookup(path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" || len(i) == 0 {
		return nil, false
	}
	segments := strings.Split(path, ".")
	var current any = map[string]any(i)
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		value, exists := node[segment]
		if !exists {
			return nil, false
		}
		current = value
	}
	return current, true
}

// Clone returns a shallow copy one level deep; nested maps are copied so
// shaping never mutates the page it was handed.
func (i Item) Clone() Item {
	if len(i) == 0 {
		return Item{}
	}
	out := make(Item, len(i))
	for key, value := range i {
		if nested, ok := value.(map[string]any); ok {
			out[key] = copyAnyMap(nested)
			continue
		}
		out[key] = value
	}
	return out
}

// Lease is an immutable snapshot of the upstream credential. Replaced, never
// mutated in place: readers always hold a consistent token/expiry pair.
type Lease struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Fresh reports whether the lease still has more than margin of validity left.
func (l Lease) Fresh(now time.Time, margin time.Duration) bool {
	if strings.TrimSpace(l.Token) == "" {
		return false
	}
	if l.ExpiresAt.IsZero() {
		return false
	}
	return l.ExpiresAt.UTC().Sub(now.UTC()) > margin
}

// CursorState is the resumable position a pagination cursor encodes. A cursor
// is only valid against the fingerprint and order key it was minted for.
type CursorState struct {
	Offset            int       `json:"offset"`
	OrderKey          string    `json:"order_key"`
	FilterFingerprint string    `json:"filter_fingerprint"`
	IssuedAt          time.Time `json:"issued_at"`
}

type ResumeKind string

const (
	ResumeKindPage  ResumeKind = "page"
	ResumeKindChunk ResumeKind = "chunk"
)

// ResumeState is the cache-side companion of a cursor: precomputed data a
// continuation needs but the signed token should not carry. For chunked
// responses each segment is a serialized item slice waiting to be served.
type ResumeState struct {
	Kind           ResumeKind
	Cursor         CursorState
	Segments       []string
	ChunkIndex     int
	TotalChunks    int
	NextPageCursor string
	TotalRows      int
	ExpiresAt      time.Time
}

// Page is one bounded slice of an unbounded result set.
// Invariant: HasMore is true exactly when NextCursor is non-empty.
type Page struct {
	Items      []Item
	NextCursor string
	TotalCount int
	HasMore    bool
}

// CostEstimate approximates the context-window cost of a payload. Derived per
// response, never persisted.
type CostEstimate struct {
	ApproxTokens int
	Method       string
	Margin       float64
}

type ShapeKind string

const (
	ShapeKindFull    ShapeKind = "full"
	ShapeKindPreview ShapeKind = "preview"
	ShapeKindChunk   ShapeKind = "chunk"
)

// DetailFetch tells the caller where the omitted detail lives.
type DetailFetch struct {
	Endpoint   string         `json:"endpoint"`
	Parameters map[string]any `json:"parameters"`
}

// ShapeSummary describes what a shaped response dropped or split.
type ShapeSummary struct {
	Kind            ShapeKind    `json:"kind"`
	TotalFields     int          `json:"totalFields,omitempty"`
	ProjectedFields []string     `json:"projectedFields,omitempty"`
	Details         *DetailFetch `json:"detailsAvailable,omitempty"`
	ChunkIndex      int          `json:"chunkIndex,omitempty"`
	TotalChunks     int          `json:"totalChunks,omitempty"`
}

// ShapedResponse is the tagged result of shaping: exactly one variant
// materializes, chosen deterministically from estimated size vs thresholds.
// For the chunk variant Items holds the first chunk and Chunks the full
// ordered sequence, first chunk included.
type ShapedResponse struct {
	Kind     ShapeKind
	Items    []Item
	Summary  *ShapeSummary
	Chunks   [][]Item
	Estimate CostEstimate
}

// TokenBudgetMeta reports the cost accounting behind a response.
type TokenBudgetMeta struct {
	EstimatedTokens int     `json:"estimatedTokens"`
	ThresholdUsed   int     `json:"thresholdUsed"`
	BudgetUsed      float64 `json:"budgetUsed"`
}

// ResponseMeta is additive-only: new fields may appear, existing ones keep
// their meaning.
type ResponseMeta struct {
	TotalCount    int              `json:"totalCount"`
	PageSize      int              `json:"pageSize"`
	HasMore       bool             `json:"hasMore"`
	Summary       *ShapeSummary    `json:"summary,omitempty"`
	TokenBudget   *TokenBudgetMeta `json:"tokenBudget,omitempty"`
	CorrelationID string           `json:"correlationId,omitempty"`
}

// Envelope is the outward response shape for list-style and single-item
// calls.
type Envelope struct {
	Items      []Item       `json:"items"`
	NextCursor string       `json:"nextCursor,omitempty"`
	Meta       ResponseMeta `json:"meta"`
}

// ResourceDescriptor declares how one upstream resource type is reached and
// paged. Field maps are supplied separately by the integration layer.
type ResourceDescriptor struct {
	Type                string
	ListEndpoint        string
	DetailEndpoint      string
	OrderKey            string
	SupportsOffsetLimit bool
}

func (d ResourceDescriptor) Validate() error {
	if strings.TrimSpace(d.Type) == "" {
		return ErrResourceNotFound
	}
	return nil
}

type ListRequest struct {
	ResourceType  string
	Limit         int
	Cursor        string
	Filters       map[string]string
	CorrelationID string
}

type GetRequest struct {
	ResourceType  string
	ResourceID    string
	AllowShaping  bool
	CorrelationID string
}

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// AuditEntry records one governance event. The sink is fire-and-forget:
// recording failures never fail the request that produced them.
type AuditEntry struct {
	ID            string
	Action        string
	Status        AuditStatus
	CorrelationID string
	Metadata      map[string]any
	CreatedAt     time.Time
}

// FilterFingerprint binds a cursor to the query that minted it: same resource
// type, same order key, same filters, same fingerprint.
func FilterFingerprint(resourceType string, orderKey string, filters map[string]string) string {
	keys := make([]string, 0, len(filters))
	for key := range filters {
		if strings.TrimSpace(key) == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(strings.TrimSpace(strings.ToLower(resourceType)))
	builder.WriteString("|")
	builder.WriteString(strings.TrimSpace(strings.ToLower(orderKey)))
	for _, key := range keys {
		builder.WriteString("|")
		builder.WriteString(strings.TrimSpace(key))
		builder.WriteString("=")
		builder.WriteString(strings.TrimSpace(filters[key]))
	}

	sum := sha256.Sum256([]byte(builder.String()))
	return hex.EncodeToString(sum[:16])
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
