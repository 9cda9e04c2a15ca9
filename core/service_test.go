package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type stubLeaseSource struct {
	token         string
	acquireErr    error
	acquires      int
	invalidations []string
}

func (s *stubLeaseSource) Acquire(context.Context) (Lease, error) {
	s.acquires++
	if s.acquireErr != nil {
		return Lease{}, s.acquireErr
	}
	return Lease{
		Token:     s.token,
		IssuedAt:  time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}, nil
}

func (s *stubLeaseSource) Invalidate(_ context.Context, reason string) error {
	s.invalidations = append(s.invalidations, reason)
	return nil
}

type stubCallGovernor struct {
	requests  []CallRequest
	responses []CallResponse
	errs      []error
}

func (s *stubCallGovernor) Execute(_ context.Context, req CallRequest) (CallResponse, error) {
	idx := len(s.requests)
	s.requests = append(s.requests, req)
	if idx < len(s.errs) && s.errs[idx] != nil {
		return CallResponse{}, s.errs[idx]
	}
	if idx < len(s.responses) {
		return s.responses[idx], nil
	}
	if len(s.responses) > 0 {
		return s.responses[len(s.responses)-1], nil
	}
	return CallResponse{StatusCode: 200}, nil
}

type stubCursorCodec struct {
	minted int
	states map[string]CursorState
}

func (c *stubCursorCodec) Encode(state CursorState) (string, error) {
	if c.states == nil {
		c.states = map[string]CursorState{}
	}
	c.minted++
	token := fmt.Sprintf("cursor_%d", c.minted)
	c.states[token] = state
	return token, nil
}

func (c *stubCursorCodec) Decode(token string) (CursorState, error) {
	state, ok := c.states[token]
	if !ok {
		return CursorState{}, fmt.Errorf("core: %w: unknown token", ErrCursorInvalid)
	}
	return state, nil
}

type stubCursorCache struct {
	entries      map[string]ResumeState
	sweepRemoved int
	sweepErr     error
}

func newStubCursorCache() *stubCursorCache {
	return &stubCursorCache{entries: map[string]ResumeState{}}
}

func (c *stubCursorCache) Put(_ context.Context, token string, state ResumeState) error {
	c.entries[token] = state
	return nil
}

func (c *stubCursorCache) Get(_ context.Context, token string) (ResumeState, error) {
	state, ok := c.entries[token]
	if !ok {
		return ResumeState{}, fmt.Errorf("core: %w: no resume state", ErrCursorInvalid)
	}
	return state, nil
}

func (c *stubCursorCache) Sweep(context.Context) (int, error) {
	if c.sweepErr != nil {
		return 0, c.sweepErr
	}
	return c.sweepRemoved, nil
}

type stubPaginator struct {
	fn func(ctx context.Context, fetcher Fetcher, req FetchRequest, state CursorState) (Page, error)
}

func (p *stubPaginator) Page(ctx context.Context, fetcher Fetcher, req FetchRequest, state CursorState) (Page, error) {
	if p.fn != nil {
		return p.fn(ctx, fetcher, req, state)
	}
	result, err := fetcher.Fetch(ctx, req)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: result.Items, TotalCount: result.TotalCount}, nil
}

type stubTokenEstimator struct {
	tokens int
}

func (s *stubTokenEstimator) Estimate(payload []byte) CostEstimate {
	tokens := s.tokens
	if tokens == 0 {
		tokens = len(payload) / 4
	}
	return CostEstimate{ApproxTokens: tokens, Method: "chars", Margin: 0.20}
}

type stubShaper struct {
	calls int
	fn    func(ctx context.Context, descriptor ResourceDescriptor, items []Item, estimate CostEstimate) (ShapedResponse, error)
}

func (s *stubShaper) Shape(ctx context.Context, descriptor ResourceDescriptor, items []Item, estimate CostEstimate) (ShapedResponse, error) {
	s.calls++
	if s.fn != nil {
		return s.fn(ctx, descriptor, items, estimate)
	}
	return ShapedResponse{Kind: ShapeKindFull, Items: items, Estimate: estimate}, nil
}

type serviceHarness struct {
	lease     *stubLeaseSource
	governor  *stubCallGovernor
	codec     *stubCursorCodec
	cache     *stubCursorCache
	paginator *stubPaginator
	estimator *stubTokenEstimator
	shaper    *stubShaper
	audit     *MemoryAuditSink
	registry  *ResourceRegistry
	service   *Service
}

func newServiceHarness(t *testing.T, extra ...Option) *serviceHarness {
	t.Helper()
	h := &serviceHarness{
		lease:     &stubLeaseSource{token: "lease_token"},
		governor:  &stubCallGovernor{},
		codec:     &stubCursorCodec{},
		cache:     newStubCursorCache(),
		paginator: &stubPaginator{},
		estimator: &stubTokenEstimator{},
		shaper:    &stubShaper{},
		audit:     NewMemoryAuditSink(64),
		registry:  NewResourceRegistry(),
	}
	err := h.registry.Register(ResourceDescriptor{
		Type:                "properties",
		ListEndpoint:        "/v1/properties",
		DetailEndpoint:      "/v1/properties/{id}",
		OrderKey:            "id",
		SupportsOffsetLimit: true,
	})
	if err != nil {
		t.Fatalf("expected descriptor registration to succeed, got %v", err)
	}

	options := []Option{
		WithLeaseSource(h.lease),
		WithCallGovernor(h.governor),
		WithCursorCodec(h.codec),
		WithCursorCache(h.cache),
		WithPaginator(h.paginator),
		WithTokenEstimator(h.estimator),
		WithShaper(h.shaper),
		WithAuditSink(h.audit),
		WithRegistry(h.registry),
	}
	options = append(options, extra...)

	service, err := NewService(Config{}, options...)
	if err != nil {
		t.Fatalf("expected service build to succeed, got %v", err)
	}
	h.service = service
	return h
}

func requireGatewayFailure(t *testing.T, err error, textCode string, status int) *goerrors.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with text code %s", textCode)
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected mapped error, got %T: %v", err, err)
	}
	if rich.TextCode != textCode {
		t.Fatalf("expected text code %s, got %s: %v", textCode, rich.TextCode, err)
	}
	if rich.Code != status {
		t.Fatalf("expected status %d, got %d: %v", status, rich.Code, err)
	}
	return rich
}

func TestNewServiceRequiresPipelineDependencies(t *testing.T) {
	cases := []struct {
		name    string
		omit    string
		wantErr string
	}{
		{name: "missing_lease_source", omit: "lease", wantErr: "lease source is required"},
		{name: "missing_governor", omit: "governor", wantErr: "call governor is required"},
		{name: "missing_cursor_codec", omit: "codec", wantErr: "cursor codec is required"},
		{name: "missing_cursor_cache", omit: "cache", wantErr: "cursor cache is required"},
		{name: "missing_paginator", omit: "paginator", wantErr: "paginator is required"},
		{name: "missing_estimator", omit: "estimator", wantErr: "token estimator is required"},
		{name: "missing_shaper", omit: "shaper", wantErr: "shaper is required"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var options []Option
			if tc.omit != "lease" {
				options = append(options, WithLeaseSource(&stubLeaseSource{token: "tok"}))
			}
			if tc.omit != "governor" {
				options = append(options, WithCallGovernor(&stubCallGovernor{}))
			}
			if tc.omit != "codec" {
				options = append(options, WithCursorCodec(&stubCursorCodec{}))
			}
			if tc.omit != "cache" {
				options = append(options, WithCursorCache(newStubCursorCache()))
			}
			if tc.omit != "paginator" {
				options = append(options, WithPaginator(&stubPaginator{}))
			}
			if tc.omit != "estimator" {
				options = append(options, WithTokenEstimator(&stubTokenEstimator{}))
			}
			if tc.omit != "shaper" {
				options = append(options, WithShaper(&stubShaper{}))
			}

			_, err := NewService(Config{}, options...)
			if err == nil {
				t.Fatalf("expected build to fail")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestListResourceServesBoundedPage(t *testing.T) {
	h := newServiceHarness(t)
	h.governor.responses = []CallResponse{{
		StatusCode: 200,
		Body:       []byte(`{"items":[{"id":"p1"},{"id":"p2"}],"totalCount":40}`),
	}}

	envelope, err := h.service.ListResource(context.Background(), ListRequest{
		ResourceType:  "properties",
		Filters:       map[string]string{"city": "austin"},
		CorrelationID: "corr_list",
	})
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}

	if len(envelope.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(envelope.Items))
	}
	if envelope.Meta.TotalCount != 40 {
		t.Fatalf("expected total count 40, got %d", envelope.Meta.TotalCount)
	}
	if envelope.Meta.PageSize != 2 {
		t.Fatalf("expected page size 2, got %d", envelope.Meta.PageSize)
	}
	if envelope.Meta.CorrelationID != "corr_list" {
		t.Fatalf("expected correlation id to survive, got %q", envelope.Meta.CorrelationID)
	}
	if envelope.Meta.TokenBudget == nil {
		t.Fatalf("expected token budget meta")
	}
	if h.shaper.calls != 0 {
		t.Fatalf("expected no shaping under soft threshold, got %d calls", h.shaper.calls)
	}

	if len(h.governor.requests) != 1 {
		t.Fatalf("expected 1 upstream call, got %d", len(h.governor.requests))
	}
	call := h.governor.requests[0]
	if call.Path != "/v1/properties" {
		t.Fatalf("expected list endpoint path, got %q", call.Path)
	}
	if call.Query["city"] != "austin" {
		t.Fatalf("expected filter forwarded, got %v", call.Query)
	}
	if call.Query["offset"] != "0" || call.Query["limit"] != "25" {
		t.Fatalf("expected clamped offset/limit query, got %v", call.Query)
	}
	if call.Headers["Authorization"] != "Bearer lease_token" {
		t.Fatalf("expected lease attached, got %q", call.Headers["Authorization"])
	}

	entries := h.audit.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Action != "list_resource" || entries[0].Status != AuditStatusSuccess {
		t.Fatalf("expected list_resource success entry, got %s/%s", entries[0].Action, entries[0].Status)
	}
	if entries[0].Metadata["endpoint"] != "/v1/properties" {
		t.Fatalf("expected endpoint in audit metadata, got %v", entries[0].Metadata["endpoint"])
	}
	if entries[0].Metadata["page_size"] != 25 {
		t.Fatalf("expected clamped page size in audit metadata, got %v", entries[0].Metadata["page_size"])
	}
}

func TestListResourceUnknownResource(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.service.ListResource(context.Background(), ListRequest{ResourceType: "tenants"})
	requireGatewayFailure(t, err, GatewayErrorResourceNotFound, 404)

	entries := h.audit.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].Status != AuditStatusFailure {
		t.Fatalf("expected failure audit entry, got %s", entries[0].Status)
	}
	if entries[0].Metadata["error"] == nil {
		t.Fatalf("expected error recorded in audit metadata")
	}
}

func TestListResourceRejectsMismatchedCursor(t *testing.T) {
	h := newServiceHarness(t)
	token, err := h.codec.Encode(CursorState{
		Offset:            25,
		OrderKey:          "id",
		FilterFingerprint: "deadbeefdeadbeef",
	})
	if err != nil {
		t.Fatalf("expected encode to succeed, got %v", err)
	}

	_, err = h.service.ListResource(context.Background(), ListRequest{
		ResourceType: "properties",
		Cursor:       token,
	})
	requireGatewayFailure(t, err, GatewayErrorCursorInvalid, 400)

	if len(h.governor.requests) != 0 {
		t.Fatalf("expected no upstream call on cursor rejection, got %d", len(h.governor.requests))
	}
}

func TestListResourceResumesFromPageCursor(t *testing.T) {
	h := newServiceHarness(t)
	filters := map[string]string{"status": "active"}
	fingerprint := FilterFingerprint("properties", "id", filters)
	state := CursorState{
		Offset:            25,
		OrderKey:          "id",
		FilterFingerprint: fingerprint,
		IssuedAt:          time.Now().UTC(),
	}
	token, err := h.codec.Encode(state)
	if err != nil {
		t.Fatalf("expected encode to succeed, got %v", err)
	}
	if err := h.cache.Put(context.Background(), token, ResumeState{Kind: ResumeKindPage, Cursor: state}); err != nil {
		t.Fatalf("expected cache put to succeed, got %v", err)
	}

	var gotReq FetchRequest
	var gotState CursorState
	h.paginator.fn = func(_ context.Context, _ Fetcher, req FetchRequest, state CursorState) (Page, error) {
		gotReq = req
		gotState = state
		return Page{
			Items:      []Item{{"id": "p26"}},
			NextCursor: "",
			TotalCount: 26,
		}, nil
	}

	envelope, err := h.service.ListResource(context.Background(), ListRequest{
		ResourceType: "properties",
		Cursor:       token,
		Filters:      filters,
	})
	if err != nil {
		t.Fatalf("expected list to succeed, got %v", err)
	}

	if gotReq.Offset != 25 || gotState.Offset != 25 {
		t.Fatalf("expected resume at offset 25, got req %d state %d", gotReq.Offset, gotState.Offset)
	}
	if len(envelope.Items) != 1 || envelope.Items[0]["id"] != "p26" {
		t.Fatalf("expected resumed page items, got %v", envelope.Items)
	}
	if envelope.Meta.TotalCount != 26 {
		t.Fatalf("expected total count 26, got %d", envelope.Meta.TotalCount)
	}
}

func TestListResourceChunkContinuation(t *testing.T) {
	h := newServiceHarness(t)
	h.estimator.tokens = 5000

	items := []Item{
		{"id": "p1"}, {"id": "p2"}, {"id": "p3"},
		{"id": "p4"}, {"id": "p5"}, {"id": "p6"},
	}
	chunks := [][]Item{
		{items[0], items[1]},
		{items[2], items[3]},
		{items[4], items[5]},
	}
	h.paginator.fn = func(context.Context, Fetcher, FetchRequest, CursorState) (Page, error) {
		return Page{Items: items, NextCursor: "page_2_token", TotalCount: 6, HasMore: true}, nil
	}
	h.shaper.fn = func(_ context.Context, _ ResourceDescriptor, _ []Item, estimate CostEstimate) (ShapedResponse, error) {
		return ShapedResponse{
			Kind:     ShapeKindChunk,
			Items:    chunks[0],
			Chunks:   chunks,
			Summary:  &ShapeSummary{Kind: ShapeKindChunk, ChunkIndex: 1, TotalChunks: 3},
			Estimate: estimate,
		}, nil
	}

	first, err := h.service.ListResource(context.Background(), ListRequest{ResourceType: "properties"})
	if err != nil {
		t.Fatalf("expected first chunk to succeed, got %v", err)
	}
	if len(first.Items) != 2 || first.Items[0]["id"] != "p1" {
		t.Fatalf("expected first chunk items, got %v", first.Items)
	}
	if first.Meta.Summary == nil || first.Meta.Summary.ChunkIndex != 1 || first.Meta.Summary.TotalChunks != 3 {
		t.Fatalf("expected chunk 1 of 3 summary, got %+v", first.Meta.Summary)
	}
	if first.NextCursor == "" || first.NextCursor == "page_2_token" {
		t.Fatalf("expected minted chunk cursor, got %q", first.NextCursor)
	}
	if !first.Meta.HasMore {
		t.Fatalf("expected has more on first chunk")
	}

	second, err := h.service.ListResource(context.Background(), ListRequest{
		ResourceType: "properties",
		Cursor:       first.NextCursor,
	})
	if err != nil {
		t.Fatalf("expected second chunk to succeed, got %v", err)
	}
	if len(second.Items) != 2 || second.Items[0]["id"] != "p3" {
		t.Fatalf("expected second chunk items, got %v", second.Items)
	}
	if second.Meta.Summary == nil || second.Meta.Summary.ChunkIndex != 2 {
		t.Fatalf("expected chunk index 2, got %+v", second.Meta.Summary)
	}
	if second.Meta.TotalCount != 6 {
		t.Fatalf("expected total count carried through chunks, got %d", second.Meta.TotalCount)
	}
	if second.NextCursor == "" || second.NextCursor == first.NextCursor {
		t.Fatalf("expected fresh cursor for third chunk, got %q", second.NextCursor)
	}

	third, err := h.service.ListResource(context.Background(), ListRequest{
		ResourceType: "properties",
		Cursor:       second.NextCursor,
	})
	if err != nil {
		t.Fatalf("expected third chunk to succeed, got %v", err)
	}
	if len(third.Items) != 2 || third.Items[0]["id"] != "p5" {
		t.Fatalf("expected third chunk items, got %v", third.Items)
	}
	if third.Meta.Summary == nil || third.Meta.Summary.ChunkIndex != 3 {
		t.Fatalf("expected chunk index 3, got %+v", third.Meta.Summary)
	}
	if third.NextCursor != "page_2_token" {
		t.Fatalf("expected final chunk to hand back the page cursor, got %q", third.NextCursor)
	}
	if !third.Meta.HasMore {
		t.Fatalf("expected has more when a next page exists")
	}
}

func TestListResourceMapsUpstreamStatuses(t *testing.T) {
	cases := []struct {
		name         string
		status       int
		wantTextCode string
		wantStatus   int
	}{
		{name: "upstream_404", status: 404, wantTextCode: GatewayErrorResourceNotFound, wantStatus: 404},
		{name: "upstream_429", status: 429, wantTextCode: GatewayErrorRateLimited, wantStatus: 429},
		{name: "upstream_503", status: 503, wantTextCode: GatewayErrorUpstreamUnavailable, wantStatus: 502},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newServiceHarness(t)
			h.governor.responses = []CallResponse{{StatusCode: tc.status}}

			_, err := h.service.ListResource(context.Background(), ListRequest{ResourceType: "properties"})
			requireGatewayFailure(t, err, tc.wantTextCode, tc.wantStatus)
		})
	}
}

func TestGetResourceReturnsItemUnderThreshold(t *testing.T) {
	h := newServiceHarness(t)
	h.governor.responses = []CallResponse{{
		StatusCode: 200,
		Body:       []byte(`{"id":"p42","name":"Harbor View 42"}`),
	}}

	envelope, err := h.service.GetResource(context.Background(), GetRequest{
		ResourceType:  "properties",
		ResourceID:    "p42",
		CorrelationID: "corr_get",
	})
	if err != nil {
		t.Fatalf("expected get to succeed, got %v", err)
	}

	if len(envelope.Items) != 1 || envelope.Items[0]["id"] != "p42" {
		t.Fatalf("expected item p42, got %v", envelope.Items)
	}
	if envelope.Meta.PageSize != 1 || envelope.Meta.TotalCount != 1 || envelope.Meta.HasMore {
		t.Fatalf("expected single item meta, got %+v", envelope.Meta)
	}
	if envelope.Meta.Summary != nil {
		t.Fatalf("expected no shaping summary, got %+v", envelope.Meta.Summary)
	}
	if h.shaper.calls != 0 {
		t.Fatalf("expected no shaping under soft threshold, got %d calls", h.shaper.calls)
	}
	if h.governor.requests[0].Path != "/v1/properties/p42" {
		t.Fatalf("expected detail path with id substituted, got %q", h.governor.requests[0].Path)
	}
}

func TestGetResourceRequiresResourceID(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.service.GetResource(context.Background(), GetRequest{ResourceType: "properties", ResourceID: "  "})
	requireGatewayFailure(t, err, GatewayErrorBadInput, 400)
}

func TestGetResourceRetriesOnceOnStaleLease(t *testing.T) {
	h := newServiceHarness(t)
	h.governor.responses = []CallResponse{
		{StatusCode: 401},
		{StatusCode: 200, Body: []byte(`{"id":"p42"}`)},
	}

	envelope, err := h.service.GetResource(context.Background(), GetRequest{
		ResourceType: "properties",
		ResourceID:   "p42",
	})
	if err != nil {
		t.Fatalf("expected retry with fresh lease to succeed, got %v", err)
	}

	if len(h.governor.requests) != 2 {
		t.Fatalf("expected 2 upstream attempts, got %d", len(h.governor.requests))
	}
	if h.lease.acquires != 2 {
		t.Fatalf("expected lease acquired per attempt, got %d", h.lease.acquires)
	}
	if len(h.lease.invalidations) != 1 || h.lease.invalidations[0] != "upstream_unauthorized" {
		t.Fatalf("expected one upstream_unauthorized invalidation, got %v", h.lease.invalidations)
	}
	if envelope.Items[0]["id"] != "p42" {
		t.Fatalf("expected item from retried call, got %v", envelope.Items)
	}
}

func TestGetResourceFailsAfterSecondUnauthorized(t *testing.T) {
	h := newServiceHarness(t)
	h.governor.responses = []CallResponse{
		{StatusCode: 401},
		{StatusCode: 403},
	}

	_, err := h.service.GetResource(context.Background(), GetRequest{
		ResourceType: "properties",
		ResourceID:   "p42",
	})
	requireGatewayFailure(t, err, GatewayErrorAuthentication, 401)

	if len(h.governor.requests) != 2 {
		t.Fatalf("expected exactly one retry, got %d attempts", len(h.governor.requests))
	}
}

func TestGetResourceHardCapForcesShaping(t *testing.T) {
	h := newServiceHarness(t)
	h.estimator.tokens = 7000
	h.governor.responses = []CallResponse{{
		StatusCode: 200,
		Body:       []byte(`{"id":"p42","description":"very large record"}`),
	}}
	h.shaper.fn = func(_ context.Context, _ ResourceDescriptor, items []Item, _ CostEstimate) (ShapedResponse, error) {
		return ShapedResponse{
			Kind:  ShapeKindPreview,
			Items: []Item{{"id": items[0]["id"]}},
			Summary: &ShapeSummary{
				Kind:            ShapeKindPreview,
				ProjectedFields: []string{"id"},
			},
			Estimate: CostEstimate{ApproxTokens: 300, Method: "chars", Margin: 0.20},
		}, nil
	}

	envelope, err := h.service.GetResource(context.Background(), GetRequest{
		ResourceType: "properties",
		ResourceID:   "p42",
		AllowShaping: false,
	})
	if err != nil {
		t.Fatalf("expected get to succeed, got %v", err)
	}

	if h.shaper.calls != 1 {
		t.Fatalf("expected hard cap to force shaping, got %d calls", h.shaper.calls)
	}
	if envelope.Meta.Summary == nil || envelope.Meta.Summary.Kind != ShapeKindPreview {
		t.Fatalf("expected preview summary, got %+v", envelope.Meta.Summary)
	}
	if envelope.Meta.TokenBudget == nil || envelope.Meta.TokenBudget.EstimatedTokens != 300 {
		t.Fatalf("expected shaped estimate in budget meta, got %+v", envelope.Meta.TokenBudget)
	}
}

func TestGetResourceShapesOnlyWhenCallerOptsIn(t *testing.T) {
	cases := []struct {
		name         string
		allowShaping bool
		wantShaped   bool
	}{
		{name: "opt_in_above_soft_threshold", allowShaping: true, wantShaped: true},
		{name: "no_opt_in_below_hard_cap", allowShaping: false, wantShaped: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newServiceHarness(t)
			h.estimator.tokens = 2500
			h.governor.responses = []CallResponse{{
				StatusCode: 200,
				Body:       []byte(`{"id":"p42"}`),
			}}

			_, err := h.service.GetResource(context.Background(), GetRequest{
				ResourceType: "properties",
				ResourceID:   "p42",
				AllowShaping: tc.allowShaping,
			})
			if err != nil {
				t.Fatalf("expected get to succeed, got %v", err)
			}
			shaped := h.shaper.calls > 0
			if shaped != tc.wantShaped {
				t.Fatalf("expected shaped=%v, got %d shaper calls", tc.wantShaped, h.shaper.calls)
			}
		})
	}
}

func TestServiceMaintenanceOperations(t *testing.T) {
	h := newServiceHarness(t)
	h.cache.sweepRemoved = 9

	removed, err := h.service.SweepCursors(context.Background())
	if err != nil {
		t.Fatalf("expected sweep to succeed, got %v", err)
	}
	if removed != 9 {
		t.Fatalf("expected 9 swept cursors, got %d", removed)
	}

	if err := h.service.InvalidateCredential(context.Background(), "manual rotation"); err != nil {
		t.Fatalf("expected invalidation to succeed, got %v", err)
	}
	if len(h.lease.invalidations) != 1 || h.lease.invalidations[0] != "manual rotation" {
		t.Fatalf("expected rotation reason recorded, got %v", h.lease.invalidations)
	}

	if err := h.service.ReloadConfig(context.Background()); err != nil {
		t.Fatalf("expected reload to succeed, got %v", err)
	}
}

func TestClampLimit(t *testing.T) {
	pagination := PaginationConfig{DefaultPageSize: 25, MaxPageSize: 100}

	cases := []struct {
		name  string
		limit int
		want  int
	}{
		{name: "zero_takes_default", limit: 0, want: 25},
		{name: "negative_takes_default", limit: -5, want: 25},
		{name: "within_bounds", limit: 40, want: 40},
		{name: "clamped_to_max", limit: 250, want: 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := clampLimit(tc.limit, pagination); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestDetailPath(t *testing.T) {
	cases := []struct {
		name     string
		endpoint string
		id       string
		want     string
	}{
		{name: "placeholder_substituted", endpoint: "/v1/properties/{id}", id: "p42", want: "/v1/properties/p42"},
		{name: "appended_without_placeholder", endpoint: "/v1/properties", id: "p42", want: "/v1/properties/p42"},
		{name: "trailing_slash_trimmed", endpoint: "/v1/properties/", id: "p42", want: "/v1/properties/p42"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := detailPath(tc.endpoint, tc.id); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseListPayload(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantItems int
		wantTotal int
		wantErr   bool
	}{
		{name: "bare_array", body: `[{"id":"a"},{"id":"b"}]`, wantItems: 2, wantTotal: 2},
		{name: "wrapped_camel_total", body: `{"items":[{"id":"a"}],"totalCount":12}`, wantItems: 1, wantTotal: 12},
		{name: "wrapped_snake_total", body: `{"items":[{"id":"a"}],"total_count":7}`, wantItems: 1, wantTotal: 7},
		{name: "total_falls_back_to_len", body: `{"items":[{"id":"a"},{"id":"b"}]}`, wantItems: 2, wantTotal: 2},
		{name: "empty_body", body: "", wantItems: 0, wantTotal: 0},
		{name: "malformed_json", body: `{"items":`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, total, err := parseListPayload([]byte(tc.body))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected decode error")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected decode to succeed, got %v", err)
			}
			if len(items) != tc.wantItems {
				t.Fatalf("expected %d items, got %d", tc.wantItems, len(items))
			}
			if total != tc.wantTotal {
				t.Fatalf("expected total %d, got %d", tc.wantTotal, total)
			}
		})
	}
}
