package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Service orchestrates the request-governance pipeline: credential leasing,
// governed upstream calls, pagination, cost estimation, and response shaping.
type Service struct {
	configSource    ConfigSource
	configManager   *ConfigManager
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorFactory    ErrorFactory
	errorMapper     ErrorMapper
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

type ServiceDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorFactory    ErrorFactory
	ErrorMapper     ErrorMapper
	ConfigSource    ConfigSource
	LeaseSource     LeaseSource
	Governor        CallGovernor
	Transport       TransportAdapter
	CursorCodec     CursorCodec
	CursorCache     CursorCache
	Paginator       Paginator
	Estimator       TokenEstimator
	Shaper          Shaper
	FieldMaps       FieldMapSource
	AuditSink       AuditSink
	Registry        Registry
}

func NewService(cfg Config, options ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("gateway", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("gateway"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.registry == nil {
		builder.registry = NewResourceRegistry()
	}
	if builder.auditSink == nil {
		builder.auditSink = NewMemoryAuditSink(0)
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	manager, err := NewConfigManager(builder.runtimeConfig, builder.configProvider, builder.optionsResolver, logger)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.leaseSource == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: lease source is required"))
	}
	if builder.governor == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: call governor is required"))
	}
	if builder.cursorCodec == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: cursor codec is required"))
	}
	if builder.cursorCache == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: cursor cache is required"))
	}
	if builder.paginator == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: paginator is required"))
	}
	if builder.estimator == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: token estimator is required"))
	}
	if builder.shaper == nil {
		return nil, mapBuildError(builder.errorMapper, fmt.Errorf("core: shaper is required"))
	}

	return &Service{
		configSource:    manager,
		configManager:   manager,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorFactory:    builder.errorFactory,
		errorMapper:     builder.errorMapper,
		leaseSource:     builder.leaseSource,
		governor:        builder.governor,
		transport:       builder.transport,
		cursorCodec:     builder.cursorCodec,
		cursorCache:     builder.cursorCache,
		paginator:       builder.paginator,
		estimator:       builder.estimator,
		shaper:          builder.shaper,
		fieldMaps:       builder.fieldMaps,
		auditSink:       builder.auditSink,
		registry:        builder.registry,
		now:             builder.now,
	}, nil
}

func Setup(cfg Config, options ...Option) (*Service, error) {
	return NewService(cfg, options...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil || s.configSource == nil {
		return DefaultConfig()
	}
	return s.configSource.Current()
}

func (s *Service) Registry() Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:          s.logger,
		LoggerProvider:  s.loggerProvider,
		MetricsRecorder: s.metricsRecorder,
		ErrorFactory:    s.errorFactory,
		ErrorMapper:     s.errorMapper,
		ConfigSource:    s.configSource,
		LeaseSource:     s.leaseSource,
		Governor:        s.governor,
		Transport:       s.transport,
		CursorCodec:     s.cursorCodec,
		CursorCache:     s.cursorCache,
		Paginator:       s.paginator,
		Estimator:       s.estimator,
		Shaper:          s.shaper,
		FieldMaps:       s.fieldMaps,
		AuditSink:       s.auditSink,
		Registry:        s.registry,
	}
}

// ListResource serves one bounded page of a resource listing. Continuations
// arrive as opaque cursors; a cursor minted for a different filter set or
// sort order is rejected rather than silently reinterpreted.
func (s *Service) ListResource(ctx context.Context, req ListRequest) (envelope Envelope, err error) {
	startedAt := time.Now().UTC()
	correlationID := s.ensureCorrelationID(req.CorrelationID)
	fields := map[string]any{
		"resource_type":  req.ResourceType,
		"correlation_id": correlationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "list_resource", err, fields)
		s.recordAudit(ctx, "list_resource", correlationID, err, fields)
	}()

	descriptor, ok := s.registry.Get(req.ResourceType)
	if !ok {
		err = s.mapError(fmt.Errorf("core: %w: %s", ErrResourceNotFound, strings.TrimSpace(req.ResourceType)))
		return Envelope{}, err
	}
	fields["endpoint"] = descriptor.ListEndpoint

	cfg := s.Config()
	_, pagination := cfg.ForEndpoint(descriptor.ListEndpoint)
	limit := clampLimit(req.Limit, pagination)
	fields["page_size"] = limit

	fingerprint := FilterFingerprint(descriptor.Type, descriptor.OrderKey, req.Filters)
	state := CursorState{
		OrderKey:          descriptor.OrderKey,
		FilterFingerprint: fingerprint,
		IssuedAt:          s.now().UTC(),
	}

	if token := strings.TrimSpace(req.Cursor); token != "" {
		decoded, decodeErr := s.cursorCodec.Decode(token)
		if decodeErr != nil {
			err = s.mapError(decodeErr)
			return Envelope{}, err
		}
		if decoded.FilterFingerprint != fingerprint || decoded.OrderKey != descriptor.OrderKey {
			err = s.mapError(fmt.Errorf("core: %w: fingerprint mismatch", ErrCursorInvalid))
			return Envelope{}, err
		}
		resume, cacheErr := s.cursorCache.Get(ctx, token)
		if cacheErr != nil {
			err = s.mapError(cacheErr)
			return Envelope{}, err
		}
		if resume.Kind == ResumeKindChunk {
			envelope, err = s.serveChunk(ctx, resume, correlationID)
			if err != nil {
				err = s.mapError(err)
				return Envelope{}, err
			}
			envelope.Meta.CorrelationID = correlationID
			return envelope, nil
		}
		state = resume.Cursor
	}

	fetcher := s.governedFetcher(descriptor)
	page, pageErr := s.paginator.Page(ctx, fetcher, FetchRequest{
		Descriptor: descriptor,
		Offset:     state.Offset,
		Limit:      limit,
		Filters:    copyStringMap(req.Filters),
	}, state)
	if pageErr != nil {
		err = s.mapError(pageErr)
		return Envelope{}, err
	}
	fields["total_count"] = page.TotalCount
	fields["has_more"] = page.HasMore

	envelope, err = s.shapeEnvelope(ctx, descriptor, cfg, page, fingerprint, correlationID)
	if err != nil {
		err = s.mapError(err)
		return Envelope{}, err
	}
	return envelope, nil
}

// GetResource fetches one item by identifier. Shaping applies only when the
// caller opts in, except that the hard token cap is enforced regardless.
func (s *Service) GetResource(ctx context.Context, req GetRequest) (envelope Envelope, err error) {
	startedAt := time.Now().UTC()
	correlationID := s.ensureCorrelationID(req.CorrelationID)
	fields := map[string]any{
		"resource_type":  req.ResourceType,
		"resource_id":    req.ResourceID,
		"correlation_id": correlationID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_resource", err, fields)
		s.recordAudit(ctx, "get_resource", correlationID, err, fields)
	}()

	resourceID := strings.TrimSpace(req.ResourceID)
	if resourceID == "" {
		err = s.mapError(fmt.Errorf("core: resource id is required"))
		return Envelope{}, err
	}
	descriptor, ok := s.registry.Get(req.ResourceType)
	if !ok {
		err = s.mapError(fmt.Errorf("core: %w: %s", ErrResourceNotFound, strings.TrimSpace(req.ResourceType)))
		return Envelope{}, err
	}
	if strings.TrimSpace(descriptor.DetailEndpoint) == "" {
		err = s.mapError(fmt.Errorf("core: resource has no detail endpoint: %s", descriptor.Type))
		return Envelope{}, err
	}
	path := detailPath(descriptor.DetailEndpoint, resourceID)
	fields["endpoint"] = path

	response, callErr := s.executeGoverned(ctx, CallRequest{
		Method:        "GET",
		Path:          path,
		Endpoint:      descriptor.DetailEndpoint,
		CorrelationID: correlationID,
	})
	if callErr != nil {
		err = s.mapError(callErr)
		return Envelope{}, err
	}
	if statusErr := s.upstreamStatusError(response.StatusCode); statusErr != nil {
		err = s.mapError(statusErr)
		return Envelope{}, err
	}

	var item Item
	if unmarshalErr := json.Unmarshal(response.Body, &item); unmarshalErr != nil {
		err = s.mapError(fmt.Errorf("core: detail payload decode failed: %w", unmarshalErr))
		return Envelope{}, err
	}

	cfg := s.Config()
	payload, marshalErr := json.Marshal(item)
	if marshalErr != nil {
		err = s.mapError(fmt.Errorf("core: detail payload encode failed: %w", marshalErr))
		return Envelope{}, err
	}
	estimate := s.estimator.Estimate(payload)
	fields["estimated_tokens"] = estimate.ApproxTokens

	mustShape := estimate.ApproxTokens > cfg.Shaper.HardTokenCap
	wantShape := req.AllowShaping && estimate.ApproxTokens > cfg.Shaper.SoftTokenThreshold
	if !mustShape && !wantShape {
		return Envelope{
			Items: []Item{item},
			Meta: ResponseMeta{
				TotalCount:    1,
				PageSize:      1,
				HasMore:       false,
				TokenBudget:   tokenBudgetMeta(estimate, cfg.Shaper),
				CorrelationID: correlationID,
			},
		}, nil
	}

	shaped, shapeErr := s.shaper.Shape(ctx, descriptor, []Item{item}, estimate)
	if shapeErr != nil {
		err = s.mapError(shapeErr)
		return Envelope{}, err
	}
	envelope = Envelope{
		Items: shaped.Items,
		Meta: ResponseMeta{
			TotalCount:    1,
			PageSize:      len(shaped.Items),
			HasMore:       false,
			Summary:       shaped.Summary,
			TokenBudget:   tokenBudgetMeta(shaped.Estimate, cfg.Shaper),
			CorrelationID: correlationID,
		},
	}
	if shaped.Kind == ShapeKindChunk {
		fingerprint := FilterFingerprint(descriptor.Type, descriptor.OrderKey, nil)
		nextToken, chunkErr := s.mintChunkChain(ctx, descriptor, shaped, fingerprint, "", 1, cfg.Cursor.TTL)
		if chunkErr != nil {
			err = s.mapError(chunkErr)
			return Envelope{}, err
		}
		envelope.NextCursor = nextToken
		envelope.Meta.HasMore = nextToken != ""
	}
	return envelope, nil
}

// ReloadConfig rebuilds governance configuration from the backing source.
// A rejected candidate leaves the active configuration serving.
func (s *Service) ReloadConfig(ctx context.Context) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		s.observeOperation(ctx, startedAt, "reload_config", err, fields)
		s.recordAudit(ctx, "reload_config", "", err, fields)
	}()
	if s == nil || s.configManager == nil {
		return nil
	}
	if err = s.configManager.Reload(ctx); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// InvalidateCredential discards the current lease so the next call acquires
// a fresh one.
func (s *Service) InvalidateCredential(ctx context.Context, reason string) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"reason": strings.TrimSpace(reason)}
	defer func() {
		s.observeOperation(ctx, startedAt, "invalidate_credential", err, fields)
		s.recordAudit(ctx, "invalidate_credential", "", err, fields)
	}()
	if err = s.leaseSource.Invalidate(ctx, reason); err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// SweepCursors removes expired cursor cache entries and reports how many
// were dropped.
func (s *Service) SweepCursors(ctx context.Context) (removed int, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["removed"] = removed
		s.observeOperation(ctx, startedAt, "sweep_cursors", err, fields)
	}()
	removed, err = s.cursorCache.Sweep(ctx)
	if err != nil {
		err = s.mapError(err)
		return 0, err
	}
	return removed, nil
}

func (s *Service) shapeEnvelope(ctx context.Context, descriptor ResourceDescriptor, cfg Config, page Page, fingerprint string, correlationID string) (Envelope, error) {
	payload, err := json.Marshal(page.Items)
	if err != nil {
		return Envelope{}, fmt.Errorf("core: page payload encode failed: %w", err)
	}
	estimate := s.estimator.Estimate(payload)

	meta := ResponseMeta{
		TotalCount:    page.TotalCount,
		PageSize:      len(page.Items),
		HasMore:       page.HasMore,
		TokenBudget:   tokenBudgetMeta(estimate, cfg.Shaper),
		CorrelationID: correlationID,
	}
	if estimate.ApproxTokens <= cfg.Shaper.SoftTokenThreshold {
		return Envelope{Items: page.Items, NextCursor: page.NextCursor, Meta: meta}, nil
	}

	shaped, err := s.shaper.Shape(ctx, descriptor, page.Items, estimate)
	if err != nil {
		return Envelope{}, err
	}
	meta.Summary = shaped.Summary
	meta.PageSize = len(shaped.Items)
	meta.TokenBudget = tokenBudgetMeta(shaped.Estimate, cfg.Shaper)

	envelope := Envelope{Items: shaped.Items, NextCursor: page.NextCursor, Meta: meta}
	if shaped.Kind == ShapeKindChunk {
		nextToken, err := s.mintChunkChain(ctx, descriptor, shaped, fingerprint, page.NextCursor, page.TotalCount, cfg.Cursor.TTL)
		if err != nil {
			return Envelope{}, err
		}
		if nextToken != "" {
			envelope.NextCursor = nextToken
			envelope.Meta.HasMore = true
		}
	}
	return envelope, nil
}

// mintChunkChain caches the chunks after the first and returns the cursor
// for chunk two. The final chunk's continuation hands back the next page
// cursor, so chunk navigation rejoins normal pagination.
func (s *Service) mintChunkChain(ctx context.Context, descriptor ResourceDescriptor, shaped ShapedResponse, fingerprint string, nextPageCursor string, totalRows int, ttl time.Duration) (string, error) {
	if len(shaped.Chunks) <= 1 {
		return nextPageCursor, nil
	}
	segments := make([]string, 0, len(shaped.Chunks)-1)
	for _, chunk := range shaped.Chunks[1:] {
		encoded, err := json.Marshal(chunk)
		if err != nil {
			return "", fmt.Errorf("core: chunk encode failed: %w", err)
		}
		segments = append(segments, string(encoded))
	}

	now := s.now().UTC()
	state := CursorState{
		Offset:            1,
		OrderKey:          descriptor.OrderKey,
		FilterFingerprint: fingerprint,
		IssuedAt:          now,
	}
	token, err := s.cursorCodec.Encode(state)
	if err != nil {
		return "", err
	}
	err = s.cursorCache.Put(ctx, token, ResumeState{
		Kind:           ResumeKindChunk,
		Cursor:         state,
		Segments:       segments,
		ChunkIndex:     1,
		TotalChunks:    len(shaped.Chunks),
		NextPageCursor: nextPageCursor,
		TotalRows:      totalRows,
		ExpiresAt:      now.Add(ttl),
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) serveChunk(ctx context.Context, resume ResumeState, correlationID string) (Envelope, error) {
	if len(resume.Segments) == 0 {
		return Envelope{}, fmt.Errorf("core: %w: chunk state exhausted", ErrCursorInvalid)
	}
	var items []Item
	if err := json.Unmarshal([]byte(resume.Segments[0]), &items); err != nil {
		return Envelope{}, fmt.Errorf("core: chunk decode failed: %w", err)
	}

	cfg := s.Config()
	chunkIndex := resume.ChunkIndex + 1
	summary := &ShapeSummary{
		Kind:        ShapeKindChunk,
		ChunkIndex:  chunkIndex,
		TotalChunks: resume.TotalChunks,
	}
	envelope := Envelope{
		Items: items,
		Meta: ResponseMeta{
			TotalCount:    resume.TotalRows,
			PageSize:      len(items),
			HasMore:       false,
			Summary:       summary,
			CorrelationID: correlationID,
		},
	}

	remaining := resume.Segments[1:]
	if len(remaining) == 0 {
		envelope.NextCursor = resume.NextPageCursor
		envelope.Meta.HasMore = resume.NextPageCursor != ""
		return envelope, nil
	}

	now := s.now().UTC()
	state := resume.Cursor
	state.Offset = chunkIndex
	state.IssuedAt = now
	token, err := s.cursorCodec.Encode(state)
	if err != nil {
		return Envelope{}, err
	}
	err = s.cursorCache.Put(ctx, token, ResumeState{
		Kind:           ResumeKindChunk,
		Cursor:         state,
		Segments:       remaining,
		ChunkIndex:     chunkIndex,
		TotalChunks:    resume.TotalChunks,
		NextPageCursor: resume.NextPageCursor,
		TotalRows:      resume.TotalRows,
		ExpiresAt:      now.Add(cfg.Cursor.TTL),
	})
	if err != nil {
		return Envelope{}, err
	}
	envelope.NextCursor = token
	envelope.Meta.HasMore = true
	return envelope, nil
}

type governedFetcher struct {
	service    *Service
	descriptor ResourceDescriptor
}

func (s *Service) governedFetcher(descriptor ResourceDescriptor) Fetcher {
	return governedFetcher{service: s, descriptor: descriptor}
}

func (f governedFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	s := f.service
	query := copyStringMap(req.Filters)
	if f.descriptor.SupportsOffsetLimit {
		query["offset"] = fmt.Sprint(req.Offset)
		query["limit"] = fmt.Sprint(req.Limit)
	}
	response, err := s.executeGoverned(ctx, CallRequest{
		Method:   "GET",
		Path:     f.descriptor.ListEndpoint,
		Query:    query,
		Endpoint: f.descriptor.ListEndpoint,
	})
	if err != nil {
		return FetchResult{}, err
	}
	if statusErr := s.upstreamStatusError(response.StatusCode); statusErr != nil {
		return FetchResult{}, statusErr
	}
	items, total, err := parseListPayload(response.Body)
	if err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Items: items, TotalCount: total}, nil
}

// executeGoverned runs one upstream call under the governor with the current
// lease attached. A 401 or 403 invalidates the lease and retries once with a
// fresh one before giving up.
func (s *Service) executeGoverned(ctx context.Context, req CallRequest) (CallResponse, error) {
	response, err := s.executeWithLease(ctx, req)
	if err != nil {
		return CallResponse{}, err
	}
	if response.StatusCode != 401 && response.StatusCode != 403 {
		return response, nil
	}
	if err := s.leaseSource.Invalidate(ctx, "upstream_unauthorized"); err != nil {
		return CallResponse{}, err
	}
	response, err = s.executeWithLease(ctx, req)
	if err != nil {
		return CallResponse{}, err
	}
	if response.StatusCode == 401 || response.StatusCode == 403 {
		return CallResponse{}, fmt.Errorf("core: %w: upstream status %d", ErrAuthenticationFailed, response.StatusCode)
	}
	return response, nil
}

func (s *Service) executeWithLease(ctx context.Context, req CallRequest) (CallResponse, error) {
	lease, err := s.leaseSource.Acquire(ctx)
	if err != nil {
		return CallResponse{}, err
	}
	headers := copyStringMap(req.Headers)
	headers["Authorization"] = "Bearer " + lease.Token
	req.Headers = headers
	return s.governor.Execute(ctx, req)
}

func (s *Service) upstreamStatusError(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 404:
		return ErrResourceNotFound
	case status == 429:
		return fmt.Errorf("core: %w: upstream status 429", ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("core: %w: upstream status %d", ErrUpstreamUnavailable, status)
	default:
		return fmt.Errorf("core: upstream rejected request: status %d", status)
	}
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) ensureCorrelationID(correlationID string) string {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID != "" {
		return correlationID
	}
	return uuid.NewString()
}

func (s *Service) recordAudit(ctx context.Context, action string, correlationID string, err error, fields map[string]any) {
	if s == nil || s.auditSink == nil {
		return
	}
	status := AuditStatusSuccess
	metadata := cloneFields(fields)
	if err != nil {
		status = AuditStatusFailure
		metadata["error"] = err.Error()
	}
	entry := AuditEntry{
		ID:            uuid.NewString(),
		Action:        action,
		Status:        status,
		CorrelationID: correlationID,
		Metadata:      RedactSensitiveMap(metadata),
		CreatedAt:     s.now().UTC(),
	}
	if recordErr := s.auditSink.Record(ctx, entry); recordErr != nil {
		s.logError(ctx, "audit record failed", map[string]any{
			"action": action,
			"error":  recordErr.Error(),
		})
	}
}

func clampLimit(limit int, pagination PaginationConfig) int {
	if limit <= 0 {
		return pagination.DefaultPageSize
	}
	if pagination.MaxPageSize > 0 && limit > pagination.MaxPageSize {
		return pagination.MaxPageSize
	}
	return limit
}

func detailPath(endpoint string, resourceID string) string {
	if strings.Contains(endpoint, "{id}") {
		return strings.ReplaceAll(endpoint, "{id}", resourceID)
	}
	return strings.TrimRight(endpoint, "/") + "/" + resourceID
}

func tokenBudgetMeta(estimate CostEstimate, cfg ShaperConfig) *TokenBudgetMeta {
	threshold := cfg.SoftTokenThreshold
	if threshold <= 0 {
		return nil
	}
	return &TokenBudgetMeta{
		EstimatedTokens: estimate.ApproxTokens,
		ThresholdUsed:   threshold,
		BudgetUsed:      float64(estimate.ApproxTokens) / float64(threshold),
	}
}

func parseListPayload(body []byte) ([]Item, int, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, 0, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []Item
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, 0, fmt.Errorf("core: list payload decode failed: %w", err)
		}
		return items, len(items), nil
	}
	var wrapped struct {
		Items      []Item `json:"items"`
		TotalCount int    `json:"totalCount"`
		Total      int    `json:"total_count"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, 0, fmt.Errorf("core: list payload decode failed: %w", err)
	}
	total := wrapped.TotalCount
	if total == 0 {
		total = wrapped.Total
	}
	if total == 0 {
		total = len(wrapped.Items)
	}
	return wrapped.Items, total, nil
}
