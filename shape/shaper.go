package shape

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-gateway/core"
)

// Shaper picks the response rendition for payloads over the soft threshold:
// preview when a field map brings the payload under budget, chunks otherwise.
// The hard cap bounds every rendition it emits.
type Shaper struct {
	cfg       core.ShaperConfig
	estimator core.TokenEstimator
	fieldMaps core.FieldMapSource
	drift     *DriftRecorder
	logger    core.Logger
}

type ShaperOption func(*Shaper)

func WithLogger(logger core.Logger) ShaperOption {
	return func(s *Shaper) {
		s.logger = logger
	}
}

func WithDriftRecorder(recorder *DriftRecorder) ShaperOption {
	return func(s *Shaper) {
		s.drift = recorder
	}
}

func NewShaper(cfg core.ShaperConfig, estimator core.TokenEstimator, fieldMaps core.FieldMapSource, options ...ShaperOption) (*Shaper, error) {
	if estimator == nil {
		return nil, fmt.Errorf("shape: estimator is required")
	}
	if cfg.SoftTokenThreshold <= 0 {
		return nil, fmt.Errorf("shape: soft token threshold must be positive")
	}
	if cfg.HardTokenCap < cfg.SoftTokenThreshold {
		return nil, fmt.Errorf("shape: hard token cap must be >= soft threshold")
	}
	if cfg.ChunkTokens <= 0 || cfg.ChunkTokens > cfg.HardTokenCap {
		cfg.ChunkTokens = cfg.SoftTokenThreshold
	}
	shaper := &Shaper{
		cfg:       cfg,
		estimator: estimator,
		fieldMaps: fieldMaps,
		logger:    glog.Ensure(nil),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(shaper)
	}
	return shaper, nil
}

func (s *Shaper) Shape(ctx context.Context, descriptor core.ResourceDescriptor, items []core.Item, estimate core.CostEstimate) (core.ShapedResponse, error) {
	if s == nil {
		return core.ShapedResponse{}, fmt.Errorf("shape: shaper is nil")
	}
	s.observeDrift(estimate, items)

	if estimate.ApproxTokens <= s.cfg.SoftTokenThreshold {
		return core.ShapedResponse{Kind: core.ShapeKindFull, Items: items, Estimate: estimate}, nil
	}

	if preview, ok, err := s.tryPreview(ctx, descriptor, items, estimate); err != nil {
		return core.ShapedResponse{}, err
	} else if ok {
		return preview, nil
	}
	return s.chunk(ctx, descriptor, items, estimate)
}

// previewTextChars bounds free-text values carried into a preview. Longer
// values are cut at a word boundary with a continuation note; the detail
// fetch instructions cover the remainder.
const previewTextChars = 400

const previewContinuation = " [truncated]"

func (s *Shaper) tryPreview(ctx context.Context, descriptor core.ResourceDescriptor, items []core.Item, before core.CostEstimate) (core.ShapedResponse, bool, error) {
	if s.fieldMaps == nil {
		return core.ShapedResponse{}, false, nil
	}
	paths, ok := s.fieldMaps.FieldsFor(descriptor.Type)
	if !ok || len(paths) == 0 {
		return core.ShapedResponse{}, false, nil
	}

	projected := make([]core.Item, 0, len(items))
	totalFields := 0
	for _, item := range items {
		slim, fieldCount := projectItem(item, paths)
		if fieldCount > totalFields {
			totalFields = fieldCount
		}
		truncatePreviewText(slim)
		projected = append(projected, slim)
	}

	payload, err := json.Marshal(projected)
	if err != nil {
		return core.ShapedResponse{}, false, fmt.Errorf("shape: preview encode failed: %w", err)
	}
	estimate := s.estimator.Estimate(payload)
	if estimate.ApproxTokens > s.cfg.HardTokenCap {
		return core.ShapedResponse{}, false, nil
	}

	s.logShape(ctx, "preview", descriptor.Type, before.ApproxTokens, estimate.ApproxTokens, len(items))
	summary := &core.ShapeSummary{
		Kind:            core.ShapeKindPreview,
		TotalFields:     totalFields,
		ProjectedFields: append([]string(nil), paths...),
	}
	if strings.TrimSpace(descriptor.DetailEndpoint) != "" {
		summary.Details = &core.DetailFetch{
			Endpoint: descriptor.DetailEndpoint,
			Parameters: map[string]any{
				"resourceType": descriptor.Type,
				"idField":      "id",
			},
		}
	}
	return core.ShapedResponse{
		Kind:     core.ShapeKindPreview,
		Items:    projected,
		Summary:  summary,
		Estimate: estimate,
	}, true, nil
}

func (s *Shaper) chunk(ctx context.Context, descriptor core.ResourceDescriptor, items []core.Item, before core.CostEstimate) (core.ShapedResponse, error) {
	chunkBudget := s.cfg.ChunkTokens
	if chunkBudget > s.cfg.HardTokenCap {
		chunkBudget = s.cfg.HardTokenCap
	}

	chunks, err := s.packChunks(items, chunkBudget)
	if err != nil {
		return core.ShapedResponse{}, err
	}
	if len(chunks) == 0 {
		return core.ShapedResponse{Kind: core.ShapeKindFull, Items: items, Estimate: before}, nil
	}

	firstPayload, err := json.Marshal(chunks[0])
	if err != nil {
		return core.ShapedResponse{}, fmt.Errorf("shape: chunk encode failed: %w", err)
	}
	estimate := s.estimator.Estimate(firstPayload)
	s.logShape(ctx, "chunk", descriptor.Type, before.ApproxTokens, estimate.ApproxTokens, len(items))

	summary := &core.ShapeSummary{
		Kind:        core.ShapeKindChunk,
		ChunkIndex:  1,
		TotalChunks: len(chunks),
	}
	return core.ShapedResponse{
		Kind:     core.ShapeKindChunk,
		Items:    chunks[0],
		Summary:  summary,
		Chunks:   chunks,
		Estimate: estimate,
	}, nil
}

// truncatePreviewText cuts long free-text values in a projected item at a
// word boundary so prose-heavy fields do not dominate a preview.
func truncatePreviewText(item core.Item) {
	for key, value := range item {
		text, ok := value.(string)
		if !ok || len(text) <= previewTextChars {
			continue
		}
		segments := splitAtWordBoundaries(text, previewTextChars)
		item[key] = segments[0] + previewContinuation
	}
}

// packChunks greedily fills chunks up to the token budget. An item that
// alone exceeds the budget is split on its largest string field at word
// boundaries.
func (s *Shaper) packChunks(items []core.Item, chunkBudget int) ([][]core.Item, error) {
	var chunks [][]core.Item
	var current []core.Item
	currentTokens := 0

	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			currentTokens = 0
		}
	}

	for _, item := range items {
		tokens, err := s.itemTokens(item)
		if err != nil {
			return nil, err
		}
		if tokens > chunkBudget {
			flush()
			pieces, splitErr := s.splitItem(item, chunkBudget)
			if splitErr != nil {
				return nil, splitErr
			}
			for _, piece := range pieces {
				chunks = append(chunks, []core.Item{piece})
			}
			continue
		}
		if currentTokens+tokens > chunkBudget {
			flush()
		}
		current = append(current, item)
		currentTokens += tokens
	}
	flush()
	return chunks, nil
}

func (s *Shaper) itemTokens(item core.Item) (int, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return 0, fmt.Errorf("shape: item encode failed: %w", err)
	}
	return s.estimator.Estimate(payload).ApproxTokens, nil
}

// maxSplitPasses bounds how many times a single row is re-split before the
// serialized fallback takes over.
const maxSplitPasses = 4

// splitItem carves the largest string field into word-boundary segments so
// each piece fits the budget. Non-split fields repeat on every piece. A piece
// still over budget is split again on its next largest field, and a row with
// nothing left to split is truncated outright.
func (s *Shaper) splitItem(item core.Item, chunkBudget int) ([]core.Item, error) {
	return s.splitItemPass(item, chunkBudget, 0)
}

func (s *Shaper) splitItemPass(item core.Item, chunkBudget int, pass int) ([]core.Item, error) {
	if pass >= maxSplitPasses {
		return s.truncateItem(item, chunkBudget)
	}
	path, fieldValue := largestStringField(item)
	if len(path) == 0 {
		return s.truncateItem(item, chunkBudget)
	}

	base := cloneWithValue(item, path, "")
	baseTokens, err := s.itemTokens(base)
	if err != nil {
		return nil, err
	}
	segmentBudget := chunkBudget - baseTokens
	if segmentBudget < 16 {
		segmentBudget = 16
	}
	// Invert the estimator margin so a segment's final estimate lands under
	// the budget.
	maxChars := int(float64(segmentBudget*charsPerToken) / (1 + DefaultEstimateMargin))
	if maxChars < 64 {
		maxChars = 64
	}

	segments := splitAtWordBoundaries(fieldValue, maxChars)
	pieces := make([]core.Item, 0, len(segments))
	for _, segment := range segments {
		piece := cloneWithValue(item, path, segment)
		tokens, err := s.itemTokens(piece)
		if err != nil {
			return nil, err
		}
		if tokens > chunkBudget {
			sub, err := s.splitItemPass(piece, chunkBudget, pass+1)
			if err != nil {
				return nil, err
			}
			pieces = append(pieces, sub...)
			continue
		}
		pieces = append(pieces, piece)
	}
	return pieces, nil
}

// truncateItem is the last resort for a row that cannot be split under the
// budget: the serialized row is cut outright so the cap holds even for
// pathological payloads.
func (s *Shaper) truncateItem(item core.Item, chunkBudget int) ([]core.Item, error) {
	tokens, err := s.itemTokens(item)
	if err != nil {
		return nil, err
	}
	if tokens <= chunkBudget {
		return []core.Item{item}, nil
	}
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("shape: item encode failed: %w", err)
	}
	text := string(payload)
	maxChars := int(float64(chunkBudget*charsPerToken) / (1 + DefaultEstimateMargin))
	if maxChars < 64 {
		maxChars = 64
	}
	for {
		if len(text) > maxChars {
			text = cutAtRuneBoundary(text, maxChars)
		}
		piece := core.Item{"truncated": text}
		pieceTokens, err := s.itemTokens(piece)
		if err != nil {
			return nil, err
		}
		if pieceTokens <= chunkBudget || maxChars <= 64 {
			return []core.Item{piece}, nil
		}
		maxChars = maxChars * 3 / 4
	}
}

// largestStringField walks nested objects and arrays and returns the path to
// the longest string value.
func largestStringField(item core.Item) ([]any, string) {
	var bestPath []any
	bestValue := ""
	var walk func(value any, path []any)
	walk = func(value any, path []any) {
		switch typed := value.(type) {
		case string:
			if len(typed) > len(bestValue) {
				bestValue = typed
				bestPath = append([]any(nil), path...)
			}
		case core.Item:
			walk(map[string]any(typed), path)
		case map[string]any:
			keys := make([]string, 0, len(typed))
			for key := range typed {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				walk(typed[key], append(path, key))
			}
		case []any:
			for index, element := range typed {
				walk(element, append(path, index))
			}
		}
	}
	walk(map[string]any(item), nil)
	return bestPath, bestValue
}

// cloneWithValue copies an item along the given path and replaces the leaf,
// so pieces can vary one nested field without sharing mutations.
func cloneWithValue(item core.Item, path []any, value any) core.Item {
	root := map[string]any(item.Clone())
	current := any(root)
	for index, segment := range path {
		last := index == len(path)-1
		switch key := segment.(type) {
		case string:
			node, ok := current.(map[string]any)
			if !ok {
				return core.Item(root)
			}
			if last {
				node[key] = value
				continue
			}
			child := cloneContainer(node[key])
			node[key] = child
			current = child
		case int:
			node, ok := current.([]any)
			if !ok || key < 0 || key >= len(node) {
				return core.Item(root)
			}
			if last {
				node[key] = value
				continue
			}
			child := cloneContainer(node[key])
			node[key] = child
			current = child
		}
	}
	return core.Item(root)
}

func cloneContainer(value any) any {
	switch typed := value.(type) {
	case core.Item:
		out := make(map[string]any, len(typed))
		for key, element := range typed {
			out[key] = element
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, element := range typed {
			out[key] = element
		}
		return out
	case []any:
		out := make([]any, len(typed))
		copy(out, typed)
		return out
	default:
		return value
	}
}

func cutAtRuneBoundary(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut <= 0 {
		cut = limit
	}
	return text[:cut]
}

// splitAtWordBoundaries cuts text into segments of at most maxChars, breaking
// at the last space before the limit when one exists.
func splitAtWordBoundaries(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}
	var segments []string
	remaining := text
	for len(remaining) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(remaining[cut]) {
			cut--
		}
		if idx := strings.LastIndexByte(remaining[:cut], ' '); idx > 0 {
			cut = idx
		}
		if cut <= 0 {
			cut = maxChars
		}
		segments = append(segments, strings.TrimSpace(remaining[:cut]))
		remaining = strings.TrimSpace(remaining[cut:])
	}
	if remaining != "" {
		segments = append(segments, remaining)
	}
	if len(segments) == 0 {
		segments = []string{""}
	}
	return segments
}

func (s *Shaper) observeDrift(estimate core.CostEstimate, items []core.Item) {
	if s.drift == nil {
		return
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return
	}
	s.drift.Observe(estimate, len(payload))
}

func (s *Shaper) logShape(ctx context.Context, kind string, resourceType string, beforeTokens int, afterTokens int, itemCount int) {
	if s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	logger.Info("response shaped",
		"kind", kind,
		"resource_type", resourceType,
		"tokens_before", beforeTokens,
		"tokens_after", afterTokens,
		"item_count", itemCount,
	)
}

var _ core.Shaper = (*Shaper)(nil)
