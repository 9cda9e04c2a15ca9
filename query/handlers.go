package query

import (
	"context"

	"github.com/goliatone/go-gateway/core"
)

type ResourceReader interface {
	ListResource(ctx context.Context, req core.ListRequest) (core.Envelope, error)
	GetResource(ctx context.Context, req core.GetRequest) (core.Envelope, error)
}

type ActivityReader interface {
	List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error)
}

type ListResourceQuery struct {
	reader ResourceReader
}

func NewListResourceQuery(reader ResourceReader) *ListResourceQuery {
	return &ListResourceQuery{reader: reader}
}

func (q *ListResourceQuery) Query(ctx context.Context, msg ListResourceMessage) (core.Envelope, error) {
	if q == nil || q.reader == nil {
		return core.Envelope{}, queryDependencyError("query: resource reader is required")
	}
	return q.reader.ListResource(ctx, msg.Request)
}

type GetResourceQuery struct {
	reader ResourceReader
}

func NewGetResourceQuery(reader ResourceReader) *GetResourceQuery {
	return &GetResourceQuery{reader: reader}
}

func (q *GetResourceQuery) Query(ctx context.Context, msg GetResourceMessage) (core.Envelope, error) {
	if q == nil || q.reader == nil {
		return core.Envelope{}, queryDependencyError("query: resource reader is required")
	}
	return q.reader.GetResource(ctx, msg.Request)
}

type ListActivityQuery struct {
	reader ActivityReader
}

func NewListActivityQuery(reader ActivityReader) *ListActivityQuery {
	return &ListActivityQuery{reader: reader}
}

func (q *ListActivityQuery) Query(ctx context.Context, msg ListActivityMessage) (core.ActivityPage, error) {
	if q == nil || q.reader == nil {
		return core.ActivityPage{}, queryDependencyError("query: activity reader is required")
	}
	return q.reader.List(ctx, msg.Filter)
}
