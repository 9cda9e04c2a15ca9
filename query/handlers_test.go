package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-gateway/core"
)

type stubResourceReader struct {
	listFn func(ctx context.Context, req core.ListRequest) (core.Envelope, error)
	getFn  func(ctx context.Context, req core.GetRequest) (core.Envelope, error)
}

func (s stubResourceReader) ListResource(ctx context.Context, req core.ListRequest) (core.Envelope, error) {
	if s.listFn == nil {
		return core.Envelope{}, nil
	}
	return s.listFn(ctx, req)
}

func (s stubResourceReader) GetResource(ctx context.Context, req core.GetRequest) (core.Envelope, error) {
	if s.getFn == nil {
		return core.Envelope{}, nil
	}
	return s.getFn(ctx, req)
}

type stubActivityReader struct {
	listFn func(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error)
}

func (s stubActivityReader) List(ctx context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
	if s.listFn == nil {
		return core.ActivityPage{}, nil
	}
	return s.listFn(ctx, filter)
}

func TestListResourceQuery_DelegatesToReader(t *testing.T) {
	called := false
	reader := stubResourceReader{
		listFn: func(_ context.Context, req core.ListRequest) (core.Envelope, error) {
			called = true
			if req.ResourceType != "properties" || req.Limit != 25 {
				t.Fatalf("unexpected list request: %#v", req)
			}
			return core.Envelope{NextCursor: "cur_1"}, nil
		},
	}

	q := NewListResourceQuery(reader)
	out, err := q.Query(context.Background(), ListResourceMessage{Request: core.ListRequest{
		ResourceType: "properties",
		Limit:        25,
	}})
	if err != nil {
		t.Fatalf("query list resource: %v", err)
	}
	if !called {
		t.Fatalf("expected reader invocation")
	}
	if out.NextCursor != "cur_1" {
		t.Fatalf("unexpected envelope: %#v", out)
	}
}

func TestGetResourceQuery_DelegatesToReader(t *testing.T) {
	reader := stubResourceReader{
		getFn: func(_ context.Context, req core.GetRequest) (core.Envelope, error) {
			if req.ResourceID != "prop_9" {
				t.Fatalf("unexpected get request: %#v", req)
			}
			return core.Envelope{Items: []core.Item{{"id": "prop_9"}}}, nil
		},
	}

	q := NewGetResourceQuery(reader)
	out, err := q.Query(context.Background(), GetResourceMessage{Request: core.GetRequest{
		ResourceType: "properties",
		ResourceID:   "prop_9",
	}})
	if err != nil {
		t.Fatalf("query get resource: %v", err)
	}
	if len(out.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(out.Items))
	}
}

func TestListActivityQuery_DelegatesToReader(t *testing.T) {
	reader := stubActivityReader{
		listFn: func(_ context.Context, filter core.ActivityFilter) (core.ActivityPage, error) {
			if filter.Action != "list_resource" {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			return core.ActivityPage{Total: 3}, nil
		},
	}

	q := NewListActivityQuery(reader)
	page, err := q.Query(context.Background(), ListActivityMessage{Filter: core.ActivityFilter{Action: "list_resource"}})
	if err != nil {
		t.Fatalf("query list activity: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("unexpected total: %d", page.Total)
	}
}

func TestQueries_RequireReader(t *testing.T) {
	if _, err := (*ListResourceQuery)(nil).Query(context.Background(), ListResourceMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil list query")
	}
	if _, err := NewGetResourceQuery(nil).Query(context.Background(), GetResourceMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil resource reader")
	}
	if _, err := NewListActivityQuery(nil).Query(context.Background(), ListActivityMessage{}); err == nil {
		t.Fatalf("expected dependency error for nil activity reader")
	}
}

func TestQueryMessages_Validate(t *testing.T) {
	cases := []struct {
		name    string
		msg     interface{ Validate() error }
		wantErr bool
	}{
		{name: "list_requires_resource_type", msg: ListResourceMessage{}, wantErr: true},
		{
			name:    "list_rejects_negative_limit",
			msg:     ListResourceMessage{Request: core.ListRequest{ResourceType: "properties", Limit: -1}},
			wantErr: true,
		},
		{name: "list_accepts_zero_limit", msg: ListResourceMessage{Request: core.ListRequest{ResourceType: "properties"}}},
		{name: "get_requires_resource_type", msg: GetResourceMessage{Request: core.GetRequest{ResourceID: "x"}}, wantErr: true},
		{name: "get_requires_resource_id", msg: GetResourceMessage{Request: core.GetRequest{ResourceType: "x"}}, wantErr: true},
		{name: "get_accepts_complete_request", msg: GetResourceMessage{Request: core.GetRequest{ResourceType: "x", ResourceID: "y"}}},
		{name: "activity_rejects_negative_page", msg: ListActivityMessage{Filter: core.ActivityFilter{Page: -1}}, wantErr: true},
		{name: "activity_rejects_negative_per_page", msg: ListActivityMessage{Filter: core.ActivityFilter{PerPage: -1}}, wantErr: true},
		{name: "activity_accepts_empty_filter", msg: ListActivityMessage{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Fatalf("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}
