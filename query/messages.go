package query

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-gateway/core"
)

const (
	TypeListResource = "gateway.query.resource.list"
	TypeGetResource  = "gateway.query.resource.get"
	TypeListActivity = "gateway.query.activity.list"
)

type ListResourceMessage struct {
	Request core.ListRequest
}

func (ListResourceMessage) Type() string { return TypeListResource }

func (m ListResourceMessage) Validate() error {
	if strings.TrimSpace(m.Request.ResourceType) == "" {
		return fmt.Errorf("query: resource type is required")
	}
	if m.Request.Limit < 0 {
		return fmt.Errorf("query: limit must be >= 0")
	}
	return nil
}

type GetResourceMessage struct {
	Request core.GetRequest
}

func (GetResourceMessage) Type() string { return TypeGetResource }

func (m GetResourceMessage) Validate() error {
	if strings.TrimSpace(m.Request.ResourceType) == "" {
		return fmt.Errorf("query: resource type is required")
	}
	if strings.TrimSpace(m.Request.ResourceID) == "" {
		return fmt.Errorf("query: resource id is required")
	}
	return nil
}

type ListActivityMessage struct {
	Filter core.ActivityFilter
}

func (ListActivityMessage) Type() string { return TypeListActivity }

func (m ListActivityMessage) Validate() error {
	if m.Filter.Page < 0 {
		return fmt.Errorf("query: page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return fmt.Errorf("query: per_page must be >= 0")
	}
	return nil
}
