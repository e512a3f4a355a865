package entity

import (
	"fmt"
	"strconv"
)

// ListQuery selects a page of the remote collection.
// Zero values mean "not set" and are left out of Params.
type ListQuery struct {
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Active *bool  `json:"active,omitempty"`
	Search string `json:"search,omitempty"`
	Sort   string `json:"sort,omitempty"`
}

// ListMeta is the paging information returned with a list result.
type ListMeta struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ListResult is the remote answer to a list query.
type ListResult struct {
	Items []Entity `json:"items"`
	Meta  ListMeta `json:"meta"`
}

// Params returns the set fields of q as a flat parameter map.
// Two queries selecting the same page always produce equal maps.
func (q ListQuery) Params() map[string]any {
	m := make(map[string]any, 5)
	if q.Limit != 0 {
		m["limit"] = int64(q.Limit)
	}
	if q.Offset != 0 {
		m["offset"] = int64(q.Offset)
	}
	if q.Active != nil {
		m["active"] = *q.Active
	}
	if q.Search != "" {
		m["search"] = q.Search
	}
	if q.Sort != "" {
		m["sort"] = q.Sort
	}
	return m
}

// QueryFromParams rebuilds a ListQuery from a parameter map produced by
// Params (possibly after a JSON round trip). Unknown keys are an error.
func QueryFromParams(m map[string]any) (ListQuery, error) {
	var q ListQuery
	for k, v := range m {
		switch k {
		case "limit":
			n, err := toInt(v)
			if err != nil {
				return ListQuery{}, fmt.Errorf("limit: %w", err)
			}
			q.Limit = n
		case "offset":
			n, err := toInt(v)
			if err != nil {
				return ListQuery{}, fmt.Errorf("offset: %w", err)
			}
			q.Offset = n
		case "active":
			b, ok := v.(bool)
			if !ok {
				return ListQuery{}, fmt.Errorf("active: expected bool, got %T", v)
			}
			q.Active = &b
		case "search":
			s, ok := v.(string)
			if !ok {
				return ListQuery{}, fmt.Errorf("search: expected string, got %T", v)
			}
			q.Search = s
		case "sort":
			s, ok := v.(string)
			if !ok {
				return ListQuery{}, fmt.Errorf("sort: expected string, got %T", v)
			}
			q.Sort = s
		default:
			return ListQuery{}, fmt.Errorf("unknown query parameter %q", k)
		}
	}
	return q, nil
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}
