package core

import (
	"encoding/json"
	"fmt"
)

// Page is one slice of an offset/limit listing. HasMore is computed by the
// server and surfaced as is.
type Page[T any] struct {
	Items   []T
	Total   int
	HasMore bool
}

// NextOffset returns the offset of the page following the one fetched at
// offset.
func (p Page[T]) NextOffset(offset int) int {
	return offset + len(p.Items)
}

// DecodePage reads a list response. The items live under key; the generic
// "items" key is accepted as well. When itemKey is set, each element may be
// wrapped under it ({"user": {...}}) or sent flat.
func DecodePage[T any](raw []byte, key, itemKey string) (Page[T], error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return Page[T]{}, fmt.Errorf("decode %s page: %w", key, err)
	}

	var page Page[T]
	items, ok := env[key]
	if !ok {
		items = env["items"]
	}
	if len(items) > 0 {
		var elems []json.RawMessage
		if err := json.Unmarshal(items, &elems); err != nil {
			return Page[T]{}, fmt.Errorf("decode %s: %w", key, err)
		}
		page.Items = make([]T, len(elems))
		for i, elem := range elems {
			var err error
			if itemKey != "" {
				err = DecodeResource(elem, itemKey, &page.Items[i])
			} else {
				err = json.Unmarshal(elem, &page.Items[i])
			}
			if err != nil {
				return Page[T]{}, fmt.Errorf("decode %s[%d]: %w", key, i, err)
			}
		}
	}
	if v, ok := env["total"]; ok {
		if err := json.Unmarshal(v, &page.Total); err != nil {
			return Page[T]{}, fmt.Errorf("decode %s total: %w", key, err)
		}
	}
	if v, ok := env["has_more"]; ok {
		if err := json.Unmarshal(v, &page.HasMore); err != nil {
			return Page[T]{}, fmt.Errorf("decode %s has_more: %w", key, err)
		}
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}

// DecodeResource reads a single-resource response that may be wrapped under
// key ({"user": {...}}) or sent flat.
func DecodeResource(raw []byte, key string, out any) error {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	body := raw
	if inner, ok := env[key]; ok && len(inner) > 0 && inner[0] == '{' {
		body = inner
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
