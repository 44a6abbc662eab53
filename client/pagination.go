package client

import (
	"context"
	"fmt"
	"iter"

	"github.com/recallrai/recallrai-go/apierror"
	"github.com/recallrai/recallrai-go/core"
)

// PageFunc fetches the page starting at offset.
type PageFunc[T any] func(ctx context.Context, offset, limit int) (core.Page[T], error)

// All walks every page of a listing, pageSize items at a time, until the
// server reports no more. An error is yielded once and ends the sequence.
//
//	for s, err := range client.All(ctx, 50, func(ctx context.Context, off, lim int) (core.Page[*client.Session], error) {
//		return user.ListSessions(ctx, client.ListSessionsParams{Offset: off, Limit: lim})
//	}) {
//		if err != nil {
//			return err
//		}
//		...
//	}
//
// Pages are fetched lazily; items added or removed between two fetches can be
// skipped or seen twice.
func All[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		if pageSize < 1 {
			yield(zero, apierror.New(apierror.KindValidation, fmt.Sprintf("page size must be >= 1, got %d", pageSize)))
			return
		}
		offset := 0
		for {
			page, err := fetch(ctx, offset, pageSize)
			if err != nil {
				yield(zero, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			if !page.HasMore || len(page.Items) == 0 {
				return
			}
			offset = page.NextOffset(offset)
		}
	}
}

// Collect drains All into a slice.
func Collect[T any](ctx context.Context, pageSize int, fetch PageFunc[T]) ([]T, error) {
	var out []T
	for item, err := range All(ctx, pageSize, fetch) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
