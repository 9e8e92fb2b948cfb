// Package chunk splits ordered sequences into bounded-size groups for batch submission.
package chunk

import "errors"

// ErrInvalidSize is returned when the requested chunk size is below 1.
var ErrInvalidSize = errors.New("chunk size must be >= 1")

// Split divides items into consecutive groups of at most size elements.
// The final group holds the remainder. An empty input yields no groups.
func Split[T any](items []T, size int) ([][]T, error) {
	if size < 1 {
		return nil, ErrInvalidSize
	}

	if len(items) == 0 {
		return nil, nil
	}

	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}

	return groups, nil
}
