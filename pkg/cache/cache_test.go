package cache

import (
	"context"
	"errors"
	"testing"
)

func TestKeys(t *testing.T) {
	if got := RecordKey(42); got != "animals:record:42" {
		t.Errorf("RecordKey(42) = %q", got)
	}
	if got := PageKey(3); got != "animals:page:3" {
		t.Errorf("PageKey(3) = %q", got)
	}
}

func TestDisabledStore(t *testing.T) {
	ctx := context.Background()

	// A store without a Redis client misses on read and ignores writes.
	store := New(nil, 0)

	if err := store.SetJSON(ctx, RecordKey(1), map[string]any{"id": 1}); err != nil {
		t.Errorf("SetJSON on disabled store returned error: %v", err)
	}

	var v map[string]any
	if err := store.GetJSON(ctx, RecordKey(1), &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestNilStore(t *testing.T) {
	var store *Store

	var v map[string]any
	if err := store.GetJSON(context.Background(), PageKey(1), &v); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss on nil store, got %v", err)
	}
	if err := store.SetJSON(context.Background(), PageKey(1), v); err != nil {
		t.Errorf("SetJSON on nil store returned error: %v", err)
	}
}
