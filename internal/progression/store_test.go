package progression

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestMemoryStore_LoadMissing(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Load(context.Background(), "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_SaveCopiesInput(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := []byte("abc")
	_ = s.Save(ctx, "k", in)
	in[0] = 'x'

	out, err := s.Load(ctx, "k")
	if err != nil || string(out) != "abc" {
		t.Fatalf("expected abc, got %q %v", out, err)
	}
}

func TestMemoryStore_KeysByPrefix(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, k := range []string{"course_progress:b", "other", "course_progress:a"} {
		_ = s.Save(ctx, k, []byte("{}"))
	}
	keys, _ := s.Keys(ctx, "course_progress:")
	if !slices.Equal(keys, []string{"course_progress:a", "course_progress:b"}) {
		t.Fatalf("unexpected keys %v", keys)
	}

	s.Clear()
	keys, _ = s.Keys(ctx, "")
	if len(keys) != 0 {
		t.Fatalf("expected no keys after clear, got %v", keys)
	}
}
