package cursor_test

import (
	"context"
	"testing"

	"github.com/lorekeep/lorekeep/internal/cursor"
	"github.com/lorekeep/lorekeep/internal/testutil"
)

func TestIntegrationGetAndAdvance(t *testing.T) {
	tc, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	tracker, err := cursor.New(tc.Pool, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	marker, found, err := tracker.Get(ctx, "blog")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if found || marker != "" {
		t.Errorf("Get() on fresh store = (%q, %v), want empty, not found", marker, found)
	}

	if err := tracker.Advance(ctx, "blog", "42-abc"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	marker, found, err = tracker.Get(ctx, "blog")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found || marker != "42-abc" {
		t.Errorf("Get() = (%q, %v), want (42-abc, true)", marker, found)
	}

	// Advancing again overwrites in place.
	if err := tracker.Advance(ctx, "blog", "43-def"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	marker, _, err = tracker.Get(ctx, "blog")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if marker != "43-def" {
		t.Errorf("Get() = %q, want %q", marker, "43-def")
	}

	// Partitions track independently.
	if err := tracker.Advance(ctx, "kb", "7-xyz"); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	marker, _, err = tracker.Get(ctx, "blog")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if marker != "43-def" {
		t.Errorf("blog cursor = %q after advancing kb, want unchanged", marker)
	}
}
