// Package testutil provides shared test helpers.
//
// Usage:
//
//	ctx := testutil.TestContext(t)
//	root := testutil.TempExperimentRoot(t, 20)
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestContext returns a context that times out with the usual test budget.
func TestContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestContextWithTimeout returns a context with a custom timeout.
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext returns an already cancelled context.
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// TempExperimentRoot creates a temporary experiment root holding the given
// number of empty image files under images/.
func TempExperimentRoot(t *testing.T, imageFiles int) string {
	t.Helper()
	root := t.TempDir()
	imageDir := filepath.Join(root, "images")
	if err := os.MkdirAll(imageDir, 0o755); err != nil {
		t.Fatalf("create image directory: %v", err)
	}
	for i := 1; i <= imageFiles; i++ {
		name := filepath.Join(imageDir, fmt.Sprintf("site_%03d.png", i))
		if err := os.WriteFile(name, nil, 0o644); err != nil {
			t.Fatalf("create image file: %v", err)
		}
	}
	return root
}
