package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chazu/floorplan3d/pkg/store"
)

func TestEnsureDefaultUser(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "projects.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	for i := 0; i < 2; i++ {
		if err := ensureDefaultUser(ctx, st, "admin", "admin123"); err != nil {
			t.Fatalf("ensureDefaultUser() run %d error = %v", i, err)
		}
	}
	if _, err := st.Authenticate(ctx, "admin", "admin123"); err != nil {
		t.Errorf("default user cannot log in: %v", err)
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("FLOORPLAN_TEST_PORT", "8080")
	t.Setenv("FLOORPLAN_TEST_BAD", "soon")
	if got := getenv("FLOORPLAN_TEST_PORT", "3000"); got != "8080" {
		t.Errorf("getenv() = %q", got)
	}
	if got := getenv("FLOORPLAN_TEST_UNSET", "3000"); got != "3000" {
		t.Errorf("getenv(unset) = %q", got)
	}
	if got := getenvAsInt("FLOORPLAN_TEST_PORT", 1); got != 8080 {
		t.Errorf("getenvAsInt() = %d", got)
	}
	if got := getenvAsInt("FLOORPLAN_TEST_BAD", 30); got != 30 {
		t.Errorf("getenvAsInt(bad) = %d", got)
	}
}
