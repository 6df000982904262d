package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "projects.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	s.hashCost = bcrypt.MinCost
	return s
}

const (
	alice = "user-alice"
	bob   = "user-bob"
)

// steppingClock returns a clock that advances one second per call.
func steppingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestCreateGet(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	p, err := s.Create(ctx, alice, "Ground floor", "/data/uploads/plan.png")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.ID == "" || p.Status != StatusProcessing {
		t.Fatalf("Create() = %+v", p)
	}

	got, err := s.Get(ctx, alice, p.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Name != "Ground floor" || got.ImagePath != p.ImagePath || got.Status != StatusProcessing {
		t.Errorf("Get() = %+v", got)
	}
	if !got.CreatedAt.Equal(p.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, p.CreatedAt)
	}
}

func TestCreateDefaultName(t *testing.T) {
	s := openTest(t)
	p, err := s.Create(context.Background(), alice, "", "x.png")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(p.Name, "Project ") {
		t.Errorf("Name = %q, want Project <timestamp>", p.Name)
	}
}

func TestCreateNameLength(t *testing.T) {
	s := openTest(t)
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"at limit", strings.Repeat("a", MaxNameLength), nil},
		{"multibyte at limit", strings.Repeat("é", MaxNameLength), nil},
		{"over limit", strings.Repeat("a", MaxNameLength+1), ErrNameTooLong},
		{"trimmed to limit", "  " + strings.Repeat("a", MaxNameLength) + "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), alice, tt.input, "x.png")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Create() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProjectsScopedByOwner(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	p, err := s.Create(ctx, alice, "mine", "a.png")
	if err != nil {
		t.Fatal(err)
	}
	if p.Owner != alice {
		t.Errorf("Owner = %q, want %q", p.Owner, alice)
	}
	if _, err := s.Create(ctx, bob, "theirs", "b.png"); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != p.ID {
		t.Errorf("List(alice) = %+v, want only her project", list)
	}
	if _, err := s.Get(ctx, bob, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() by another user error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, bob, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() by another user error = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, alice, p.ID); err != nil {
		t.Errorf("project gone after foreign Delete: %v", err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTest(t)
	if _, err := s.Get(context.Background(), alice, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	s.now = steppingClock()

	var ids []string
	for _, name := range []string{"a", "b", "c"} {
		p, err := s.Create(ctx, alice, name, name+".png")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, p.ID)
	}

	list, err := s.List(ctx, alice)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("List() returned %d projects, want 3", len(list))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if list[i].ID != want {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Name, want)
		}
	}
}

func TestListEmpty(t *testing.T) {
	s := openTest(t)
	list, err := s.List(context.Background(), alice)
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("List() = %v, want empty non-nil slice", list)
	}
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	s.now = steppingClock()

	p, err := s.Create(ctx, alice, "plan", "plan.png")
	if err != nil {
		t.Fatal(err)
	}
	out := Outcome{
		Status:       StatusCompleted,
		ModelPath:    "/out/plan_model.glb",
		FeaturesPath: "/out/plan_features.json",
		Degraded:     true,
		Message:      "openings not cut",
	}
	if err := s.UpdateStatus(ctx, p.ID, out); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, err := s.Get(ctx, alice, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != out.Status || got.ModelPath != out.ModelPath || got.FeaturesPath != out.FeaturesPath ||
		got.Degraded != out.Degraded || got.Message != out.Message {
		t.Errorf("Get() after update = %+v", got)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}

	if err := s.UpdateStatus(ctx, "missing", out); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	p, err := s.Create(ctx, alice, "plan", "plan.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, alice, p.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, alice, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, alice, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestReopenKeepsProjects(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "projects.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	p, err := s.Create(ctx, alice, "plan", "plan.png")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Get(ctx, alice, p.ID); err != nil {
		t.Errorf("Get() after reopen error = %v", err)
	}
}

func TestTimeLayoutSorts(t *testing.T) {
	a := formatTime(time.Date(2024, 1, 1, 0, 0, 9, 0, time.UTC))
	b := formatTime(time.Date(2024, 1, 1, 0, 0, 10, 5, time.UTC))
	if !(a < b) {
		t.Errorf("%q should sort before %q", a, b)
	}
	if _, err := parseTime("yesterday"); err == nil {
		t.Error("parseTime(yesterday) should fail")
	}
}
