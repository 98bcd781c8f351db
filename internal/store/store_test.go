package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testInstance(id, name string) *LocalInstance {
	return &LocalInstance{
		ID:        id,
		Name:      name,
		IP:        "10.0.0.1",
		Provider:  "hetzner",
		Region:    "fsn1",
		Size:      "cx22",
		CreatedAt: time.Now().UTC(),
	}
}

func TestSaveAndGetActiveInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	instance := testInstance("123", "spuff-test")

	if err := s.SaveInstance(ctx, instance); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	got, err := s.GetActiveInstance(ctx)
	if err != nil {
		t.Fatalf("GetActiveInstance: %v", err)
	}
	if got == nil {
		t.Fatal("expected an active instance")
	}
	if got.ID != "123" || got.Name != "spuff-test" || got.IP != "10.0.0.1" {
		t.Errorf("unexpected instance: %+v", got)
	}
}

func TestOnlyOneActiveInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveInstance(ctx, testInstance("111", "spuff-first")); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}
	if err := s.SaveInstance(ctx, testInstance("222", "spuff-second")); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}

	active, err := s.GetActiveInstance(ctx)
	if err != nil {
		t.Fatalf("GetActiveInstance: %v", err)
	}
	if active.ID != "222" {
		t.Errorf("active.ID = %q, want 222", active.ID)
	}

	all, err := s.ListInstances(ctx)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}
}

func TestRemoveInstance(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	instance := testInstance("456", "spuff-remove")

	if err := s.SaveInstance(ctx, instance); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}
	active, err := s.GetActiveInstance(ctx)
	if err != nil || active == nil {
		t.Fatalf("expected active instance before removal, err=%v", err)
	}

	if err := s.RemoveInstance(ctx, "456"); err != nil {
		t.Fatalf("RemoveInstance: %v", err)
	}

	active, err = s.GetActiveInstance(ctx)
	if err != nil {
		t.Fatalf("GetActiveInstance: %v", err)
	}
	if active != nil {
		t.Errorf("expected no active instance after removal, got %+v", active)
	}
}

func TestGetActiveInstanceNone(t *testing.T) {
	s := newTestStore(t)
	active, err := s.GetActiveInstance(context.Background())
	if err != nil {
		t.Fatalf("GetActiveInstance: %v", err)
	}
	if active != nil {
		t.Errorf("expected nil, got %+v", active)
	}
}

func TestListInstances(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"aaa", "bbb", "ccc"} {
		if err := s.SaveInstance(ctx, testInstance(id, "spuff-"+id)); err != nil {
			t.Fatalf("SaveInstance(%s): %v", id, err)
		}
	}

	all, err := s.ListInstances(ctx)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(all) = %d, want 3", len(all))
	}
}

func TestUpdateInstanceIP(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	instance := testInstance("789", "spuff-ip-test")

	if err := s.SaveInstance(ctx, instance); err != nil {
		t.Fatalf("SaveInstance: %v", err)
	}
	if err := s.UpdateInstanceIP(ctx, "789", "192.168.1.100"); err != nil {
		t.Fatalf("UpdateInstanceIP: %v", err)
	}

	active, err := s.GetActiveInstance(ctx)
	if err != nil || active == nil {
		t.Fatalf("GetActiveInstance: %v", err)
	}
	if active.IP != "192.168.1.100" {
		t.Errorf("IP = %q, want 192.168.1.100", active.IP)
	}
}

func TestInstanceReplaceOnSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	instance1 := &LocalInstance{ID: "same-id", Name: "first-name", IP: "1.1.1.1",
		Provider: "digitalocean", Region: "nyc1", Size: "small", CreatedAt: time.Now().UTC()}
	instance2 := &LocalInstance{ID: "same-id", Name: "second-name", IP: "2.2.2.2",
		Provider: "hetzner", Region: "fsn1", Size: "large", CreatedAt: time.Now().UTC()}

	if err := s.SaveInstance(ctx, instance1); err != nil {
		t.Fatalf("SaveInstance(1): %v", err)
	}
	if err := s.SaveInstance(ctx, instance2); err != nil {
		t.Fatalf("SaveInstance(2): %v", err)
	}

	all, err := s.ListInstances(ctx)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(all) = %d, want 1", len(all))
	}
	if all[0].Name != "second-name" || all[0].IP != "2.2.2.2" {
		t.Errorf("unexpected instance: %+v", all[0])
	}
}
