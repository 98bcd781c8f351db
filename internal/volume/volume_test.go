package volume

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spuff/spuff/pkg/agentapi"
)

func TestResolveExplicitMountPoint(t *testing.T) {
	m, err := Resolve("myinstance", agentapi.Volume{
		Target:     "/home/dev/project",
		MountPoint: "/tmp/mnt",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m.MountPoint != "/tmp/mnt" {
		t.Errorf("MountPoint = %q, want /tmp/mnt", m.MountPoint)
	}
}

func TestResolveBidirectionalFromSource(t *testing.T) {
	m, err := Resolve("myinstance", agentapi.Volume{
		Source: "./src",
		Target: "~/p/src",
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	abs, _ := filepath.Abs("./src")
	if m.MountPoint != abs {
		t.Errorf("MountPoint = %q, want %q", m.MountPoint, abs)
	}
	if !m.Bidirectional {
		t.Error("expected Bidirectional = true when source is set")
	}
}

func TestResolveAutoGenerated(t *testing.T) {
	m, err := Resolve("myinstance", agentapi.Volume{Target: "/data/cache"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	base, _ := dataDir()
	want := filepath.Join(base, "myinstance", "data/cache")
	if m.MountPoint != want {
		t.Errorf("MountPoint = %q, want %q", m.MountPoint, want)
	}
	if m.Bidirectional {
		t.Error("expected Bidirectional = false for an auto-generated mount point")
	}
}

func TestResolveRequiresTarget(t *testing.T) {
	if _, err := Resolve("myinstance", agentapi.Volume{}); err == nil {
		t.Error("Resolve() with empty target = nil error, want error")
	}
}

func TestStateFileAddLoadRemove(t *testing.T) {
	dir := t.TempDir()
	sf := OpenMountState(filepath.Join(dir, "volumes.json"))

	rec := Record{
		MountPoint:   "/tmp/mnt1",
		RemotePath:   "/home/dev/project",
		InstanceName: "spuff-test",
		MountedAt:    time.Now().UTC(),
	}
	if err := sf.Add(rec); err != nil {
		t.Fatalf("Add: %v", err)
	}

	loaded, err := sf.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].MountPoint != rec.MountPoint {
		t.Fatalf("Load() = %+v", loaded)
	}

	if err := sf.Remove(rec.MountPoint); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	loaded, err = sf.Load()
	if err != nil {
		t.Fatalf("Load after remove: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("Load() after Remove = %+v, want empty", loaded)
	}
}

func TestStateFileAddReplacesSameMountPoint(t *testing.T) {
	dir := t.TempDir()
	sf := OpenMountState(filepath.Join(dir, "volumes.json"))

	first := Record{MountPoint: "/tmp/mnt1", RemotePath: "/a", InstanceName: "i1", MountedAt: time.Now().UTC()}
	second := Record{MountPoint: "/tmp/mnt1", RemotePath: "/b", InstanceName: "i1", MountedAt: time.Now().UTC()}

	if err := sf.Add(first); err != nil {
		t.Fatalf("Add(first): %v", err)
	}
	if err := sf.Add(second); err != nil {
		t.Fatalf("Add(second): %v", err)
	}

	loaded, err := sf.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].RemotePath != "/b" {
		t.Fatalf("Load() = %+v, want one record with RemotePath /b", loaded)
	}
}

func TestStateFileForInstance(t *testing.T) {
	dir := t.TempDir()
	sf := OpenMountState(filepath.Join(dir, "volumes.json"))

	mustAdd := func(mp, inst string) {
		if err := sf.Add(Record{MountPoint: mp, InstanceName: inst, MountedAt: time.Now().UTC()}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	mustAdd("/tmp/a", "i1")
	mustAdd("/tmp/b", "i1")
	mustAdd("/tmp/c", "i2")

	recs, err := sf.ForInstance("i1")
	if err != nil {
		t.Fatalf("ForInstance: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("ForInstance(i1) = %v, want 2 records", recs)
	}
}

func TestStateFileLoadMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	sf := OpenMountState(filepath.Join(dir, "does-not-exist.json"))
	recs, err := sf.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("Load() = %v, want empty", recs)
	}
}
