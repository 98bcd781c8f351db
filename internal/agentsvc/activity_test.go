package agentsvc

import "testing"

func TestActivityLogEntriesBeforeFull(t *testing.T) {
	log := newActivityLog(4)
	log.record("a", "1")
	log.record("b", "2")

	entries := log.entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "a" || entries[1].Action != "b" {
		t.Errorf("entries not in insertion order: %+v", entries)
	}
}

func TestActivityLogWrapsAroundCapacity(t *testing.T) {
	log := newActivityLog(3)
	for _, action := range []string{"a", "b", "c", "d", "e"} {
		log.record(action, "")
	}

	entries := log.entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"c", "d", "e"}
	for i, w := range want {
		if entries[i].Action != w {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Action, w)
		}
	}
}
