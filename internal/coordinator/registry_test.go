package coordinator

import "testing"

func TestRegistryInsert(t *testing.T) {
	r := newRegistry()
	sink := func(Status) {}

	if first := r.insert("a", sink); !first {
		t.Error("insert into empty registry: first = false, want true")
	}
	if first := r.insert("b", sink); first {
		t.Error("insert of second consumer: first = true, want false")
	}
	// Overwrite keeps the size and never looks like a first insert
	if first := r.insert("a", sink); first {
		t.Error("overwrite insert: first = true, want false")
	}
	if got := r.size(); got != 2 {
		t.Errorf("size() = %d, want 2", got)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := newRegistry()
	sink := func(Status) {}
	r.insert("a", sink)
	r.insert("b", sink)

	removed, last := r.remove("a")
	if !removed || last {
		t.Errorf("remove(a) = (%v, %v), want (true, false)", removed, last)
	}
	removed, last = r.remove("b")
	if !removed || !last {
		t.Errorf("remove(b) = (%v, %v), want (true, true)", removed, last)
	}
	removed, last = r.remove("b")
	if removed || last {
		t.Errorf("remove of absent id = (%v, %v), want (false, false)", removed, last)
	}
}

func TestRegistrySnapshots(t *testing.T) {
	r := newRegistry()
	var got []string
	r.insert("b", func(Status) { got = append(got, "b") })
	r.insert("a", func(Status) { got = append(got, "a") })

	ids := r.ids()
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("ids() = %v, want [a b]", ids)
	}

	for _, sink := range r.sinks() {
		sink(StatusConnected)
	}
	if len(got) != 2 {
		t.Errorf("sinks() snapshot invoked %d sinks, want 2", len(got))
	}
}
