package session

import (
	"errors"
	"testing"
	"time"
)

// checkAdminInvariant verifies that the admin slot is empty iff no sessions
// are connected, and otherwise names a connected session.
func checkAdminInvariant(t *testing.T, r *Registry) {
	t.Helper()
	if r.Len() == 0 {
		if r.AdminID() != "" {
			t.Fatalf("empty registry has admin %q", r.AdminID())
		}
		return
	}
	if r.AdminID() == "" {
		t.Fatal("non-empty registry has no admin")
	}
	if _, err := r.Get(r.AdminID()); err != nil {
		t.Fatalf("admin %q is not a connected session", r.AdminID())
	}
}

func TestConnectFirstBecomesAdmin(t *testing.T) {
	r := NewRegistry()
	a := r.Connect("alice", "192.168.1.10")
	if !a.IsAdmin {
		t.Error("first session should be admin")
	}
	b := r.Connect("bob", "192.168.1.11")
	if b.IsAdmin {
		t.Error("second session should not be admin")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", r.Len())
	}
	checkAdminInvariant(t, r)
}

func TestConnectGeneratesDefaultName(t *testing.T) {
	r := NewRegistry()
	s := r.Connect("", "10.0.0.5")
	if s.DisplayName == "" {
		t.Fatal("expected a generated name")
	}
	if s.DisplayName[:7] != "Device-" {
		t.Errorf("expected Device- prefix, got %q", s.DisplayName)
	}
}

func TestDisconnectUnknownSession(t *testing.T) {
	r := NewRegistry()
	if err := r.Disconnect("no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminFailoverDeterministic(t *testing.T) {
	r := NewRegistry()
	a := r.Connect("a", "ip-a")
	b := r.Connect("b", "ip-b")
	c := r.Connect("c", "ip-c")

	// Force distinct timestamps so ordering is by ConnectedAt.
	r.sessions[a.ID].ConnectedAt = time.Unix(100, 0)
	r.sessions[b.ID].ConnectedAt = time.Unix(200, 0)
	r.sessions[c.ID].ConnectedAt = time.Unix(300, 0)

	if err := r.Disconnect(a.ID); err != nil {
		t.Fatal(err)
	}
	if r.AdminID() != b.ID {
		t.Errorf("expected b as new admin, got %q", r.AdminID())
	}
	checkAdminInvariant(t, r)

	if err := r.Disconnect(b.ID); err != nil {
		t.Fatal(err)
	}
	if r.AdminID() != c.ID {
		t.Errorf("expected c as new admin, got %q", r.AdminID())
	}
	checkAdminInvariant(t, r)
}

func TestAdminFailoverTieBreaksOnConnectionOrder(t *testing.T) {
	r := NewRegistry()
	a := r.Connect("a", "ip-a")
	b := r.Connect("b", "ip-b")
	c := r.Connect("c", "ip-c")

	// Identical timestamps: connection order decides.
	ts := time.Unix(500, 0)
	for _, id := range []string{a.ID, b.ID, c.ID} {
		r.sessions[id].ConnectedAt = ts
	}

	if err := r.Disconnect(a.ID); err != nil {
		t.Fatal(err)
	}
	if r.AdminID() != b.ID {
		t.Errorf("expected b (earliest in connection order), got %q", r.AdminID())
	}
}

func TestAdminClearsWhenRegistryEmpties(t *testing.T) {
	r := NewRegistry()
	a := r.Connect("a", "ip-a")
	checkAdminInvariant(t, r)
	if err := r.Disconnect(a.ID); err != nil {
		t.Fatal(err)
	}
	checkAdminInvariant(t, r)
}

func TestAdminInvariantAcrossOperationSequence(t *testing.T) {
	r := NewRegistry()
	var ids []string
	for i := 0; i < 5; i++ {
		s := r.Connect("", "10.0.0.1")
		ids = append(ids, s.ID)
		checkAdminInvariant(t, r)
	}
	// Remove in mixed order, checking the invariant after every step.
	for _, i := range []int{2, 0, 4, 1, 3} {
		if err := r.Disconnect(ids[i]); err != nil {
			t.Fatal(err)
		}
		checkAdminInvariant(t, r)
	}
}

func TestSnapshotPreservesConnectionOrder(t *testing.T) {
	r := NewRegistry()
	a := r.Connect("a", "ip-a")
	b := r.Connect("b", "ip-b")
	c := r.Connect("c", "ip-c")

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(snap))
	}
	for i, want := range []string{a.ID, b.ID, c.ID} {
		if snap[i].ID != want {
			t.Errorf("position %d: expected %q, got %q", i, want, snap[i].ID)
		}
	}
	if !snap[0].IsAdmin || snap[1].IsAdmin || snap[2].IsAdmin {
		t.Error("only the first session should be flagged admin")
	}
}

func TestSnapshotReturnsCopies(t *testing.T) {
	r := NewRegistry()
	r.Connect("a", "ip-a")
	snap := r.Snapshot()
	snap[0].DisplayName = "mutated"
	if r.Snapshot()[0].DisplayName == "mutated" {
		t.Error("snapshot should not alias registry state")
	}
}
