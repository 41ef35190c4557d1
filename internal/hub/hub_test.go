package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lanshare/lanshare/internal/catalog"
	"github.com/lanshare/lanshare/internal/view"
)

func recv(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

// drain empties a channel so the next recv sees only fresh rounds.
func drain(ch <-chan Update) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func testEntry(name string) catalog.Entry {
	return catalog.Entry{
		DisplayName: name,
		StorageKey:  "key-" + name,
		SizeBytes:   42,
	}
}

func TestConnectBroadcastsToNewSession(t *testing.T) {
	h := New()
	s, ch := h.Connect("alice", "192.168.1.10")

	u := recv(t, ch)
	if u.Clients.TotalClients != 1 {
		t.Fatalf("expected 1 client, got %d", u.Clients.TotalClients)
	}
	if !u.Clients.IsAdmin {
		t.Error("first session should see itself as admin")
	}
	if u.Clients.Clients[0].SessionID != s.ID {
		t.Error("roster should contain the new session")
	}
}

func TestConnectBroadcastsToExistingSessions(t *testing.T) {
	h := New()
	_, ch1 := h.Connect("alice", "ip-a")
	drain(ch1)

	h.Connect("bob", "ip-b")
	u := recv(t, ch1)
	if u.Clients.TotalClients != 2 {
		t.Fatalf("existing session should see 2 clients, got %d", u.Clients.TotalClients)
	}
}

func TestPublishStampsOwnerSnapshot(t *testing.T) {
	h := New()
	s, ch := h.Connect("alice", "192.168.1.10")
	drain(ch)

	e, err := h.Publish(s.ID, testEntry("a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if e.OwnerSessionID != s.ID || e.OwnerDisplayName != "alice" || e.OwnerAddress != "192.168.1.10" {
		t.Errorf("owner snapshot not stamped: %+v", e)
	}

	u := recv(t, ch)
	if u.Files.TotalFiles != 1 || !u.Files.Files[0].OwnedByMe {
		t.Error("owner should see the entry with OwnedByMe=true")
	}
}

func TestPublishFromUnknownSession(t *testing.T) {
	h := New()
	if _, err := h.Publish("ghost", testEntry("a.txt")); !errors.Is(err, ErrNoConnection) {
		t.Fatalf("expected ErrNoConnection, got %v", err)
	}
}

func TestRemoveByNonOwnerNonAdmin(t *testing.T) {
	h := New()
	s1, ch1 := h.Connect("alice", "ip-a")
	s2, _ := h.Connect("bob", "ip-b")
	drain(ch1)

	e, err := h.Publish(s1.ID, testEntry("a.txt"))
	if err != nil {
		t.Fatal(err)
	}

	// s2 is neither owner nor admin (s1 connected first).
	if _, err := h.Remove(e.ID, s2.ID); !errors.Is(err, catalog.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if _, err := h.Lookup(e.ID); err != nil {
		t.Error("denied remove must leave the entry in place")
	}
}

func TestRemoveByAdmin(t *testing.T) {
	h := New()
	s1, _ := h.Connect("alice", "ip-a")
	s2, _ := h.Connect("bob", "ip-b")

	e, err := h.Publish(s2.ID, testEntry("b.txt"))
	if err != nil {
		t.Fatal(err)
	}

	// s1 is admin and may remove s2's entry.
	removed, err := h.Remove(e.ID, s1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed.StorageKey != e.StorageKey {
		t.Error("removed entry should carry the storage key for cleanup")
	}
	if _, err := h.Lookup(e.ID); !errors.Is(err, catalog.ErrNotFound) {
		t.Error("entry should be gone")
	}
}

func TestRecordDownloadBroadcastsCount(t *testing.T) {
	h := New()
	s, ch := h.Connect("alice", "ip-a")
	e, _ := h.Publish(s.ID, testEntry("a.txt"))
	drain(ch)

	if err := h.RecordDownload(e.ID); err != nil {
		t.Fatal(err)
	}
	u := recv(t, ch)
	if u.Files.Files[0].DownloadCount != 1 {
		t.Errorf("expected download count 1, got %d", u.Files.Files[0].DownloadCount)
	}

	if err := h.RecordDownload("missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepSkipsBroadcastWhenNothingRemoved(t *testing.T) {
	h := New()
	s, ch := h.Connect("alice", "ip-a")
	h.Publish(s.ID, testEntry("a.txt"))
	drain(ch)

	removed := h.Sweep(nil)
	if len(removed) != 0 {
		t.Fatalf("expected nothing removed, got %d", len(removed))
	}
	select {
	case <-ch:
		t.Error("no-op sweep must not broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSweepRunsCleanupOncePerEntry(t *testing.T) {
	h := New()
	s1, _ := h.Connect("alice", "ip-a")
	s2, ch2 := h.Connect("bob", "ip-b")
	h.Publish(s1.ID, testEntry("a.txt"))
	h.Publish(s1.ID, testEntry("b.txt"))
	h.Publish(s2.ID, testEntry("c.txt"))
	if err := h.Disconnect(s1.ID); err != nil {
		t.Fatal(err)
	}
	drain(ch2)

	var mu sync.Mutex
	cleaned := map[string]int{}
	removed := h.Sweep(func(e catalog.Entry) {
		mu.Lock()
		cleaned[e.StorageKey]++
		mu.Unlock()
	})

	if len(removed) != 2 {
		t.Fatalf("expected 2 orphans removed, got %d", len(removed))
	}
	for _, key := range []string{"key-a.txt", "key-b.txt"} {
		if cleaned[key] != 1 {
			t.Errorf("cleanup for %s ran %d times, want 1", key, cleaned[key])
		}
	}

	u := recv(t, ch2)
	if u.Files.TotalFiles != 1 {
		t.Errorf("survivor should see 1 file, got %d", u.Files.TotalFiles)
	}
}

func TestSlowConsumerDoesNotBlockBroadcast(t *testing.T) {
	h := New()
	s, _ := h.Connect("slow", "ip-a")
	_, fast := h.Connect("fast", "ip-b")
	drain(fast)

	// Overflow the slow session's buffer; Publish must keep returning.
	done := make(chan struct{})
	go func() {
		for i := 0; i < pushBuffer+16; i++ {
			h.Publish(s.ID, testEntry("spam"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast blocked on a slow consumer")
	}
}

// End-to-end flow: admin uploads, a second device joins, the admin leaves,
// and the reaper sweep leaves the second device with an empty file list.
func TestSessionLifecycleEndToEnd(t *testing.T) {
	h := New()

	// S1 connects and becomes admin.
	s1, ch1 := h.Connect("alice", "192.168.1.10")
	u := recv(t, ch1)
	if !u.Clients.IsAdmin {
		t.Fatal("S1 should be admin")
	}

	// S1 uploads entry E.
	e, err := h.Publish(s1.ID, testEntry("report.pdf"))
	if err != nil {
		t.Fatal(err)
	}
	u = recv(t, ch1)
	if !u.Files.Files[0].OwnedByMe {
		t.Error("S1 should see E as owned by itself")
	}

	// S2 connects, sees E as foreign and S1's address redacted.
	s2, ch2 := h.Connect("bob", "192.168.1.11")
	u = recv(t, ch2)
	if u.Clients.IsAdmin {
		t.Error("S2 should not be admin")
	}
	if u.Files.TotalFiles != 1 || u.Files.Files[0].OwnedByMe {
		t.Error("S2 should see E with OwnedByMe=false")
	}
	for _, row := range u.Clients.Clients {
		switch row.SessionID {
		case s1.ID:
			if row.Address != view.Redacted {
				t.Errorf("S1's address should be redacted for S2, got %q", row.Address)
			}
		case s2.ID:
			if row.Address != "192.168.1.11" {
				t.Errorf("S2 should see its own address, got %q", row.Address)
			}
		}
	}

	// S1 disconnects; S2 becomes admin.
	if err := h.Disconnect(s1.ID); err != nil {
		t.Fatal(err)
	}
	u = recv(t, ch2)
	if !u.Clients.IsAdmin {
		t.Error("S2 should be admin after S1 leaves")
	}
	// E survives until the sweep.
	if u.Files.TotalFiles != 1 {
		t.Error("E should linger until the reaper runs")
	}

	// Simulated reaper tick removes E and broadcasts the empty list.
	drain(ch2)
	removed := h.Sweep(nil)
	if len(removed) != 1 || removed[0].ID != e.ID {
		t.Fatalf("sweep should remove exactly E, got %v", removed)
	}
	u = recv(t, ch2)
	if u.Files.TotalFiles != 0 {
		t.Errorf("S2 should see an empty file list, got %d", u.Files.TotalFiles)
	}
}

func TestConcurrentMutations(t *testing.T) {
	h := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, ch := h.Connect("", "10.0.0.1")
			drain(ch)
			e, err := h.Publish(s.ID, testEntry("f"))
			if err != nil {
				t.Error(err)
				return
			}
			if err := h.RecordDownload(e.ID); err != nil {
				t.Error(err)
			}
			if err := h.Disconnect(s.ID); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// All owners are gone; a sweep must empty the catalog.
	h.Sweep(nil)
	if _, err := h.Lookup("anything"); !errors.Is(err, catalog.ErrNotFound) {
		t.Error("expected an empty catalog")
	}
}
