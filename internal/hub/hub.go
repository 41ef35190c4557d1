// Package hub serializes all registry/catalog mutations behind a single
// lock and fans out per-recipient views to every connected session.
package hub

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/lanshare/lanshare/internal/catalog"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
	"github.com/lanshare/lanshare/internal/session"
	"github.com/lanshare/lanshare/internal/view"
)

// ErrNoConnection is returned when a mutating request names a session id
// that is not currently connected.
var ErrNoConnection = errors.New("client not connected")

// pushBuffer is the per-session channel capacity. A recipient that falls
// further behind misses rounds; the next broadcast resends full state, so
// views self-heal.
const pushBuffer = 64

// Update is one broadcast round's payload for a single recipient.
type Update struct {
	Clients view.ClientListView `json:"clients"`
	Files   view.FileListView   `json:"files"`
}

// Hub owns the registry, the catalog, and the mutation lock. Every state
// change runs mutation plus view computation under the lock; delivery
// happens after release so one slow recipient cannot stall the next
// mutation. Push channels are never closed: removing a session from the
// connection map ends its deliveries, and the transport layer ends the
// stream via its own context.
type Hub struct {
	mu       sync.Mutex
	registry *session.Registry
	catalog  *catalog.Catalog
	conns    map[string]chan Update
}

// delivery pairs a recipient's channel with its personalized update,
// captured under the lock so every recipient observes the same joint
// snapshot.
type delivery struct {
	sessionID string
	ch        chan Update
	update    Update
}

// New creates a hub with an empty registry and catalog.
func New() *Hub {
	return &Hub{
		registry: session.NewRegistry(),
		catalog:  catalog.New(),
		conns:    make(map[string]chan Update),
	}
}

// Connect registers a new session and returns it along with its push
// channel. The connect itself is broadcast, so the new session's first
// update arrives on the returned channel.
func (h *Hub) Connect(displayNameHint, address string) (session.Session, <-chan Update) {
	h.mu.Lock()
	s := h.registry.Connect(displayNameHint, address)
	ch := make(chan Update, pushBuffer)
	h.conns[s.ID] = ch
	count := h.registry.Len()
	deliveries := h.snapshotViews()
	h.mu.Unlock()

	metrics.SetConnectedClients(count)
	logging.Info("client connected",
		zap.String("sid", s.ID),
		zap.String("name", s.DisplayName),
		zap.String("addr", s.Address),
		zap.Bool("admin", s.IsAdmin))

	h.deliver(deliveries)
	return *s, ch
}

// Disconnect removes a session and broadcasts the new state. Unknown ids
// are a no-op reported as session.ErrNotFound.
func (h *Hub) Disconnect(sessionID string) error {
	h.mu.Lock()
	prevAdmin := h.registry.AdminID()
	if err := h.registry.Disconnect(sessionID); err != nil {
		h.mu.Unlock()
		return err
	}
	delete(h.conns, sessionID)
	count := h.registry.Len()
	newAdmin := h.registry.AdminID()
	var newAdminName string
	if newAdmin != "" && newAdmin != prevAdmin {
		if s, err := h.registry.Get(newAdmin); err == nil {
			newAdminName = s.DisplayName
		}
	}
	deliveries := h.snapshotViews()
	h.mu.Unlock()

	metrics.SetConnectedClients(count)
	logging.Info("client disconnected", zap.String("sid", sessionID))
	if newAdminName != "" {
		metrics.RecordAdminHandover()
		logging.Info("new admin assigned",
			zap.String("sid", newAdmin),
			zap.String("name", newAdminName))
	}

	h.deliver(deliveries)
	return nil
}

// Session returns the connected session with the given id, or
// ErrNoConnection.
func (h *Hub) Session(sessionID string) (session.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, err := h.registry.Get(sessionID)
	if err != nil {
		return session.Session{}, ErrNoConnection
	}
	return *s, nil
}

// Publish adds a catalog entry on behalf of a connected session, stamping
// the owner snapshot (name, address) onto the entry, and broadcasts.
func (h *Hub) Publish(sessionID string, e catalog.Entry) (*catalog.Entry, error) {
	h.mu.Lock()
	owner, err := h.registry.Get(sessionID)
	if err != nil {
		h.mu.Unlock()
		return nil, ErrNoConnection
	}
	e.OwnerSessionID = owner.ID
	e.OwnerDisplayName = owner.DisplayName
	e.OwnerAddress = owner.Address
	stored, err := h.catalog.Add(e)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	count := h.catalog.Len()
	deliveries := h.snapshotViews()
	h.mu.Unlock()

	metrics.SetCatalogEntries(count)
	logging.Info("entry published",
		zap.String("id", stored.ID),
		zap.String("name", stored.DisplayName),
		zap.Int64("size", stored.SizeBytes),
		zap.Bool("folder", stored.IsFolder),
		zap.String("owner", stored.OwnerDisplayName))

	h.deliver(deliveries)
	return stored, nil
}

// Remove deletes a catalog entry if the requester owns it or is the
// current admin, broadcasts, and returns the removed entry so the caller
// can delete its backing bytes.
func (h *Hub) Remove(entryID, requesterSessionID string) (*catalog.Entry, error) {
	h.mu.Lock()
	if _, err := h.registry.Get(requesterSessionID); err != nil {
		h.mu.Unlock()
		return nil, ErrNoConnection
	}
	isAdmin := requesterSessionID == h.registry.AdminID()
	removed, err := h.catalog.Remove(entryID, requesterSessionID, isAdmin)
	if err != nil {
		h.mu.Unlock()
		return nil, err
	}
	count := h.catalog.Len()
	deliveries := h.snapshotViews()
	h.mu.Unlock()

	metrics.SetCatalogEntries(count)
	logging.Info("entry removed",
		zap.String("id", removed.ID),
		zap.String("name", removed.DisplayName),
		zap.String("requester", requesterSessionID),
		zap.Bool("by_admin", isAdmin))

	h.deliver(deliveries)
	return removed, nil
}

// Lookup returns the catalog entry with the given id.
func (h *Hub) Lookup(entryID string) (*catalog.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.catalog.Get(entryID)
}

// RecordDownload bumps an entry's download counter and broadcasts the
// updated count.
func (h *Hub) RecordDownload(entryID string) error {
	h.mu.Lock()
	if err := h.catalog.IncrementDownload(entryID); err != nil {
		h.mu.Unlock()
		return err
	}
	deliveries := h.snapshotViews()
	h.mu.Unlock()

	h.deliver(deliveries)
	return nil
}

// Sweep removes every catalog entry whose owner has disconnected. The
// cleanup callback runs once per removed entry (for backing-storage
// deletion) before the broadcast, and a broadcast happens only when at
// least one entry was removed.
func (h *Hub) Sweep(cleanup func(catalog.Entry)) []catalog.Entry {
	h.mu.Lock()
	removed := h.catalog.SweepOrphans(h.registry.LiveIDs())
	count := h.catalog.Len()
	var deliveries []delivery
	if len(removed) > 0 {
		deliveries = h.snapshotViews()
	}
	h.mu.Unlock()

	metrics.RecordReaperSweep(len(removed))
	if len(removed) == 0 {
		return nil
	}
	metrics.SetCatalogEntries(count)

	if cleanup != nil {
		for _, e := range removed {
			cleanup(e)
		}
	}

	h.deliver(deliveries)
	return removed
}

// snapshotViews computes one personalized update per connected session.
// Caller must hold the mutation lock.
func (h *Hub) snapshotViews() []delivery {
	sessions := h.registry.Snapshot()
	entries := h.catalog.Snapshot()
	adminID := h.registry.AdminID()

	deliveries := make([]delivery, 0, len(h.conns))
	for id, ch := range h.conns {
		clients, files := view.Build(sessions, entries, id, adminID)
		deliveries = append(deliveries, delivery{
			sessionID: id,
			ch:        ch,
			update:    Update{Clients: clients, Files: files},
		})
	}
	return deliveries
}

// deliver pushes updates outside the lock. Sends are non-blocking: a full
// channel means the recipient is behind and this round is skipped for it,
// never stalling the other recipients.
func (h *Hub) deliver(deliveries []delivery) {
	if len(deliveries) == 0 {
		return
	}
	dropped := 0
	for _, d := range deliveries {
		select {
		case d.ch <- d.update:
		default:
			dropped++
			logging.Warn("push channel full, skipping delivery",
				zap.String("sid", d.sessionID))
		}
	}
	metrics.RecordBroadcast(dropped)
}
