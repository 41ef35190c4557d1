// Package catalog manages metadata for shared files and zipped folders.
// It tracks metadata only; deleting backing bytes is the caller's job,
// once per removed entry.
package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for operations on an unknown entry id.
	ErrNotFound = errors.New("entry not found")

	// ErrPermissionDenied is returned when a remove request comes from a
	// session that is neither the entry's owner nor the admin.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is returned when an entry is missing required fields.
	ErrValidation = errors.New("invalid entry")
)

// Entry is the metadata record for one shared file or archived folder.
// OwnerSessionID is a weak reference: it may point at a session that has
// since disconnected, which is what the reaper sweeps on. OwnerDisplayName
// and OwnerAddress are denormalized at publish time so the entry stays
// descriptive until then.
type Entry struct {
	ID               string    `json:"id"`
	DisplayName      string    `json:"name"`
	StorageKey       string    `json:"-"`
	SizeBytes        int64     `json:"size"`
	UploadedAt       time.Time `json:"upload_time"`
	OwnerSessionID   string    `json:"-"`
	OwnerDisplayName string    `json:"client_name"`
	OwnerAddress     string    `json:"-"`
	IsFolder         bool      `json:"is_folder"`
	DownloadCount    int64     `json:"download_count"`
}

// Catalog is the authoritative map of shared entries.
//
// Like the session registry, it carries no lock of its own; the hub's
// mutation lock serializes all access.
type Catalog struct {
	entries map[string]*Entry
	order   []string // insertion order
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		entries: make(map[string]*Entry),
	}
}

// Add inserts an entry with a fresh id and returns the stored copy.
// DisplayName, StorageKey, and OwnerSessionID are required.
func (c *Catalog) Add(e Entry) (*Entry, error) {
	if e.DisplayName == "" || e.StorageKey == "" || e.OwnerSessionID == "" {
		return nil, ErrValidation
	}
	e.ID = uuid.NewString()
	if e.UploadedAt.IsZero() {
		e.UploadedAt = time.Now()
	}
	c.entries[e.ID] = &e
	c.order = append(c.order, e.ID)
	stored := e
	return &stored, nil
}

// Get returns a copy of the entry with the given id.
func (c *Catalog) Get(entryID string) (*Entry, error) {
	e, ok := c.entries[entryID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// Remove deletes an entry if the requester owns it or is admin, and
// returns the removed entry so the caller can clean up its backing bytes.
func (c *Catalog) Remove(entryID, requesterSessionID string, isRequesterAdmin bool) (*Entry, error) {
	e, ok := c.entries[entryID]
	if !ok {
		return nil, ErrNotFound
	}
	if requesterSessionID != e.OwnerSessionID && !isRequesterAdmin {
		return nil, ErrPermissionDenied
	}
	c.delete(entryID)
	cp := *e
	return &cp, nil
}

// IncrementDownload bumps the download counter for an entry.
func (c *Catalog) IncrementDownload(entryID string) error {
	e, ok := c.entries[entryID]
	if !ok {
		return ErrNotFound
	}
	e.DownloadCount++
	return nil
}

// SweepOrphans removes and returns every entry whose owner is not in the
// live set. This is the only bulk-removal path.
func (c *Catalog) SweepOrphans(liveSessionIDs map[string]bool) []Entry {
	var removed []Entry
	for _, id := range append([]string(nil), c.order...) {
		e := c.entries[id]
		if !liveSessionIDs[e.OwnerSessionID] {
			removed = append(removed, *e)
			c.delete(id)
		}
	}
	return removed
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Snapshot returns copies of all entries in insertion order.
func (c *Catalog) Snapshot() []Entry {
	out := make([]Entry, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.entries[id])
	}
	return out
}

func (c *Catalog) delete(entryID string) {
	delete(c.entries, entryID)
	for i, id := range c.order {
		if id == entryID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
