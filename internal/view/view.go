// Package view builds per-recipient, role-filtered projections of registry
// and catalog state. Build is a pure function: no side effects, identical
// inputs yield identical output.
package view

import (
	"time"

	"github.com/lanshare/lanshare/internal/catalog"
	"github.com/lanshare/lanshare/internal/session"
)

// Redacted replaces another session's address for non-admin recipients.
const Redacted = "Hidden"

// ClientRow is one session as a given recipient sees it.
type ClientRow struct {
	SessionID   string    `json:"sid"`
	DisplayName string    `json:"name"`
	Address     string    `json:"ip"`
	ConnectedAt time.Time `json:"connected_at"`
	IsAdmin     bool      `json:"is_admin"`
}

// ClientListView is the roster pushed to one recipient.
type ClientListView struct {
	Clients        []ClientRow `json:"clients"`
	TotalClients   int         `json:"total_clients"`
	IsAdmin        bool        `json:"is_admin"`
	AdminSessionID string      `json:"admin_sid"`
}

// FileRow is one catalog entry as a given recipient sees it. The owner's
// address is never part of the file list, regardless of role.
type FileRow struct {
	ID            string    `json:"id"`
	DisplayName   string    `json:"name"`
	SizeBytes     int64     `json:"size"`
	UploadedAt    time.Time `json:"upload_time"`
	OwnerName     string    `json:"client_name"`
	IsFolder      bool      `json:"is_folder"`
	DownloadCount int64     `json:"download_count"`
	OwnedByMe     bool      `json:"owned_by_me"`
}

// FileListView is the shared-file list pushed to one recipient.
type FileListView struct {
	Files      []FileRow `json:"files"`
	TotalFiles int       `json:"total_files"`
}

// Build computes the recipient's view of the given snapshots. A session's
// real address is shown only to the admin and to the session itself;
// everyone else sees the redaction marker.
func Build(sessions []session.Session, entries []catalog.Entry, recipientID, adminID string) (ClientListView, FileListView) {
	isAdmin := recipientID == adminID

	cv := ClientListView{
		Clients:        make([]ClientRow, 0, len(sessions)),
		TotalClients:   len(sessions),
		IsAdmin:        isAdmin,
		AdminSessionID: adminID,
	}
	for _, s := range sessions {
		row := ClientRow{
			SessionID:   s.ID,
			DisplayName: s.DisplayName,
			Address:     s.Address,
			ConnectedAt: s.ConnectedAt,
			IsAdmin:     s.ID == adminID,
		}
		if !isAdmin && s.ID != recipientID {
			row.Address = Redacted
		}
		cv.Clients = append(cv.Clients, row)
	}

	fv := FileListView{
		Files:      make([]FileRow, 0, len(entries)),
		TotalFiles: len(entries),
	}
	for _, e := range entries {
		fv.Files = append(fv.Files, FileRow{
			ID:            e.ID,
			DisplayName:   e.DisplayName,
			SizeBytes:     e.SizeBytes,
			UploadedAt:    e.UploadedAt,
			OwnerName:     e.OwnerDisplayName,
			IsFolder:      e.IsFolder,
			DownloadCount: e.DownloadCount,
			OwnedByMe:     e.OwnerSessionID == recipientID,
		})
	}

	return cv, fv
}
