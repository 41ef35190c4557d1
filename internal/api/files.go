package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lanshare/lanshare/internal/archive"
	"github.com/lanshare/lanshare/internal/catalog"
	"github.com/lanshare/lanshare/internal/logging"
	"github.com/lanshare/lanshare/internal/metrics"
)

// allowedExtensions mirrors the upload allow-list: common document, image,
// audio, video, and archive types.
var allowedExtensions = map[string]bool{
	".txt": true, ".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".zip": true, ".mp3": true, ".mp4": true, ".doc": true,
	".docx": true, ".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
}

func allowedFile(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// sanitizeFilename strips directory components and replaces anything
// outside a conservative character set.
func sanitizeFilename(name string) string {
	name = filepath.Base(filepath.ToSlash(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimSpace(b.String())
}

// storageKey builds a collision-proof key for an upload: a random uuid
// prefix keeps identical names from colliding on disk.
func storageKey(displayName string) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + displayName
}

// ─── Upload ─────────────────────────────────────────────────────────────────

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	sid := r.FormValue("client_sid")
	if _, err := s.hub.Session(sid); err != nil {
		s.sendHubError(w, err)
		return
	}

	parts := r.MultipartForm.File["file"]
	if len(parts) == 0 {
		s.sendError(w, http.StatusBadRequest, "No file part")
		return
	}

	uploaded := make([]catalog.Entry, 0, len(parts))
	for _, fh := range parts {
		if fh.Filename == "" || !allowedFile(fh.Filename) {
			continue
		}
		name := sanitizeFilename(fh.Filename)
		key := storageKey(name)

		src, err := fh.Open()
		if err != nil {
			metrics.RecordUpload(0, false)
			s.sendError(w, http.StatusInternalServerError, "failed to read upload: "+err.Error())
			return
		}
		err = s.backend.PutObject(r.Context(), key, src, fh.Size)
		src.Close()
		if err != nil {
			metrics.RecordUpload(0, false)
			s.sendError(w, http.StatusInternalServerError, "failed to store upload: "+err.Error())
			return
		}

		entry, err := s.hub.Publish(sid, catalog.Entry{
			DisplayName: name,
			StorageKey:  key,
			SizeBytes:   fh.Size,
		})
		if err != nil {
			// Don't leak the bytes we just wrote.
			if delErr := s.backend.DeleteObject(r.Context(), key); delErr != nil {
				logging.Warn("failed to remove orphaned upload",
					zap.String("key", key), zap.Error(delErr))
			}
			metrics.RecordUpload(0, false)
			s.sendHubError(w, err)
			return
		}
		metrics.RecordUpload(fh.Size, true)
		uploaded = append(uploaded, *entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Files uploaded successfully",
		"files":   uploaded,
	})
}

// ─── Download ───────────────────────────────────────────────────────────────

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.hub.Lookup(id)
	if err != nil {
		s.sendHubError(w, err)
		return
	}

	reader, size, err := s.backend.GetObject(r.Context(), entry.StorageKey)
	if err != nil {
		metrics.RecordDownload(0, false)
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer reader.Close()

	filename := entry.DisplayName
	if entry.IsFolder && !strings.HasSuffix(filename, ".zip") {
		filename += ".zip"
	}

	ct := mime.TypeByExtension(filepath.Ext(filename))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := io.Copy(w, reader)
	metrics.RecordDownload(n, err == nil)
	if err != nil {
		logging.Warn("download transfer error",
			zap.String("id", id), zap.Error(err))
		return
	}

	if err := s.hub.RecordDownload(id); err != nil {
		// Entry removed mid-transfer; the bytes still went out.
		logging.Debug("download count not recorded", zap.String("id", id))
	}
}

// ─── Share folder ───────────────────────────────────────────────────────────

func (s *Server) handleShareFolder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientSID  string `json:"client_sid"`
		FolderPath string `json:"folder_path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.hub.Session(req.ClientSID); err != nil {
		s.sendHubError(w, err)
		return
	}

	info, err := os.Stat(req.FolderPath)
	if err != nil || !info.IsDir() {
		s.sendError(w, http.StatusBadRequest, "Invalid folder path")
		return
	}

	folderName := sanitizeFilename(filepath.Base(req.FolderPath))
	tmp, size, err := archive.ZipDirToTemp(req.FolderPath)
	if err != nil {
		s.sendError(w, http.StatusInternalServerError, "failed to archive folder: "+err.Error())
		return
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	key := storageKey(folderName + ".zip")
	if err := s.backend.PutObject(r.Context(), key, tmp, size); err != nil {
		metrics.RecordUpload(0, false)
		s.sendError(w, http.StatusInternalServerError, "failed to store archive: "+err.Error())
		return
	}

	entry, err := s.hub.Publish(req.ClientSID, catalog.Entry{
		DisplayName: folderName,
		StorageKey:  key,
		SizeBytes:   size,
		IsFolder:    true,
	})
	if err != nil {
		if delErr := s.backend.DeleteObject(r.Context(), key); delErr != nil {
			logging.Warn("failed to remove orphaned archive",
				zap.String("key", key), zap.Error(delErr))
		}
		metrics.RecordUpload(0, false)
		s.sendHubError(w, err)
		return
	}
	metrics.RecordUpload(size, true)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Folder shared successfully",
		"file":    entry,
	})
}

// ─── Remove ─────────────────────────────────────────────────────────────────

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req struct {
		ClientSID string `json:"client_sid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	removed, err := s.hub.Remove(id, req.ClientSID)
	if err != nil {
		s.sendHubError(w, err)
		return
	}

	// Metadata is authoritative; a failed byte deletion is logged, not
	// surfaced.
	if err := s.backend.DeleteObject(r.Context(), removed.StorageKey); err != nil {
		logging.Warn("failed to delete removed object",
			zap.String("key", removed.StorageKey), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "File removed successfully"})
}
