package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// handleEvents is the session transport: an SSE stream whose lifetime is
// the session's lifetime. Opening the stream connects the client (peer
// address captured here, optional ?name= display-name hint); the stream
// ending disconnects it. The first event tells the client its assigned
// session id; every broadcast round arrives as a "clients" and a "files"
// event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sess, ch := s.hub.Connect(r.URL.Query().Get("name"), peerAddress(r))
	defer s.hub.Disconnect(sess.ID)

	if err := writeEvent(w, flusher, "session", map[string]interface{}{
		"sid":      sess.ID,
		"name":     sess.DisplayName,
		"ip":       sess.Address,
		"is_admin": sess.IsAdmin,
	}); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-ch:
			if err := writeEvent(w, flusher, "clients", u.Clients); err != nil {
				return
			}
			if err := writeEvent(w, flusher, "files", u.Files); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
