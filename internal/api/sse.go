package api

import (
	"fmt"
	"net/http"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/charliek/catview/internal/domain"
	"github.com/charliek/catview/internal/logs"
)

// StreamEvents handles GET /api/v1/events (SSE). Each event carries one
// outbound envelope as data and its hub sequence as id. Stored entries are
// replayed first when replay is set or the client resumes with Last-Event-ID.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "streaming not supported",
			Code:  domain.ErrCodeStreamingNotSupported,
		})
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: err.Error(),
			Code:  domain.ErrCodeInvalidRequest,
		})
		return
	}

	replay := 0
	if s := r.URL.Query().Get("replay"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			replay = n
		}
	}
	if id := r.Header.Get("Last-Event-ID"); id != "" {
		if after, err := strconv.ParseUint(id, 10, 64); err == nil {
			filter.After = after
			replay = h.backend.Hub().Stats().BufferSize
		}
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	hub := h.backend.Hub()
	backlog, subID, ch := hub.SubscribeWithReplay(filter, replay)
	defer hub.Unsubscribe(subID)

	// Initial comment establishes the connection
	fmt.Fprintf(w, ": connected\n\n")
	for _, entry := range backlog {
		if err := writeEvent(w, entry); err != nil {
			return
		}
	}
	flusher.Flush()

	// The subscription drops entries for clients that cannot keep up;
	// write errors and disconnects end the handler.
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, entry); err != nil {
				log.WithError(err).Debug("SSE write error (client likely disconnected)")
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, entry logs.Entry) error {
	data, err := domain.EncodeMessage(entry.Message)
	if err != nil {
		log.WithError(err).WithField("seq", entry.Seq).Warn("encoding event")
		return nil
	}
	_, err = fmt.Fprintf(w, "id: %d\ndata: %s\n\n", entry.Seq, data)
	return err
}
