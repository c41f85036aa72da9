package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/gosched/internal/scheduler"
	"github.com/me/gosched/pkg/model"
)

const (
	minStreamInterval = time.Millisecond
	maxStreamInterval = time.Minute
)

// handleSSESession streams a session as Server-Sent Events: an init event
// with the session view, one tick event per scheduling decision, then a
// complete event with the result. Failures end the stream with an error
// event.
// GET /api/v1/sse/sessions/{id}?interval=250ms
func (s *Server) handleSSESession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqID := RequestIDFromContext(r.Context())

	interval := scheduler.DefaultPace
	if v := r.URL.Query().Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < minStreamInterval || d > maxStreamInterval {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid interval", model.FieldError{
					Field:   "interval",
					Message: fmt.Sprintf("must be a duration between %s and %s", minStreamInterval, maxStreamInterval),
				}))
			return
		}
		interval = d
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("session", id))
		return
	}

	// Set headers for SSE.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	detach := sess.attach()
	defer detach()

	view := sess.View()
	if err := sendSSEEvent(w, flusher, "init", view); err != nil {
		s.logger.Debug("sse client disconnected", "session_id", id, "error", err)
		return
	}

	if !view.Snapshot.State.IsTerminal() {
		pacer := scheduler.NewPacer(sess, interval, s.logger)
		err := pacer.Start(r.Context(), func(snap model.Snapshot) error {
			return sendSSEEvent(w, flusher, "tick", snap)
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || r.Context().Err() != nil {
				s.logger.Debug("sse client disconnected", "session_id", id)
				return
			}
			_, apiErr := engineError(err)
			if sendErr := sendSSEEvent(w, flusher, "error", apiErr); sendErr != nil {
				s.logger.Debug("sse client disconnected", "session_id", id, "error", sendErr)
			}
			return
		}
	}

	if err := sendSSEEvent(w, flusher, "complete", sess.Result()); err != nil {
		s.logger.Debug("sse client disconnected", "session_id", id, "error", err)
	}
}

// sendSSEEvent writes a single SSE event and flushes.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
