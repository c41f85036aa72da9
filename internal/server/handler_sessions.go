package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/gosched/pkg/model"
)

// maxStepsPerRequest bounds ?steps= on the tick endpoint.
const maxStepsPerRequest = 1000

// handleCreateSession opens an interactive session for a workload.
// POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	wl, apiErr := s.readWorkload(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	eng, err := s.newEngine(wl)
	if err != nil {
		status, apiErr := engineError(err)
		respondError(w, reqID, status, apiErr)
		return
	}

	sess, err := s.sessions.Create(wl.Name, eng)
	if err != nil {
		var limit *SessionLimitError
		if errors.As(err, &limit) {
			respondError(w, reqID, http.StatusTooManyRequests,
				&model.APIError{Code: model.ErrLimitExceeded, Message: err.Error()})
			return
		}
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	s.logger.Info("session opened", "session_id", sess.ID, "processes", len(wl.Processes))
	respondCreated(w, reqID, sess.View())
}

// handleGetSession returns the current state of a session.
// GET /api/v1/sessions/{id}
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	sess, ok := s.sessions.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("session", id))
		return
	}
	respondOK(w, reqID, sess.View())
}

// handleDeleteSession closes a session.
// DELETE /api/v1/sessions/{id}
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if !s.sessions.Delete(id) {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("session", id))
		return
	}
	respondOK(w, reqID, map[string]any{"id": id, "deleted": true})
}

type tickResponse struct {
	Snapshots []model.Snapshot  `json:"snapshots"`
	State     model.EngineState `json:"state"`
	Result    *model.Result     `json:"result,omitempty"`
}

// handleTickSession advances a session by up to ?steps= decisions, stopping
// early once the simulation completes.
// POST /api/v1/sessions/{id}/tick?steps=1
func (s *Server) handleTickSession(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	steps := 1
	if v := r.URL.Query().Get("steps"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxStepsPerRequest {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid steps", model.FieldError{
					Field:   "steps",
					Message: "must be an integer between 1 and " + strconv.Itoa(maxStepsPerRequest),
				}))
			return
		}
		steps = n
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("session", id))
		return
	}

	resp := tickResponse{Snapshots: make([]model.Snapshot, 0, steps)}
	for i := 0; i < steps; i++ {
		snap, err := sess.Tick(r.Context())
		resp.State = snap.State
		if err != nil {
			status, apiErr := engineError(err)
			if status >= http.StatusInternalServerError {
				s.logger.Error("session tick failed", "session_id", id, "error", err)
			}
			resp.Snapshots = append(resp.Snapshots, snap)
			respondJSON(w, status, reqID, resp, nil, apiErr)
			return
		}
		resp.Snapshots = append(resp.Snapshots, snap)
		if snap.State.IsTerminal() {
			break
		}
	}
	if resp.State.IsTerminal() {
		resp.Result = sess.Result()
	}
	respondOK(w, reqID, resp)
}
