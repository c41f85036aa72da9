package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/me/gosched/internal/store"
	"github.com/me/gosched/pkg/model"
)

// storeAvailable writes a 503 and returns false when no archive is wired.
func (s *Server) storeAvailable(w http.ResponseWriter, reqID string) bool {
	if s.store != nil {
		return true
	}
	respondJSON(w, http.StatusServiceUnavailable, reqID, nil, nil,
		&model.APIError{Code: model.ErrInternal, Message: "run archive is not configured"})
	return false
}

// handleCreateRun runs a workload and archives the outcome. Aborted runs
// are archived as ABORTED with their partial result; heap corruption is
// archived as FAILED and answered with 500.
// POST /api/v1/runs
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.storeAvailable(w, reqID) {
		return
	}

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

	name := wl.Name
	if name == "" {
		name = "workload"
	}
	run := &model.Run{Name: name, State: model.RunStateCompleted, Workload: *wl}

	res, runErr := eng.Run(r.Context())
	run.Result = res
	var (
		maxTicks *model.MaxTicksExceededError
		corrupt  *model.HeapCorruptionError
	)
	switch {
	case runErr == nil:
	case errors.As(runErr, &maxTicks):
		run.State = model.RunStateAborted
		run.Error = runErr.Error()
	case errors.As(runErr, &corrupt):
		run.State = model.RunStateFailed
		run.Error = runErr.Error()
	default:
		// Cancelled request: nothing worth archiving.
		status, apiErr := engineError(runErr)
		respondError(w, reqID, status, apiErr)
		return
	}

	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.logger.Error("archive run", "workload", name, "error", err)
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	s.logger.Info("run archived", "run_id", run.ID, "state", run.State)

	if run.State == model.RunStateFailed {
		_, apiErr := engineError(runErr)
		respondJSON(w, http.StatusInternalServerError, reqID, run, nil, apiErr)
		return
	}
	respondCreated(w, reqID, run)
}

// handleListRuns lists archived runs with pagination.
// GET /api/v1/runs?state=COMPLETED&name=mixed&limit=20&offset=0
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.storeAvailable(w, reqID) {
		return
	}

	opts := model.DefaultListOptions()
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid limit", model.FieldError{Field: "limit", Message: err.Error()}))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid offset", model.FieldError{Field: "offset", Message: err.Error()}))
			return
		}
		opts.Offset = n
	}
	if v := q.Get("state"); v != "" {
		switch model.RunState(v) {
		case model.RunStateCompleted, model.RunStateAborted, model.RunStateFailed:
			opts.State = v
		default:
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("invalid state", model.FieldError{Field: "state", Message: "must be COMPLETED, ABORTED or FAILED"}))
			return
		}
	}
	opts.Name = q.Get("name")
	opts.Clamp()

	runs, total, err := s.store.ListRuns(r.Context(), opts)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondList(w, reqID, runs, model.NewPagination(opts, len(runs), total))
}

// handleGetRun returns a single archived run.
// GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run, ok := s.lookupRun(w, r, reqID)
	if !ok {
		return
	}
	respondOK(w, reqID, run)
}

type runTraceResponse struct {
	ID       string             `json:"id"`
	State    model.RunState     `json:"state"`
	Trace    []model.TraceEvent `json:"trace"`
	Timeline []model.Slice      `json:"timeline"`
}

// handleGetRunTrace returns only the trace and timeline of a run.
// GET /api/v1/runs/{id}/trace
func (s *Server) handleGetRunTrace(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	run, ok := s.lookupRun(w, r, reqID)
	if !ok {
		return
	}

	resp := runTraceResponse{
		ID:       run.ID,
		State:    run.State,
		Trace:    []model.TraceEvent{},
		Timeline: []model.Slice{},
	}
	if run.Result != nil {
		resp.Trace = append(resp.Trace, run.Result.Trace...)
		resp.Timeline = append(resp.Timeline, run.Result.Timeline...)
	}
	respondOK(w, reqID, resp)
}

// handleDeleteRun removes an archived run.
// DELETE /api/v1/runs/{id}
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	if !s.storeAvailable(w, reqID) {
		return
	}
	id := chi.URLParam(r, "id")

	if err := s.store.DeleteRun(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
			return
		}
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}
	respondOK(w, reqID, map[string]any{"id": id, "deleted": true})
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request, reqID string) (*model.Run, bool) {
	if !s.storeAvailable(w, reqID) {
		return nil, false
	}
	id := chi.URLParam(r, "id")

	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return nil, false
	}
	if run == nil {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("run", id))
		return nil, false
	}
	return run, true
}
