package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/me/gosched/internal/scheduler"
	"github.com/me/gosched/internal/workload"
	"github.com/me/gosched/pkg/model"
)

// maxWorkloadBytes bounds the size of a submitted workload document.
const maxWorkloadBytes = 4 << 20

// readWorkload decodes the request body into a workload, applies the
// server's simulation defaults and validates it. The syntax comes from
// ?format= or else the Content-Type; JSON is the default. ?name= names a
// workload that does not name itself.
func (s *Server) readWorkload(r *http.Request) (*model.Workload, *model.APIError) {
	format, err := requestFormat(r)
	if err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxWorkloadBytes+1))
	if err != nil {
		return nil, model.NewValidationError("read body: " + err.Error())
	}
	if len(data) > maxWorkloadBytes {
		return nil, model.NewValidationError(fmt.Sprintf("workload exceeds %d bytes", maxWorkloadBytes))
	}

	w, err := s.parser.Parse(data, format)
	if err != nil {
		return nil, model.NewValidationError("invalid workload: " + err.Error())
	}
	if w.Name == "" {
		w.Name = r.URL.Query().Get("name")
	}
	s.config.Simulation.Apply(w)

	if apiErr := s.validator.Validate(w); apiErr != nil {
		return nil, apiErr
	}
	return w, nil
}

func requestFormat(r *http.Request) (workload.Format, error) {
	if f := r.URL.Query().Get("format"); f != "" {
		switch format := workload.Format(f); format {
		case workload.FormatJSON, workload.FormatYAML, workload.FormatHCL:
			return format, nil
		default:
			return "", fmt.Errorf("unsupported format %q (want json, yaml or hcl)", f)
		}
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return workload.FormatJSON, nil
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("invalid Content-Type %q", ct)
	}
	switch mt {
	case "application/json":
		return workload.FormatJSON, nil
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return workload.FormatYAML, nil
	case "application/hcl", "text/hcl", "text/plain":
		return workload.FormatHCL, nil
	default:
		return "", fmt.Errorf("unsupported Content-Type %q", mt)
	}
}

// newEngine builds an engine for a validated workload.
func (s *Server) newEngine(w *model.Workload) (*scheduler.Engine, error) {
	cfg := scheduler.ConfigFromWorkload(w)
	cfg.VerifyHeap = s.config.Simulation.VerifyHeap
	return scheduler.New(w.Processes, cfg, s.logger.With("workload", w.Name))
}

// handleSimulate runs a workload to completion and returns the result
// without archiving it. An aborted run answers 422 with the partial result.
// POST /api/v1/simulate
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
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

	res, err := eng.Run(r.Context())
	if err != nil {
		var maxTicks *model.MaxTicksExceededError
		if errors.As(err, &maxTicks) {
			_, apiErr := engineError(err)
			respondJSON(w, http.StatusUnprocessableEntity, reqID, res, nil, apiErr)
			return
		}
		s.logger.Error("simulation failed", "workload", wl.Name, "error", err)
		status, apiErr := engineError(err)
		respondError(w, reqID, status, apiErr)
		return
	}

	respondOK(w, reqID, res)
}
