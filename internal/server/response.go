package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/me/gosched/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondCreated writes a 201 response with the standard envelope.
func respondCreated(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusCreated, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// engineError maps an error from building or running an engine to an HTTP
// status and API error.
func engineError(err error) (int, *model.APIError) {
	var (
		invalid   *model.InvalidProcessError
		duplicate *model.DuplicateIDError
		cfgErr    *model.ConfigError
		corrupt   *model.HeapCorruptionError
		maxTicks  *model.MaxTicksExceededError
		apiErr    *model.APIError
	)
	switch {
	case errors.As(err, &apiErr):
		return statusFor(apiErr.Code), apiErr
	case errors.As(err, &invalid):
		return http.StatusBadRequest, model.NewValidationError(err.Error(),
			model.FieldError{Field: invalid.Field, Message: invalid.Reason})
	case errors.As(err, &duplicate):
		return http.StatusBadRequest, model.NewValidationError(err.Error(),
			model.FieldError{Field: "id", Message: err.Error()})
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, model.NewValidationError(err.Error(),
			model.FieldError{Field: cfgErr.Field, Message: cfgErr.Reason})
	case errors.As(err, &maxTicks):
		return http.StatusUnprocessableEntity, &model.APIError{Code: model.ErrLimitExceeded, Message: err.Error()}
	case errors.As(err, &corrupt):
		return http.StatusInternalServerError, &model.APIError{Code: model.ErrHeapCorruption, Message: err.Error()}
	default:
		return http.StatusInternalServerError, model.NewInternalError(err.Error())
	}
}

func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrConflict:
		return http.StatusConflict
	case model.ErrLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
