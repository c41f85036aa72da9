package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Store     string `json:"store"`
	Sessions  int    `json:"sessions"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	storeStatus := "sqlite"
	if s.store == nil {
		storeStatus = "disabled"
	}
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Store:     storeStatus,
		Sessions:  s.sessions.Len(),
	})
}
