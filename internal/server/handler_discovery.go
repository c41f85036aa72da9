package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:        "gosched API",
		Version:     "v1",
		Description: "Preemptive priority scheduling simulator with aging",
		Endpoints: []endpointInfo{
			{"/api/v1/simulate", []string{"POST"}, "Run a workload to completion without archiving it"},
			{"/api/v1/runs", []string{"GET", "POST"}, "Archived runs. POST runs a workload and archives the outcome"},
			{"/api/v1/runs/{id}", []string{"GET", "DELETE"}, "Single archived run"},
			{"/api/v1/runs/{id}/trace", []string{"GET"}, "Execution trace and timeline of an archived run"},
			{"/api/v1/sessions", []string{"POST"}, "Open an interactive step-by-step session"},
			{"/api/v1/sessions/{id}", []string{"GET", "DELETE"}, "Session state, processes and statistics"},
			{"/api/v1/sessions/{id}/tick", []string{"POST"}, "Advance a session by ?steps=N scheduling decisions"},
			{"/api/v1/sse/sessions/{id}", []string{"GET"}, "Stream session ticks as Server-Sent Events, paced by ?interval="},
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
		},
	})
}
