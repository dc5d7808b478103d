package main

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Store       string `json:"store"`
	Archive     string `json:"archive,omitempty"`
	Connections int    `json:"connections"`
}

// handleHealth handles the GET /health endpoint
func (app *application) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "ok",
		Uptime:      time.Since(app.StartTime).Round(time.Second).String(),
		Store:       "ok",
		Connections: app.Hub.Count(),
	}
	status := http.StatusOK

	if err := app.Store.Ping(ctx); err != nil {
		resp.Status, resp.Store = "degraded", err.Error()
		status = http.StatusServiceUnavailable
	}

	if app.Archive != nil {
		resp.Archive = "ok"
		if err := app.Archive.Ping(ctx); err != nil {
			resp.Status, resp.Archive = "degraded", err.Error()
			status = http.StatusServiceUnavailable
		}
	}

	app.writeJSON(w, status, resp)
}
