package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/server"
)

const maxBodyBytes = 1 << 16

func (app *application) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		app.Logger.Warn("Failed to write response", zap.Error(err))
	}
}

// readJSON decodes a single JSON object from the body. Every failure wraps
// server.ErrMalformed.
func (app *application) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: body must not be empty", server.ErrMalformed)
		}
		return fmt.Errorf("%w: %v", server.ErrMalformed, err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must only contain a single JSON value", server.ErrMalformed)
	}

	return nil
}

func (app *application) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status, body := server.NewErrorBody(err)
	if status >= http.StatusInternalServerError {
		app.Logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}

	app.writeJSON(w, status, body)
}

func (app *application) unauthorized(w http.ResponseWriter, message string) {
	app.writeJSON(w, http.StatusUnauthorized, server.ErrorBody{Error: "UNAUTHORIZED", Message: message})
}

func param(r *http.Request, name string) string {
	return httprouter.ParamsFromContext(r.Context()).ByName(name)
}
