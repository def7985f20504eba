package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/keystore"
	"github.com/teranos/ctxeng/logger"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to a status and writes it. Server-side failures are
// logged with detail and reported generically.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logger.FromContext(r.Context(), s.logger)

	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		log.Errorw("Request failed",
			logger.FieldPath, r.URL.Path,
			logger.FieldStatus, status,
			logger.FieldError, err,
		)
		if errors.Is(err, keystore.ErrStorageUnavailable) {
			writeError(w, status, errors.UserMessage(err))
			return
		}
		writeError(w, status, "Internal server error")
		return
	}

	log.Debugw("Request rejected",
		logger.FieldPath, r.URL.Path,
		logger.FieldStatus, status,
		logger.FieldError, err,
	)
	writeError(w, status, errors.UserMessage(err))
}

// statusFor classifies err by the sentinel it carries.
func statusFor(err error) int {
	switch {
	case errors.Is(err, keystore.ErrStorageUnavailable):
		return http.StatusInternalServerError
	case errors.IsInvalidRequestError(err):
		return http.StatusBadRequest
	case errors.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.IsConflictError(err):
		return http.StatusConflict
	case errors.IsUpstreamError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.IsServiceUnavailableError(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// readJSON decodes a bounded JSON request body, writing 400 on failure
func readJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// requireMethod checks if the request method matches the expected method
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}
