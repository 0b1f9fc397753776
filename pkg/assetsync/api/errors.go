package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/assetsync/pkg/assetsync"
)

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps a service error to an HTTP status and a stable code.
// Not-found is checked first because a missing object is also a blob
// store error.
func statusFor(err error) (int, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case assetsync.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case assetsync.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "too_large"
	case assetsync.IsBlobStoreError(err):
		return http.StatusBadGateway, "blob_store_error"
	case assetsync.IsMetadataIndexError(err):
		return http.StatusServiceUnavailable, "metadata_index_error"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (h *AssetsHandler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		h.logger.Debug(msg, "method", r.Method, "path", r.URL.Path, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(field, reason string) error {
	return &assetsync.ValidationError{Field: field, Reason: reason}
}
