package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	apperrors "github.com/usdt-market/internal/errors"
	"github.com/usdt-market/internal/logging"
	"github.com/usdt-market/internal/types"
)

// maxBodyBytes caps JSON request bodies
const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError answers with an error body built from its parts
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	writeError(w, statusCode, &types.ServiceError{Code: code, Message: message, Details: details})
}

func writeError(w http.ResponseWriter, statusCode int, body *types.ServiceError) {
	respondJSON(w, statusCode, ErrorResponse{Error: *body})
}

// respondServiceError maps a service error to its status and body. Server
// side failures are logged with their cause and answered without it.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	catErr := apperrors.Categorize(err)

	logger := logging.FromContext(r.Context()).WithError(err).WithField("code", catErr.Code)
	if catErr.StatusCode >= 500 {
		logger.Error("Request failed")
	} else {
		logger.Debug("Request rejected")
	}

	writeError(w, catErr.StatusCode, catErr.ToServiceError())
}

// respondJSON writes data with the given status. A nil data writes no body.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

// parseJSONBody decodes a size-capped body and rejects unknown fields
func parseJSONBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// respondBadBody answers a body that failed to decode
func respondBadBody(w http.ResponseWriter, err error) {
	respondError(w, http.StatusBadRequest, apperrors.CodeInvalidParameter, "Invalid request body", map[string]interface{}{
		"reason": err.Error(),
	})
}

// pathID reads a positive integer path variable
func pathID(r *http.Request, name string) (int64, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewInvalidParameterError(name, fmt.Sprintf("%q is not a valid id", raw))
	}
	return id, nil
}

// Auth error codes
const (
	ErrCodeMissingToken      = "MISSING_TOKEN"
	ErrCodeInvalidAuthHeader = "INVALID_AUTH_HEADER"
	ErrCodeInvalidToken      = "INVALID_TOKEN"
)
