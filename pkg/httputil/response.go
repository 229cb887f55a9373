// Package httputil provides HTTP handler utilities for consistent error
// handling, JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/caregrid/caregrid/pkg/identity"
	"github.com/caregrid/caregrid/pkg/rbac"
	"github.com/caregrid/caregrid/pkg/support"
	"github.com/caregrid/caregrid/pkg/tenancy"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, status int, err error) {
	WriteErrorMessage(w, status, err.Error())
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteCreated writes a successful creation response (201 Created)
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteNoContent writes a successful response with no content (204)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusConflict, message)
}

// WriteInternalError writes an internal server error response (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err)
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteErrorMessage(w, http.StatusServiceUnavailable, message)
}

// WriteAccessDenied writes the deliberately uninformative denial used for
// permission failures. Callers never learn which permission they lacked.
func WriteAccessDenied(w http.ResponseWriter) {
	WriteForbidden(w, "not authorized")
}

// WriteDomainError maps sentinel errors from the domain packages onto HTTP
// responses. Permission denials stay generic; a suspended tenant is the one
// denial that explains itself, since the caller needs to contact support
// rather than request access.
func WriteDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidToken), errors.Is(err, identity.ErrNoActor):
		WriteUnauthorized(w, "authentication required")
	case errors.Is(err, tenancy.ErrTenantSuspended):
		WriteForbidden(w, "tenant is suspended")
	case errors.Is(err, tenancy.ErrTenantInactive):
		WriteAccessDenied(w)
	case errors.Is(err, tenancy.ErrTenantNotFound),
		errors.Is(err, rbac.ErrNotFound),
		errors.Is(err, support.ErrGrantNotFound):
		WriteNotFound(w, err.Error())
	case errors.Is(err, tenancy.ErrNoTenantContext):
		WriteBadRequest(w, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		WriteConflict(w, err.Error())
	case errors.Is(err, rbac.ErrInvalidScope),
		errors.Is(err, rbac.ErrMissingScopeID),
		errors.Is(err, rbac.ErrUnexpectedScopeID),
		errors.Is(err, rbac.ErrSystemRole),
		errors.Is(err, support.ErrInvalidAccessLevel),
		errors.Is(err, support.ErrDurationTooLong),
		errors.Is(err, support.ErrInvalidDuration),
		errors.Is(err, support.ErrEmptyReason):
		WriteBadRequest(w, err.Error())
	default:
		WriteInternalError(w, errors.New("internal server error"))
	}
}
