package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fleetforge/coordinator/internal/types"
)

func limitRequestSize(r *http.Request) {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxPayloadSize)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeError maps a *types.Error's kind onto the status codes spec.md §7
// assigns it. Errors that are not a *types.Error (unexpected internal
// failures) are treated as transient.
func writeError(w http.ResponseWriter, err error) {
	kind := types.ErrTransient
	if e, ok := err.(*types.Error); ok {
		kind = e.Kind
	}
	status := http.StatusInternalServerError
	switch kind {
	case types.ErrNotFound:
		status = http.StatusNotFound
	case types.ErrConflict:
		status = http.StatusConflict
	case types.ErrForbidden:
		status = http.StatusForbidden
	case types.ErrInvalid:
		status = http.StatusBadRequest
	case types.ErrTransient:
		status = http.StatusServiceUnavailable
	}
	respondError(w, status, err.Error())
}

func pathInt64(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}
