package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/inf/reelbox/internal/playback"
	"github.com/inf/reelbox/internal/store"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, err.Error())
}

func writeUnauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "unauthorized")
}

func writeNotFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}

// writeStoreError maps storage and playback sentinels onto status
// codes; anything unrecognized is a 500.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeNotFound(w)
	case errors.Is(err, store.ErrDuplicateEntry):
		writeError(w, http.StatusConflict, "already in playlist")
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "username taken")
	case errors.Is(err, playback.ErrPrecondition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
