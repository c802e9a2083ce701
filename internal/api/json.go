package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/mystindex/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps workspace errors to a status. Anything unexpected is logged
// with op and uri and reported as a bare 500.
func writeError(w http.ResponseWriter, op, uri string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(apperr.ErrNotFound.Error()))
	case errors.Is(err, apperr.ErrNotOpen):
		writeJSON(w, http.StatusConflict, errorBody(apperr.ErrNotOpen.Error()))
	default:
		slog.Error(op+" failed", slog.String("uri", uri), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
