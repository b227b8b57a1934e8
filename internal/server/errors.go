package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfstamp/internal/compose"
	"github.com/local/pdfstamp/internal/document"
	"github.com/local/pdfstamp/internal/selection"
	"github.com/local/pdfstamp/internal/session"
	"github.com/local/pdfstamp/internal/stamp"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps a workflow error to an HTTP status and a stable kind string.
func classify(err error) (int, string) {
	var (
		openErr   *document.DocumentOpenError
		emptyErr  *document.EmptyDocumentError
		noPages   *document.NoPagesProducedError
		small     *stamp.RegionTooSmallError
		placement *compose.InvalidPlacementError
	)
	switch {
	case errors.As(err, &openErr):
		return http.StatusUnprocessableEntity, "document_open"
	case errors.As(err, &emptyErr):
		return http.StatusUnprocessableEntity, "empty_document"
	case errors.As(err, &noPages):
		return http.StatusUnprocessableEntity, "no_pages_produced"
	case errors.As(err, &small):
		return http.StatusUnprocessableEntity, "region_too_small"
	case errors.As(err, &placement):
		return http.StatusUnprocessableEntity, "invalid_placement"
	case errors.Is(err, session.ErrMergeInProgress):
		return http.StatusConflict, "merge_in_progress"
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, session.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, selection.ErrNoPress):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, session.ErrWidthOutOfRange):
		return http.StatusBadRequest, "width_out_of_range"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, kind := classify(err)
	ev := log.Warn()
	if code >= 500 {
		ev = log.Error()
	}
	ev.Err(err).Str("path", r.URL.Path).Int("status", code).Str("kind", kind).Msg("request failed")
	writeJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
