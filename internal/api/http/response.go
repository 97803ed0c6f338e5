package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"labtool-ledger/internal/domain"
	"labtool-ledger/internal/logger"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var statusByKind = map[domain.ErrorKind]int{
	domain.ErrKindInvalidDate:       http.StatusBadRequest,
	domain.ErrKindInvalidCondition:  http.StatusBadRequest,
	domain.ErrKindInvalidInput:      http.StatusBadRequest,
	domain.ErrKindPolicyViolation:   http.StatusUnprocessableEntity,
	domain.ErrKindToolUnavailable:   http.StatusConflict,
	domain.ErrKindInvalidTransition: http.StatusConflict,
	domain.ErrKindNotFound:          http.StatusNotFound,
	domain.ErrKindNotOwner:          http.StatusForbidden,
	domain.ErrKindPermissionDenied:  http.StatusForbidden,
	domain.ErrKindTimeout:           http.StatusGatewayTimeout,
	domain.ErrKindUnavailable:       http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

// writeError maps a workflow error onto a status code and a {kind, message}
// body. Errors without a kind are not shown to the caller.
func writeError(w http.ResponseWriter, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		logger.Error("Unclassified error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Kind: "Internal", Message: "internal server error"})
		return
	}
	status, ok := statusByKind[de.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Kind: string(de.Kind), Message: de.Message})
}
