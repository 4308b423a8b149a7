package localapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sierrachat/client/internal/logger"
	"github.com/sierrachat/client/internal/rest"
	"github.com/sierrachat/client/internal/validate"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeBackendError maps client errors to local API statuses. Backend
// failures surface as 502: the daemon itself is fine, the upstream is not.
func writeBackendError(w http.ResponseWriter, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, rest.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "backend rejected the session token")
	case errors.Is(err, rest.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
