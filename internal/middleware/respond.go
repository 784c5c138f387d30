package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/apierror"
)

// errorEnvelope mirrors the API layer's failure shape so middleware
// rejections look identical to handler rejections.
type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeError(w http.ResponseWriter, r *http.Request, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	json.NewEncoder(w).Encode(errorEnvelope{
		Success:   false,
		Error:     err.Message,
		Code:      string(err.Code),
		RequestID: GetRequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
