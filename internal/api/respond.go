// Package api is the REST edge: routing, parameter parsing, the response
// envelope, and the SSE streams.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/agentindex/gateway/internal/apierror"
	"github.com/agentindex/gateway/internal/middleware"
)

// Meta is the optional success-envelope block carrying pagination and
// search mode.
type Meta struct {
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
	Total      *int64 `json:"total,omitempty"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
	SearchMode string `json:"searchMode,omitempty"`
}

type successEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Meta    *Meta       `json:"meta,omitempty"`
}

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
	Timestamp string `json:"timestamp"`
}

func writeData(w http.ResponseWriter, status int, data interface{}, meta *Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data, Meta: meta})
}

// writeErrorStatus writes the failure envelope with an explicit status, for
// the few cases where the status diverges from the code's default mapping.
func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, code apierror.Code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{
		Success:   false,
		Error:     msg,
		Code:      string(code),
		RequestID: middleware.GetRequestID(r.Context()),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeError translates a typed error into the failure envelope. Internal
// detail stays in the log, keyed by request id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apierror.From(err)
	requestID := middleware.GetRequestID(r.Context())

	if ae.Code == apierror.CodeInternal || ae.Code == apierror.CodeServiceUnavailable {
		log.Printf("[API] request %s failed: %v", requestID, err)
	}

	msg := ae.Message
	if ae.Code == apierror.CodeInternal {
		msg = "internal error" // never leak detail on 500s
	}

	if ae.Code == apierror.CodeUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status())
	json.NewEncoder(w).Encode(errorEnvelope{
		Success:   false,
		Error:     msg,
		Code:      string(ae.Code),
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
