package search

import (
	"encoding/base64"
	"encoding/json"

	"github.com/agentindex/gateway/internal/apierror"
)

// Limits accepted on list and search routes.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// cursorPayload covers both cursor shapes: a plain backend offset, and the
// global offset used when results were merged across backends.
type cursorPayload struct {
	Offset       *int `json:"offset,omitempty"`
	GlobalOffset *int `json:"_global_offset,omitempty"`
}

// EncodeCursor packs a backend offset into an opaque base64url token.
func EncodeCursor(offset int) string {
	buf, _ := json.Marshal(cursorPayload{Offset: &offset})
	return base64.RawURLEncoding.EncodeToString(buf)
}

// EncodeGlobalCursor packs a cross-backend offset.
func EncodeGlobalCursor(offset int) string {
	buf, _ := json.Marshal(cursorPayload{GlobalOffset: &offset})
	return base64.RawURLEncoding.EncodeToString(buf)
}

// DecodeCursor unpacks either cursor shape back into an offset.
func DecodeCursor(token string) (int, error) {
	buf, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, apierror.Validation("invalid cursor")
	}
	var p cursorPayload
	if err := json.Unmarshal(buf, &p); err != nil {
		return 0, apierror.Validation("invalid cursor")
	}
	switch {
	case p.Offset != nil && *p.Offset >= 0:
		return *p.Offset, nil
	case p.GlobalOffset != nil && *p.GlobalOffset >= 0:
		return *p.GlobalOffset, nil
	}
	return 0, apierror.Validation("invalid cursor")
}

// ClampLimit applies the [1,100] rule: zero and negatives are rejected,
// over-max values clamp silently, unset (absent) defaults to 20.
func ClampLimit(limit int, set bool) (int, error) {
	if !set {
		return DefaultLimit, nil
	}
	if limit <= 0 {
		return 0, apierror.Validation("limit must be between 1 and 100")
	}
	if limit > MaxLimit {
		return MaxLimit, nil
	}
	return limit, nil
}

// PageToOffset converts 1-based page numbers: offset = (page-1)*limit.
func PageToOffset(page, limit int) (int, error) {
	if page < 1 {
		return 0, apierror.Validation("page must be >= 1")
	}
	return (page - 1) * limit, nil
}
