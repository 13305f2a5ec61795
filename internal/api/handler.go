// Package api provides HTTP handlers for the legal assistant API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/legalai/legal-assistant/internal/conversation"
	"github.com/legalai/legal-assistant/internal/domain"
	"github.com/legalai/legal-assistant/internal/identity"
	"github.com/legalai/legal-assistant/internal/llm"
	"go.uber.org/zap"
)

const maxRequestBodyBytes = 1 << 20

// Handler serves the query and conversation endpoints.
type Handler struct {
	svc     *conversation.Service
	cookies identity.Cookies
	logger  *zap.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *conversation.Service, cookies identity.Cookies, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, cookies: cookies, logger: logger}
}

// JSON writes a JSON response with the given status code. The body is
// encoded before the header goes out, so an unencodable value becomes a
// clean 500.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		zap.L().Error("Failed to encode response", zap.Int("status", status), zap.Error(err))
		status = http.StatusInternalServerError
		body = []byte(`{"detail":"Internal server error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		zap.L().Debug("Failed to write response", zap.Error(err))
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}

// decodeJSON reads a single JSON object of at most maxRequestBodyBytes,
// rejecting unknown fields and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// writeServiceError maps service error kinds onto status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidIdentifier):
		// Expire the unusable cookie so the next request starts fresh.
		h.cookies.Clear(w)
		Error(w, http.StatusBadRequest, "Invalid user identifier")
	case errors.Is(err, domain.ErrAuthenticationRequired):
		Error(w, http.StatusUnauthorized, "User ID required")
	case errors.Is(err, domain.ErrConversationNotFound):
		Error(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, domain.ErrLLMService):
		detail := "provider unavailable"
		var perr *llm.ProviderError
		if errors.As(err, &perr) {
			detail = perr.Error()
		}
		Error(w, http.StatusInternalServerError, "LLM service error: "+detail)
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		Error(w, http.StatusInternalServerError, "Internal server error")
	}
}
