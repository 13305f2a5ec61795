package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/legalai/legal-assistant/internal/conversation"
	"github.com/legalai/legal-assistant/internal/domain"
	"github.com/legalai/legal-assistant/internal/identity"
)

type queryRequest struct {
	Query             string  `json:"query"`
	ConversationID    *string `json:"conversation_id"`
	ConversationTitle *string `json:"conversation_title"`
}

type cookieEcho struct {
	UserID string `json:"user_id"`
}

type queryResponse struct {
	Response       string      `json:"response"`
	ConversationID string      `json:"conversation_id"`
	Cookie         *cookieEcho `json:"cookie,omitempty"`
}

type conversationSummary struct {
	ID        string    `json:"id"`
	Title     *string   `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type messageView struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

type conversationDetail struct {
	conversationSummary
	Messages []messageView `json:"messages"`
}

func toSummary(c domain.Conversation) conversationSummary {
	return conversationSummary{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

// RegisterRoutes registers the API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Root)
	r.Route("/api", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Get("/conversations", h.ListConversations)
		r.Get("/conversations/{conversationID}", h.GetConversation)
	})
}

// Root returns the welcome message.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"message": "Welcome to the legal assistant AI API"})
}

// Query answers a legal question, creating the caller identity and the
// conversation when needed.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	in := conversation.SubmitInput{
		Query:             req.Query,
		ConversationTitle: req.ConversationTitle,
		Identifier:        identity.FromContext(r.Context()),
	}
	if req.ConversationID != nil {
		in.ConversationID = *req.ConversationID
	}

	res, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := queryResponse{Response: res.Response, ConversationID: res.ConversationID}
	if res.NewIdentifier != "" {
		h.cookies.Set(w, res.NewIdentifier)
		resp.Cookie = &cookieEcho{UserID: res.NewIdentifier}
	}
	JSON(w, http.StatusOK, resp)
}

// ListConversations returns the caller's conversations.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.svc.ListConversations(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, toSummary(c))
	}
	JSON(w, http.StatusOK, out)
}

// GetConversation returns one owned conversation with its messages.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	detail, err := h.svc.GetConversation(r.Context(), id, identity.FromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := conversationDetail{
		conversationSummary: toSummary(detail.Conversation),
		Messages:            make([]messageView, 0, len(detail.Messages)),
	}
	for _, m := range detail.Messages {
		out.Messages = append(out.Messages, messageView{Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt})
	}
	JSON(w, http.StatusOK, out)
}
