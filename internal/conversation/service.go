// Package conversation orchestrates legal queries and reads conversation history.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/legalai/legal-assistant/internal/domain"
	"github.com/legalai/legal-assistant/internal/identity"
	"github.com/legalai/legal-assistant/internal/llm"
	"github.com/legalai/legal-assistant/internal/store"
	"github.com/legalai/legal-assistant/internal/transcript"
	"go.uber.org/zap"
)

const (
	DefaultMaxQueryLength = 1000
	MaxTitleLength        = 255
)

// IdentityResolver maps an optional caller identifier to a user.
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, identifier string) (*domain.User, bool, error)
}

// SubmitInput is a single legal query. Identifier is the caller's cookie
// value and may be empty.
type SubmitInput struct {
	Query             string
	ConversationID    string
	ConversationTitle *string
	Identifier        string
}

// SubmitResult is returned for an answered query. NewIdentifier is set only
// when the identifier was minted by this call.
type SubmitResult struct {
	Response       string
	ConversationID string
	NewIdentifier  string
}

// Service runs the query workflow and serves conversation reads.
type Service struct {
	repo           store.Repository
	identity       IdentityResolver
	gateway        llm.Gateway
	transcript     transcript.Recorder
	logger         *zap.Logger
	now            func() time.Time
	newID          func() string
	maxQueryLength int
}

// Option configures a Service.
type Option func(*Service)

// WithTranscript records every turn to r.
func WithTranscript(r transcript.Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.transcript = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxQueryLength overrides the query length limit in runes.
func WithMaxQueryLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxQueryLength = n
		}
	}
}

// NewService creates a Service.
func NewService(repo store.Repository, resolver IdentityResolver, gateway llm.Gateway, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		repo:           repo,
		identity:       resolver,
		gateway:        gateway,
		transcript:     transcript.Nop{},
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		maxQueryLength: DefaultMaxQueryLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit answers one query. The steps run strictly in order and the first
// failure ends the call; completed steps are not rolled back. The gateway is
// called at most once, and only after the user turn is stored.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	title, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	user, isNew, err := s.identity.ResolveOrCreate(ctx, in.Identifier)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidIdentifier) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: resolve identity: %w", domain.ErrInternal, err)
	}
	log := s.logger.With(zap.String("user_id", user.ID))

	conv, err := s.resolveConversation(ctx, user.ID, in.ConversationID, title)
	if err != nil {
		return nil, err
	}
	log = log.With(zap.String("conversation_id", conv.ID))

	// The query is stored and sent as written; trimming only decides validity.
	userMsg, err := s.append(ctx, conv.ID, domain.RoleUser, in.Query, time.Time{})
	if err != nil {
		log.Error("failed to store user message", zap.Error(err))
		return nil, fmt.Errorf("%w: store user message: %w", domain.ErrInternal, err)
	}
	s.record(user.ID, userMsg)

	start := s.now()
	answer, err := s.gateway.Ask(ctx, in.Query)
	if err != nil {
		log.Error("llm request failed", zap.Error(err))
		s.transcript.Record(transcript.Event{
			UserID:         user.ID,
			ConversationID: conv.ID,
			EventType:      transcript.EventLLMError,
			Error:          err.Error(),
		})
		return nil, fmt.Errorf("%w: %w", domain.ErrLLMService, err)
	}

	assistantMsg, err := s.append(ctx, conv.ID, domain.RoleAssistant, answer, userMsg.CreatedAt)
	if err != nil {
		log.Error("failed to store assistant message", zap.Error(err))
		return nil, fmt.Errorf("%w: store assistant message: %w", domain.ErrInternal, err)
	}
	s.record(user.ID, assistantMsg)

	log.Info("query answered",
		zap.Bool("new_identifier", isNew),
		zap.Duration("llm_elapsed", s.now().Sub(start)))

	result := &SubmitResult{Response: answer, ConversationID: conv.ID}
	if isNew {
		result.NewIdentifier = user.ID
	}
	return result, nil
}

func (s *Service) validate(in SubmitInput) (*string, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidQuery)
	}
	if n := utf8.RuneCountInString(query); n > s.maxQueryLength {
		return nil, fmt.Errorf("%w: query is %d characters, limit is %d", domain.ErrInvalidQuery, n, s.maxQueryLength)
	}

	// A blank title means "no title".
	var title *string
	if in.ConversationTitle != nil {
		t := strings.TrimSpace(*in.ConversationTitle)
		if utf8.RuneCountInString(t) > MaxTitleLength {
			return nil, fmt.Errorf("%w: conversation title exceeds %d characters", domain.ErrInvalidQuery, MaxTitleLength)
		}
		if t != "" {
			title = &t
		}
	}
	return title, nil
}

// resolveConversation loads the caller's conversation or creates a new one.
// Only an empty id means "new"; any other value must name an owned conversation.
func (s *Service) resolveConversation(ctx context.Context, userID, conversationID string, title *string) (*domain.Conversation, error) {
	if conversationID == "" {
		now := s.now()
		conv := &domain.Conversation{
			ID:        s.newID(),
			UserID:    userID,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("%w: create conversation: %w", domain.ErrInternal, err)
		}
		return conv, nil
	}

	conv, err := s.repo.GetOwnedConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %w", domain.ErrInternal, err)
	}
	if conv == nil || !conv.OwnedBy(userID) {
		return nil, domain.ErrConversationNotFound
	}

	if conv.TitleDiffers(title) {
		now := s.now()
		err := s.repo.UpdateConversationTitle(ctx, conv.ID, userID, *title, now)
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.ErrConversationNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("%w: update conversation title: %w", domain.ErrInternal, err)
		}
		conv.Title = title
		conv.UpdatedAt = now
	}
	return conv, nil
}

// append stores a message stamped no earlier than notBefore, so a wall clock
// step backwards cannot reorder the turns of one request.
func (s *Service) append(ctx context.Context, conversationID string, role domain.Role, content string, notBefore time.Time) (*domain.Message, error) {
	at := s.now()
	if at.Before(notBefore) {
		at = notBefore
	}
	msg := &domain.Message{
		ID:             s.newID(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      at,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *Service) record(userID string, msg *domain.Message) {
	eventType := transcript.EventUserMessage
	if msg.Role == domain.RoleAssistant {
		eventType = transcript.EventAssistantMessage
	}
	s.transcript.Record(transcript.Event{
		Timestamp:      msg.CreatedAt,
		UserID:         userID,
		ConversationID: msg.ConversationID,
		EventType:      eventType,
		Role:           string(msg.Role),
		Content:        msg.Content,
	})
}

// ListConversations returns the caller's conversations, most recently active
// first. Anonymous callers get an empty list.
func (s *Service) ListConversations(ctx context.Context, identifier string) ([]domain.Conversation, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return []domain.Conversation{}, nil
	}
	if !identity.ValidIdentifier(identifier) {
		return nil, domain.ErrInvalidIdentifier
	}

	convs, err := s.repo.ListConversationsByUser(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %w", domain.ErrInternal, err)
	}
	return convs, nil
}

// GetConversation returns an owned conversation with its ordered messages.
// Missing and foreign conversations are both ErrConversationNotFound.
func (s *Service) GetConversation(ctx context.Context, conversationID, identifier string) (*domain.ConversationDetail, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.ErrAuthenticationRequired
	}
	if !identity.ValidIdentifier(identifier) {
		return nil, domain.ErrInvalidIdentifier
	}

	conv, err := s.repo.GetOwnedConversation(ctx, strings.TrimSpace(conversationID), identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: load conversation: %w", domain.ErrInternal, err)
	}
	if conv == nil || !conv.OwnedBy(identifier) {
		return nil, domain.ErrConversationNotFound
	}

	msgs, err := s.repo.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %w", domain.ErrInternal, err)
	}
	return &domain.ConversationDetail{Conversation: *conv, Messages: msgs}, nil
}
