package domain

import "errors"

// Error kinds surfaced by the conversation service. Callers match with errors.Is;
// the underlying cause is wrapped alongside the kind.
var (
	// ErrConversationNotFound covers both a missing conversation and one owned by
	// another user so ownership cannot be probed.
	ErrConversationNotFound = errors.New("conversation not found")

	ErrAuthenticationRequired = errors.New("user id required")
	ErrInvalidQuery           = errors.New("invalid query")
	ErrInvalidIdentifier      = errors.New("invalid user identifier")
	ErrLLMService             = errors.New("llm service error")
	ErrInternal               = errors.New("internal error")
)
