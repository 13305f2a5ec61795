// Package identity provides anonymous cookie-based caller identity.
package identity

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/legalai/legal-assistant/internal/domain"
	"github.com/legalai/legal-assistant/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultCookieName   = "user_id"
	DefaultCookieMaxAge = 365 * 24 * time.Hour

	// lastSeenGranularity limits last_seen_at writes to one per user per window.
	lastSeenGranularity = time.Minute
)

type contextKey int

const identifierKey contextKey = iota

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidIdentifier reports whether id has the shape of a caller identifier.
func ValidIdentifier(id string) bool {
	return identifierPattern.MatchString(id)
}

// WithIdentifier returns a context carrying the caller identifier.
func WithIdentifier(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, identifierKey, id)
}

// FromContext returns the caller identifier, or "" for anonymous callers.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(identifierKey).(string); ok {
		return v
	}
	return ""
}

// Resolver maps an optional caller identifier to a durable user record.
type Resolver struct {
	repo   store.Repository
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo store.Repository, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// ResolveOrCreate returns the user for identifier, creating it if needed.
// An empty identifier mints a fresh one and reports isNew. A present
// identifier is never substituted: unknown identifiers are created as given,
// malformed ones fail with domain.ErrInvalidIdentifier.
func (r *Resolver) ResolveOrCreate(ctx context.Context, identifier string) (user *domain.User, isNew bool, err error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		identifier = r.newID()
		isNew = true
	} else if !ValidIdentifier(identifier) {
		return nil, false, domain.ErrInvalidIdentifier
	}

	if !isNew {
		user, err = r.repo.GetUser(ctx, identifier)
		if err != nil {
			return nil, false, fmt.Errorf("get user: %w", err)
		}
		if user != nil {
			r.touch(ctx, user)
			return user, false, nil
		}
	}

	now := r.now()
	if err := r.repo.CreateUser(ctx, &domain.User{ID: identifier, CreatedAt: now, LastSeenAt: now}); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	// Re-read: a concurrent request may have created the row first.
	user, err = r.repo.GetUser(ctx, identifier)
	if err != nil {
		return nil, false, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, false, fmt.Errorf("user %s missing after create", identifier)
	}

	if isNew {
		r.logger.Info("minted caller identifier", zap.String("user_id", identifier))
	}
	return user, isNew, nil
}

// touch refreshes last_seen_at. Failures are logged and otherwise ignored.
func (r *Resolver) touch(ctx context.Context, user *domain.User) {
	now := r.now()
	if user.SeenWithin(now, lastSeenGranularity) {
		return
	}
	if err := r.repo.UpdateLastSeen(ctx, user.ID, now); err != nil {
		r.logger.Warn("failed to update last_seen", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	user.LastSeenAt = now
}

// Cookies reads and writes the identity cookie.
type Cookies struct {
	Name   string
	MaxAge time.Duration
	// Dev relaxes Secure and SameSite so the cookie works over plain http.
	Dev bool
}

func (c Cookies) name() string {
	if c.Name == "" {
		return DefaultCookieName
	}
	return c.Name
}

// Read returns the identifier presented by the request, if any.
func (c Cookies) Read(r *http.Request) string {
	cookie, err := r.Cookie(c.name())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

// Set issues the identity cookie. Outside development it is Secure with
// SameSite=None so cross-site frontends can send it back.
func (c Cookies) Set(w http.ResponseWriter, id string) {
	maxAge := c.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultCookieMaxAge
	}

	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    id,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Expires:  time.Now().Add(maxAge),
		HttpOnly: true,
		SameSite: c.sameSite(),
		Secure:   !c.Dev,
	})
}

// Clear expires the identity cookie. It carries the same attributes as Set,
// otherwise a cross-site browser ignores it.
func (c Cookies) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name(),
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: c.sameSite(),
		Secure:   !c.Dev,
	})
}

func (c Cookies) sameSite() http.SameSite {
	if c.Dev {
		return http.SameSiteLaxMode
	}
	return http.SameSiteNoneMode
}

// Middleware places the cookie-supplied identifier, if any, in the request
// context. It never creates users or writes cookies.
func Middleware(cookies Cookies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := cookies.Read(r); id != "" {
				r = r.WithContext(WithIdentifier(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
