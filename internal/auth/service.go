// Package auth implements login and logout as transitions of a user's session flag.
package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/security"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-accounts/internal/user/repo"
)

// UserStore is the subset of the user repository the session service needs.
type UserStore interface {
	FindByUsername(ctx context.Context, username string) (*entity.User, error)
	FindByID(ctx context.Context, id int64) (*entity.User, error)
	UpdateSessionFlag(ctx context.Context, id int64, value bool) (*entity.User, error)
	SwapSessionFlag(ctx context.Context, id int64, from, to bool) (*entity.User, error)
}

// TokenIssuer mints a bearer token bound to a user id.
type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// Recorder counts auth outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	Login(outcome string)
	Logout(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Login(string)  {}
func (nopRecorder) Logout(string) {}

// SessionService orchestrates login and logout.
type SessionService struct {
	store   UserStore
	hasher  security.PasswordHasher
	tokens  TokenIssuer
	logger  *zap.SugaredLogger
	metrics Recorder
}

func NewSessionService(store UserStore, hasher security.PasswordHasher, tokens TokenIssuer, logger *zap.SugaredLogger, rec Recorder) *SessionService {
	if hasher == nil {
		hasher = security.BcryptHasher{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &SessionService{store: store, hasher: hasher, tokens: tokens, logger: logger, metrics: rec}
}

// Login checks credentials, then marks the session active and returns a token.
// An already active session does not block a new login.
func (s *SessionService) Login(ctx context.Context, username, password string) (entity.PublicUser, string, error) {
	const op = "auth.Login"

	// registration stores usernames trimmed
	username = strings.TrimSpace(username)
	u, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			// same answer as a wrong password
			return s.rejectLogin(op, apperr.InvalidCredentials, "username", username)
		}
		return s.failLogin(op, err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return s.rejectLogin(op, apperr.InvalidCredentials, "user_id", u.ID)
	}
	if !u.Status {
		return s.rejectLogin(op, apperr.AccountDisabled, "user_id", u.ID)
	}

	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return s.failLogin(op, err)
	}

	updated, err := s.store.UpdateSessionFlag(ctx, u.ID, true)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return s.rejectLogin(op, apperr.InvalidCredentials, "user_id", u.ID)
		}
		return s.failLogin(op, err)
	}

	s.metrics.Login(metrics.OutcomeSuccess)
	s.logger.Infow("user logged in", "user_id", u.ID, "had_session", u.Session)
	return updated.View(), tok, nil
}

// Logout clears the session flag. The write only applies while the flag is
// still set, so of two concurrent logouts exactly one succeeds.
func (s *SessionService) Logout(ctx context.Context, userID int64) (entity.PublicUser, error) {
	const op = "auth.Logout"

	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return entity.PublicUser{}, s.rejectLogout(op, apperr.NotFound, userID)
		}
		return entity.PublicUser{}, s.failLogout(op, err)
	}
	if !u.Session {
		return entity.PublicUser{}, s.rejectLogout(op, apperr.NoActiveSession, userID)
	}

	updated, err := s.store.SwapSessionFlag(ctx, userID, true, false)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			s.logger.Debugw("logout lost race", "user_id", userID)
			return entity.PublicUser{}, s.rejectLogout(op, apperr.NoActiveSession, userID)
		}
		return entity.PublicUser{}, s.failLogout(op, err)
	}

	s.metrics.Logout(metrics.OutcomeSuccess)
	s.logger.Infow("user logged out", "user_id", userID)
	return updated.View(), nil
}

func (s *SessionService) rejectLogin(op string, kind apperr.Kind, keyAndValue ...any) (entity.PublicUser, string, error) {
	s.metrics.Login(metrics.OutcomeRejected)
	s.logger.Debugw("login rejected", append([]any{"kind", kind.String()}, keyAndValue...)...)
	return entity.PublicUser{}, "", apperr.E(op, kind)
}

func (s *SessionService) failLogin(op string, err error) (entity.PublicUser, string, error) {
	s.metrics.Login(metrics.OutcomeError)
	return entity.PublicUser{}, "", apperr.Wrap(op, apperr.Internal, err)
}

func (s *SessionService) rejectLogout(op string, kind apperr.Kind, userID int64) error {
	s.metrics.Logout(metrics.OutcomeRejected)
	s.logger.Debugw("logout rejected", "kind", kind.String(), "user_id", userID)
	return apperr.E(op, kind)
}

func (s *SessionService) failLogout(op string, err error) error {
	s.metrics.Logout(metrics.OutcomeError)
	return apperr.Wrap(op, apperr.Internal, err)
}
