package user

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/security"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-accounts/internal/user/repo"
)

// Listing bounds.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Store is the subset of the user repository the service uses.
type Store interface {
	Create(ctx context.Context, u *entity.User) (*entity.User, error)
	FindByID(ctx context.Context, id int64) (*entity.User, error)
	FindByUsernameOrEmail(ctx context.Context, username, email string) (*entity.User, error)
	FindPage(ctx context.Context, limit, offset int) ([]entity.User, int64, error)
}

// IDSource hands out new user ids.
type IDSource interface {
	Next() int64
}

// Recorder counts registration outcomes. *metrics.Metrics satisfies it.
type Recorder interface {
	Register(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) Register(string) {}

// UserService orchestrates registration and lookups.
type UserService struct {
	store   Store
	hasher  security.PasswordHasher
	ids     IDSource
	logger  *zap.SugaredLogger
	metrics Recorder
}

func NewUserService(store Store, hasher security.PasswordHasher, ids IDSource, logger *zap.SugaredLogger, rec Recorder) *UserService {
	if hasher == nil {
		hasher = security.BcryptHasher{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	return &UserService{store: store, hasher: hasher, ids: ids, logger: logger, metrics: rec}
}

// RegisterInput is the registration payload.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.Length(3, 64), validation.Match(usernamePattern)),
		validation.Field(&in.Email, validation.Required, is.Email),
		validation.Field(&in.Password, validation.Required, validation.Length(6, 72)),
	)
}

func (in RegisterInput) normalized() RegisterInput {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return in
}

// Register creates an enabled user without an active session. A username or
// email already in use yields AlreadyExists and nothing is written.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (entity.PublicUser, error) {
	const op = "user.Register"

	in = in.normalized()
	if err := in.Validate(); err != nil {
		s.metrics.Register(metrics.OutcomeRejected)
		return entity.PublicUser{}, apperr.Invalid(op, err.Error())
	}

	existing, err := s.store.FindByUsernameOrEmail(ctx, in.Username, in.Email)
	switch {
	case err == nil:
		s.metrics.Register(metrics.OutcomeRejected)
		s.logger.Debugw("registration conflict", "username", in.Username, "existing_id", existing.ID)
		return entity.PublicUser{}, apperr.E(op, apperr.AlreadyExists)
	case !errors.Is(err, userrepo.ErrNotFound):
		s.metrics.Register(metrics.OutcomeError)
		return entity.PublicUser{}, apperr.Wrap(op, apperr.Internal, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.metrics.Register(metrics.OutcomeError)
		return entity.PublicUser{}, apperr.Wrap(op, apperr.Internal, err)
	}

	created, err := s.store.Create(ctx, &entity.User{
		ID:           s.ids.Next(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Status:       true,
		Session:      false,
	})
	if err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			// lost a race with a concurrent registration
			s.metrics.Register(metrics.OutcomeRejected)
			return entity.PublicUser{}, apperr.Wrap(op, apperr.AlreadyExists, err)
		}
		s.metrics.Register(metrics.OutcomeError)
		return entity.PublicUser{}, apperr.Wrap(op, apperr.Internal, err)
	}

	s.metrics.Register(metrics.OutcomeSuccess)
	s.logger.Infow("user registered", "user_id", created.ID, "username", created.Username)
	return created.View(), nil
}

// Get retrieves one user by id.
func (s *UserService) Get(ctx context.Context, id int64) (entity.PublicUser, error) {
	const op = "user.Get"
	u, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return entity.PublicUser{}, apperr.E(op, apperr.NotFound)
		}
		return entity.PublicUser{}, apperr.Wrap(op, apperr.Internal, err)
	}
	return u.View(), nil
}

// ClampPage normalizes listing parameters: page < 1 becomes 1, limit < 1
// becomes DefaultLimit and limit > MaxLimit becomes MaxLimit. page is capped
// so that (page-1)*limit fits in an int.
func ClampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if maxPage := math.MaxInt / limit; page > maxPage {
		page = maxPage
	}
	return page, limit
}

// List returns one page of users ordered by id.
func (s *UserService) List(ctx context.Context, page, limit int) (entity.Page, error) {
	const op = "user.List"
	page, limit = ClampPage(page, limit)

	rows, total, err := s.store.FindPage(ctx, limit, (page-1)*limit)
	if err != nil {
		return entity.Page{}, apperr.Wrap(op, apperr.Internal, err)
	}
	users := make([]entity.PublicUser, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].View())
	}
	return entity.Page{Users: users, Total: total, Page: page, Limit: limit}, nil
}
