package user

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/security"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-accounts/internal/user/repo"
)

type memStore struct {
	users     []*entity.User
	createErr error
	findErr   error
	lastLimit int
	lastOff   int
}

func (s *memStore) Create(_ context.Context, u *entity.User) (*entity.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	cp := *u
	s.users = append(s.users, &cp)
	return &cp, nil
}

func (s *memStore) FindByID(_ context.Context, id int64) (*entity.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (s *memStore) FindByUsernameOrEmail(_ context.Context, username, email string) (*entity.User, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if u.Username == username || u.Email == email {
			return u, nil
		}
	}
	return nil, userrepo.ErrNotFound
}

func (s *memStore) FindPage(_ context.Context, limit, offset int) ([]entity.User, int64, error) {
	s.lastLimit, s.lastOff = limit, offset
	if s.findErr != nil {
		return nil, 0, s.findErr
	}
	out := []entity.User{}
	for i := offset; i < len(s.users) && i < offset+limit; i++ {
		out = append(out, *s.users[i])
	}
	return out, int64(len(s.users)), nil
}

type seqIDs struct{ n int64 }

func (s *seqIDs) Next() int64 {
	s.n++
	return s.n
}

var testHasher = security.BcryptHasher{Cost: bcrypt.MinCost}

func newTestService(store Store) *UserService {
	return NewUserService(store, testHasher, &seqIDs{n: 100}, nil, nil)
}

func TestRegister_Success(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store)

	u, err := svc.Register(context.Background(), RegisterInput{Username: " ana ", Email: "Ana@Example.com", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, int64(101), u.ID)
	assert.Equal(t, "ana", u.Username)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.True(t, u.Status)
	assert.False(t, u.Session)

	require.Len(t, store.users, 1)
	stored := store.users[0]
	assert.NotEqual(t, "secret", stored.PasswordHash)
	assert.True(t, testHasher.Verify(stored.PasswordHash, "secret"))
}

func TestRegister_AlreadyExists(t *testing.T) {
	cases := map[string]RegisterInput{
		"same username": {Username: "ana", Email: "other@example.com", Password: "secret"},
		"same email":    {Username: "bob", Email: "ana@example.com", Password: "secret"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			store := &memStore{users: []*entity.User{{ID: 1, Username: "ana", Email: "ana@example.com"}}}
			svc := newTestService(store)

			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
			assert.Len(t, store.users, 1)
		})
	}
}

func TestRegister_InsertRace(t *testing.T) {
	store := &memStore{createErr: fmt.Errorf("create user: %w", userrepo.ErrDuplicate)}
	svc := newTestService(store)

	_, err := svc.Register(context.Background(), RegisterInput{Username: "ana", Email: "ana@example.com", Password: "secret"})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	assert.Empty(t, store.users)
}

func TestRegister_Invalid(t *testing.T) {
	cases := map[string]RegisterInput{
		"empty":          {},
		"bad email":      {Username: "ana", Email: "not-an-email", Password: "secret"},
		"short password": {Username: "ana", Email: "ana@example.com", Password: "abc"},
		"bad username":   {Username: "a n a", Email: "ana@example.com", Password: "secret"},
		"short username": {Username: "an", Email: "ana@example.com", Password: "secret"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			store := &memStore{}
			_, err := newTestService(store).Register(context.Background(), in)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
			assert.NotEqual(t, "invalid input", apperr.MessageOf(err))
			assert.Empty(t, store.users)
		})
	}
}

func TestRegister_StoreError(t *testing.T) {
	store := &memStore{findErr: errors.New("connection reset")}
	_, err := newTestService(store).Register(context.Background(), RegisterInput{Username: "ana", Email: "ana@example.com", Password: "secret"})
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
}

func TestGet(t *testing.T) {
	store := &memStore{users: []*entity.User{{ID: 5, Username: "ana", PasswordHash: "h"}}}
	svc := newTestService(store)

	u, err := svc.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "ana", u.Username)

	_, err = svc.Get(context.Background(), 6)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestClampPage(t *testing.T) {
	cases := []struct{ page, limit, wantPage, wantLimit int }{
		{1, 10, 1, 10},
		{0, 0, 1, DefaultLimit},
		{-3, -1, 1, DefaultLimit},
		{2, 500, 2, MaxLimit},
		{4, 100, 4, 100},
		{math.MaxInt, 100, math.MaxInt / 100, 100},
		{math.MaxInt, 1, math.MaxInt, 1},
	}
	for _, tc := range cases {
		p, l := ClampPage(tc.page, tc.limit)
		assert.Equal(t, tc.wantPage, p)
		assert.Equal(t, tc.wantLimit, l)
	}
}

func TestList(t *testing.T) {
	store := &memStore{}
	for i := int64(1); i <= 5; i++ {
		store.users = append(store.users, &entity.User{ID: i, Username: fmt.Sprintf("u%d", i)})
	}
	svc := newTestService(store)

	p, err := svc.List(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, store.lastLimit)
	assert.Equal(t, 2, store.lastOff)
	assert.Equal(t, int64(5), p.Total)
	require.Len(t, p.Users, 2)
	assert.Equal(t, "u3", p.Users[0].Username)

	p, err = svc.List(context.Background(), 9, 2)
	require.NoError(t, err)
	assert.NotNil(t, p.Users)
	assert.Empty(t, p.Users)
	assert.Equal(t, 9, p.Page)
}

func TestList_HugePage(t *testing.T) {
	store := &memStore{users: []*entity.User{{ID: 1, Username: "a"}}}
	p, err := newTestService(store).List(context.Background(), math.MaxInt64/10, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, store.lastOff, 0)
	assert.Equal(t, (p.Page-1)*p.Limit, store.lastOff)
	assert.Empty(t, p.Users)
	assert.Equal(t, int64(1), p.Total)
}

func TestList_Clamped(t *testing.T) {
	store := &memStore{}
	p, err := newTestService(store).List(context.Background(), 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, MaxLimit, p.Limit)
	assert.Equal(t, 0, store.lastOff)
}
