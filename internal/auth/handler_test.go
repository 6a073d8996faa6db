package auth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-accounts/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-accounts/internal/user/entity"
)

type stubSessions struct {
	loginUser  entity.PublicUser
	loginToken string
	loginErr   error
	gotUser    string
	gotPass    string

	logoutErr error
	logoutID  int64
}

func (s *stubSessions) Login(_ context.Context, username, password string) (entity.PublicUser, string, error) {
	s.gotUser, s.gotPass = username, password
	return s.loginUser, s.loginToken, s.loginErr
}

func (s *stubSessions) Logout(_ context.Context, userID int64) (entity.PublicUser, error) {
	s.logoutID = userID
	if s.logoutErr != nil {
		return entity.PublicUser{}, s.logoutErr
	}
	return entity.PublicUser{ID: userID, Username: "ana"}, nil
}

type stubParser map[string]int64

func (p stubParser) Parse(tok string) (int64, error) {
	if id, ok := p[tok]; ok {
		return id, nil
	}
	return 0, errors.New("bad token")
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(b)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHandlerLogin_OK(t *testing.T) {
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	svc := &stubSessions{
		loginUser:  entity.PublicUser{ID: 1, Username: "ana", Session: true, CreatedAt: now, UpdatedAt: now},
		loginToken: "tok",
	}
	h := NewHandler(svc, zap.NewNop().Sugar())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"ana","password":"secret"}`))
	h.Login(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", svc.gotUser)
	assert.Equal(t, "secret", svc.gotPass)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tok", body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "1", user["id"])
	assert.Equal(t, true, user["session"])
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestHandlerLogin_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
		msg    string
	}{
		{"bad json", `{`, nil, http.StatusBadRequest, "invalid payload"},
		{"missing password", `{"username":"ana"}`, nil, http.StatusBadRequest, "password: cannot be blank."},
		{"invalid credentials", `{"username":"ana","password":"x"}`, apperr.E("auth.Login", apperr.InvalidCredentials), http.StatusUnauthorized, "invalid username or password"},
		{"disabled", `{"username":"ana","password":"x"}`, apperr.E("auth.Login", apperr.AccountDisabled), http.StatusForbidden, "account is disabled, contact an administrator"},
		{"internal", `{"username":"ana","password":"x"}`, errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&stubSessions{loginErr: tc.err}, zap.NewNop().Sugar())
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(tc.body)))

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.msg, decodeError(t, rec))
		})
	}
}

func TestHandlerLogout_ThroughBearer(t *testing.T) {
	svc := &stubSessions{}
	h := NewHandler(svc, zap.NewNop().Sugar())
	handler := RequireBearer(stubParser{"good": 7}, zap.NewNop().Sugar())(http.HandlerFunc(h.Logout))

	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, "/api/auth/logout", nil)
		req.Header.Set("Authorization", "Bearer good")
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, method)
		assert.Equal(t, int64(7), svc.logoutID)
		assert.JSONEq(t, `{"user":{"id":"7","username":"ana","email":"","status":false,"session":false,"created_at":"0001-01-01T00:00:00Z","updated_at":"0001-01-01T00:00:00Z"}}`, rec.Body.String())
	}
}

func TestHandlerLogout_NoActiveSession(t *testing.T) {
	h := NewHandler(&stubSessions{logoutErr: apperr.E("auth.Logout", apperr.NoActiveSession)}, zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	h.Logout(rec, req.WithContext(WithUserID(req.Context(), 7)))

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user has no active session", decodeError(t, rec))
}

func TestHandlerLogout_NoUserInContext(t *testing.T) {
	h := NewHandler(&stubSessions{}, zap.NewNop().Sugar())
	rec := httptest.NewRecorder()
	h.Logout(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireBearer_Rejects(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })
	mw := RequireBearer(stubParser{"good": 7}, zap.NewNop().Sugar())(next)

	for _, header := range []string{"", "Bearer", "Bearer ", "Basic good", "Bearer bad", "good"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		mw.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		assert.Equal(t, "missing or invalid token", decodeError(t, rec))
	}
	assert.False(t, called)
}

func TestRequireBearer_CaseInsensitiveScheme(t *testing.T) {
	var got int64
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { got, _ = UserIDFrom(r.Context()) })
	mw := RequireBearer(stubParser{"good": 7}, zap.NewNop().Sugar())(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer good")
	mw.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(7), got)
}
