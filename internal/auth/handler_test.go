package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-auth/internal/observability"
	"session-auth/internal/users"
)

func newTestHandler(t *testing.T) (*Handler, *serviceFixture) {
	t.Helper()
	f := newServiceFixture(t)
	cookies := NewCookies(CookieOptions{})
	return NewHandler(f.service, cookies, observability.Discard(), observability.NewMetrics()), f
}

func doJSON(t *testing.T, handler http.HandlerFunc, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const signUpBody = `{"name":"John Doe","email":"john@example.com","password":"Password123!"}`

func TestHandler_SignUp(t *testing.T) {
	h, f := newTestHandler(t)

	rec := doJSON(t, h.SignUp, signUpBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "User registered successfully", decodeBody(t, rec)["message"])

	got := cookiesByName(rec)
	require.Contains(t, got, AccessCookieName)
	require.Contains(t, got, RefreshCookieName)
	assert.Equal(t, 1, f.users.Count())

	rec = doJSON(t, h.SignUp, signUpBody)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "user already registered", decodeBody(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestHandler_SignUpRejectsBadInput(t *testing.T) {
	h, f := newTestHandler(t)

	for _, body := range []string{
		`{"name":"Jo","email":"john@example.com","password":"Password123!"}`,
		`{"name":"John Doe","email":"nope","password":"Password123!"}`,
		`{"name":"John Doe","email":"john@example.com","password":"short"}`,
		`not json`,
	} {
		rec := doJSON(t, h.SignUp, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.NotEmpty(t, decodeBody(t, rec)["error"])
	}
	assert.Zero(t, f.users.Count())
}

func TestHandler_SignIn(t *testing.T) {
	h, _ := newTestHandler(t)
	require.Equal(t, http.StatusCreated, doJSON(t, h.SignUp, signUpBody).Code)

	rec := doJSON(t, h.SignIn, `{"email":"john@example.com","password":"Password123!"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Signed in successfully", decodeBody(t, rec)["message"])
	assert.Len(t, rec.Result().Cookies(), 2)

	wrong := doJSON(t, h.SignIn, `{"email":"john@example.com","password":"Password123?"}`)
	unknown := doJSON(t, h.SignIn, `{"email":"jane@example.com","password":"Password123!"}`)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Empty(t, wrong.Result().Cookies())
}

func TestHandler_Refresh(t *testing.T) {
	h, f := newTestHandler(t)
	signUp := doJSON(t, h.SignUp, signUpBody)
	refreshCookie := cookiesByName(signUp)[RefreshCookieName]
	oldAccess := cookiesByName(signUp)[AccessCookieName]

	f.clock.Advance(time.Minute)
	rec := doJSON(t, h.Refresh, "", refreshCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Token refreshed successfully", decodeBody(t, rec)["message"])

	got := cookiesByName(rec)
	require.Len(t, got, 1)
	assert.NotEqual(t, oldAccess.Value, got[AccessCookieName].Value)
	assert.True(t, got[AccessCookieName].Expires.After(oldAccess.Expires))
}

func TestHandler_RefreshFailures(t *testing.T) {
	h, f := newTestHandler(t)
	signUp := doJSON(t, h.SignUp, signUpBody)
	refreshCookie := cookiesByName(signUp)[RefreshCookieName]

	rec := doJSON(t, h.Refresh, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "refresh token missing", decodeBody(t, rec)["error"])

	rec = doJSON(t, h.Refresh, "", &http.Cookie{Name: RefreshCookieName, Value: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid refresh token", decodeBody(t, rec)["error"])

	f.clock.Advance(DefaultRefreshTTL + time.Second)
	rec = doJSON(t, h.Refresh, "", refreshCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "refresh token expired", decodeBody(t, rec)["error"])
}

func TestHandler_Logout(t *testing.T) {
	h, _ := newTestHandler(t)
	signUp := doJSON(t, h.SignUp, signUpBody)
	refreshCookie := cookiesByName(signUp)[RefreshCookieName]

	rec := doJSON(t, h.Logout, "", refreshCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", decodeBody(t, rec)["message"])
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Negative(t, c.MaxAge)
	}

	rec = doJSON(t, h.Refresh, "", refreshCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid refresh token", decodeBody(t, rec)["error"])

	again := doJSON(t, h.Logout, "", refreshCookie)
	assert.Equal(t, http.StatusOK, again.Code)

	anonymous := doJSON(t, h.Logout, "")
	assert.Equal(t, http.StatusOK, anonymous.Code)
	assert.Len(t, anonymous.Result().Cookies(), 2)
}

type brokenRefreshStore struct {
	RefreshTokenStore
}

func (brokenRefreshStore) Revoke(context.Context, string) error {
	return errors.New("store offline")
}

func (brokenRefreshStore) FindByToken(context.Context, string) (*RefreshTokenRecord, error) {
	return nil, errors.New("store offline")
}

func TestHandler_StoreFailures(t *testing.T) {
	h, f := newTestHandler(t)
	f.service.refresh = brokenRefreshStore{RefreshTokenStore: f.refresh}
	cookie := &http.Cookie{Name: RefreshCookieName, Value: "some-token"}

	logout := doJSON(t, h.Logout, "", cookie)
	assert.Equal(t, http.StatusOK, logout.Code)
	assert.Len(t, logout.Result().Cookies(), 2)

	refresh := doJSON(t, h.Refresh, "", cookie)
	assert.Equal(t, http.StatusInternalServerError, refresh.Code)
	assert.Equal(t, "internal server error", decodeBody(t, refresh)["error"])
}

func TestGuard(t *testing.T) {
	h, f := newTestHandler(t)
	signUp := doJSON(t, h.SignUp, signUpBody)
	access := cookiesByName(signUp)[AccessCookieName]

	protected := Guard(f.service, observability.Discard(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := users.FromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(user.Name))
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/username", nil)
	req.AddCookie(access)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "John Doe", rec.Body.String())

	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/username", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeBody(t, rec)["error"])

	f.clock.Advance(DefaultAccessTTL + time.Second)
	req = httptest.NewRequest(http.MethodGet, "/users/username", nil)
	req.AddCookie(access)
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuard_StoreFailure(t *testing.T) {
	h, f := newTestHandler(t)
	signUp := doJSON(t, h.SignUp, signUpBody)
	access := cookiesByName(signUp)[AccessCookieName]
	f.service.users = failingUsers{err: errors.New("connection reset")}

	protected := Guard(f.service, observability.Discard(), http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/users/username", nil)
	req.AddCookie(access)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
