package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// echoEmail writes the authenticated email, or "anonymous".
var echoEmail = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	email, ok := EmailFromContext(r.Context())
	if !ok {
		email = "anonymous"
	}
	w.Write([]byte(email))
})

func requestWithToken(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	}
	return req
}

func TestRequireAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate("ada@example.com")
	handler := RequireAuth(ts)(echoEmail)

	t.Run("valid cookie passes email through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithToken(token))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ada@example.com", rec.Body.String())
	})

	t.Run("missing cookie is 401 JSON", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithToken(""))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	})

	t.Run("browser navigation is redirected home", func(t *testing.T) {
		req := requestWithToken("garbage")
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, "/", rec.Header().Get("Location"))
	})
}

func TestOptionalAuth(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.Generate("ada@example.com")
	handler := OptionalAuth(ts)(echoEmail)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithToken(token))
	assert.Equal(t, "ada@example.com", rec.Body.String())

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithToken("garbage"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anonymous", rec.Body.String())
}

func TestSetAndClearCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	SetCookie(rec, "abc", DefaultTokenTTL, false)
	ClearCookie(rec)

	cookies := rec.Result().Cookies()
	if assert.Len(t, cookies, 2) {
		assert.Equal(t, "abc", cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, int(DefaultTokenTTL.Seconds()), cookies[0].MaxAge)
		assert.Equal(t, -1, cookies[1].MaxAge)
	}
}
