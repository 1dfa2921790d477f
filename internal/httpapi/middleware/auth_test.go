package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	httpmw "sim.studio/executor/internal/httpapi/middleware"
)

type fakeAPIKeys struct{ valid map[string]string }

func (f fakeAPIKeys) VerifyAPIKey(key string) (string, bool) {
	id, ok := f.valid[key]
	return id, ok
}

type fakeSessions struct{ valid map[string]string }

func (f fakeSessions) VerifySession(cookie string) (string, bool) {
	id, ok := f.valid[cookie]
	return id, ok
}

func newEcho() *echo.Echo {
	e := echo.New()
	return e
}

func TestRequireAuth_AcceptsValidAPIKey(t *testing.T) {
	e := newEcho()
	mw := httpmw.RequireAuth(nil, fakeAPIKeys{valid: map[string]string{"secret-key": "user-1"}})

	var seenUserID string
	h := mw(func(c echo.Context) error {
		seenUserID = httpmw.UserID(c)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/execute/wf-1", nil)
	req.Header.Set(httpmw.APIKeyHeader, "secret-key")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", seenUserID)
}

func TestRequireAuth_AcceptsValidSessionCookie(t *testing.T) {
	e := newEcho()
	mw := httpmw.RequireAuth(fakeSessions{valid: map[string]string{"abc123": "user-2"}}, nil)

	var seenUserID string
	h := mw(func(c echo.Context) error {
		seenUserID = httpmw.UserID(c)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/execute/wf-1", nil)
	req.AddCookie(&http.Cookie{Name: httpmw.SessionCookie, Value: "abc123"})
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h(c)
	assert.NoError(t, err)
	assert.Equal(t, "user-2", seenUserID)
}

func TestRequireAuth_RejectsNeitherCookieNorKey(t *testing.T) {
	e := newEcho()
	mw := httpmw.RequireAuth(fakeSessions{valid: map[string]string{}}, fakeAPIKeys{valid: map[string]string{}})

	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/execute/wf-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_RejectsInvalidAPIKey(t *testing.T) {
	e := newEcho()
	mw := httpmw.RequireAuth(nil, fakeAPIKeys{valid: map[string]string{"good-key": "user-1"}})

	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/execute/wf-1", nil)
	req.Header.Set(httpmw.APIKeyHeader, "bad-key")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
