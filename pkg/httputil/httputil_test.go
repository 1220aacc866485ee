package httputil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorCode(rec, http.StatusConflict, CodeSessionConflict, "already logged in elsewhere")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeSessionConflict, body.Code)
	assert.Equal(t, "already logged in elsewhere", body.Error)
}

func TestWriteErrorDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorDetails(rec, http.StatusForbidden, CodeSessionConflict, "active session exists",
		map[string]interface{}{"canForceLogin": true})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, details["canForceLogin"])
}

func TestWriteInternalErrorHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteInternalError(rec)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sql")
	assert.Contains(t, rec.Body.String(), CodeInternal)
}

func TestParseJSONOrError(t *testing.T) {
	var dest struct {
		Email string `json:"email"`
	}

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{"email":"a@b.c"}`))
	rec := httptest.NewRecorder()
	require.True(t, ParseJSONOrError(rec, req, &dest))
	assert.Equal(t, "a@b.c", dest.Email)

	req = httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{bad`))
	rec = httptest.NewRecorder()
	assert.False(t, ParseJSONOrError(rec, req, &dest))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequireNonEmpty(t *testing.T) {
	rec := httptest.NewRecorder()
	assert.True(t, RequireNonEmpty(rec, "value", "email"))

	rec = httptest.NewRecorder()
	assert.False(t, RequireNonEmpty(rec, "   ", "email"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "email is required")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:54321"
	assert.Equal(t, "10.0.0.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	assert.Equal(t, "198.51.100.4", ClientIP(req))
}

func TestSecure(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, Secure(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.True(t, Secure(req))

	req = httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	assert.True(t, Secure(req))
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/admins?limit=25&force=true&sort=email", nil)

	limit, err := ParseQueryInt(req, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	missing, err := ParseQueryInt(req, "offset", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, missing)

	force, err := ParseQueryBool(req, "force", false)
	require.NoError(t, err)
	assert.True(t, force)

	assert.Equal(t, "email", ParseQueryString(req, "sort", "id"))

	req = httptest.NewRequest(http.MethodGet, "/admins?limit=abc", nil)
	_, err = ParseQueryInt(req, "limit", 10)
	assert.Error(t, err)
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(tag("outer"), tag("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, strings.Join([]string{"outer", "inner", "handler"}, ","), strings.Join(order, ","))
}
