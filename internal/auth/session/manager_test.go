package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/licenseboard/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.Config{AuthSecret: "test-secret", SessionTTL: time.Hour}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return m
}

func TestIssueAndParse(t *testing.T) {
	m := newManager(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	token, expiresAt, err := m.Issue("admin", "admin", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiresAt)

	claims, err := m.Parse(token, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	m := newManager(t)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	token, _, err := m.Issue("admin", "admin", now)
	require.NoError(t, err)

	_, err = m.Parse(token, now.Add(2*time.Hour))
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))

	other, err := NewManager(config.Config{AuthSecret: "other-secret"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = other.Parse(token, now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("garbage", now)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewManagerRequiresSecretInProduction(t *testing.T) {
	_, err := NewManager(config.Config{Environment: "production"}, zaptest.NewLogger(t))
	assert.Error(t, err)

	m, err := NewManager(config.Config{Environment: "development"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, m.TTL())
}

func TestCookieRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	m.Set(c, "token-value", time.Now().Add(time.Hour))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = req
	token, ok := m.ReadToken(c2)
	require.True(t, ok)
	assert.Equal(t, "token-value", token)
}
