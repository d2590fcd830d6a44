package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendsheets/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("secret", "attendsheets")
	token, exp, err := iss.Issue("ada@example.com", model.RoleTeacher, 7*24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), exp, 5*time.Second)

	claims, err := iss.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Subject)
	assert.Equal(t, model.RoleTeacher, claims.Role)
}

func TestIssueDefaultsTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	iss := NewIssuer("secret", "").WithClock(func() time.Time { return now })
	_, exp, err := iss.Issue("s@example.com", model.RoleStudent, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(DefaultTokenTTL), exp)

	_, exp, err = iss.WithDefaultTTL(time.Hour).Issue("s@example.com", model.RoleStudent, 0)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)
}

func TestParseRejects(t *testing.T) {
	now := time.Now()
	iss := NewIssuer("secret", "attendsheets")
	token, _, err := iss.WithClock(func() time.Time { return now.Add(-time.Hour) }).Issue("a@example.com", model.RoleTeacher, time.Minute)
	require.NoError(t, err)

	_, err = iss.Parse(token)
	assert.ErrorIs(t, err, ErrExpired)

	good, _, err := iss.Issue("a@example.com", model.RoleTeacher, time.Minute)
	require.NoError(t, err)
	_, err = NewIssuer("other", "attendsheets").Parse(good)
	assert.Error(t, err)
	_, err = NewIssuer("secret", "someone-else").Parse(good)
	assert.Error(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Role: model.RoleTeacher}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Parse(none)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}

func newRouter(iss *Issuer) *gin.Engine {
	r := gin.New()
	g := r.Group("/", Authenticate(iss))
	g.GET("/me", func(c *gin.Context) {
		id, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"email": id.Email, "role": id.Role})
	})
	g.GET("/classes", RequireRole(model.RoleTeacher, "Only teachers can access classes"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	iss := NewIssuer("secret", "attendsheets")
	r := newRouter(iss)
	student, _, err := iss.Issue("s@example.com", model.RoleStudent, time.Hour)
	require.NoError(t, err)
	expired, _, err := iss.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }).Issue("s@example.com", model.RoleStudent, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name, path, header string
		status             int
		body               string
	}{
		{"missing", "/me", "", http.StatusUnauthorized, `{"error":"Not authenticated"}`},
		{"garbage", "/me", "Bearer nope", http.StatusUnauthorized, `{"error":"Could not validate credentials"}`},
		{"expired", "/me", "Bearer " + expired, http.StatusUnauthorized, `{"error":"Token has expired"}`},
		{"ok", "/me", "Bearer " + student, http.StatusOK, `{"email":"s@example.com","role":"student"}`},
		{"role gate", "/classes", "bearer " + student, http.StatusForbidden, `{"error":"Only teachers can access classes"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			assert.JSONEq(t, tc.body, w.Body.String())
		})
	}
}
