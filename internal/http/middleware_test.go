package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "test-jwt-secret-at-least-32-chars!!"

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	return signed
}

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", JWTAuthMiddleware(jwtSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": c.GetString("userID")})
	})
	router.GET("/internal", InternalAuthMiddleware("internal-secret-value"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestJWTAuthMiddleware_ValidTokenSetsUserID(t *testing.T) {
	router := authRouter()
	token := signedToken(t, jwt.MapClaims{"uid": "user-42"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-42")
}

func TestJWTAuthMiddleware_SubClaimFallback(t *testing.T) {
	router := authRouter()
	token := signedToken(t, jwt.MapClaims{"sub": "user-7"})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-7")
}

func TestJWTAuthMiddleware_MissingHeaderRejected(t *testing.T) {
	router := authRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthMiddleware_BadTokenRejected(t *testing.T) {
	router := authRouter()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalAuthMiddleware(t *testing.T) {
	router := authRouter()

	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.Header.Set("X-Internal-Secret", "internal-secret-value")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.Header.Set("X-Internal-Secret", "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiter_AllowsWithinWindowThenBlocks(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)

	assert.True(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-1"))
	assert.True(t, rl.Allow("user-1"))
	assert.False(t, rl.Allow("user-1"))

	// Other keys are unaffected.
	assert.True(t, rl.Allow("user-2"))
}
