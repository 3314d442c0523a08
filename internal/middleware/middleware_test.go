package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inquiro/backend/internal/auth"
	"github.com/inquiro/backend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func identityEcho(c *gin.Context) {
	id := Identity(c)
	if id == nil {
		c.String(http.StatusOK, "anonymous")
		return
	}
	c.String(http.StatusOK, string(id.Role)+":"+id.UserID.String())
}

func serve(r http.Handler, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestOptionalJWT(t *testing.T) {
	jwt := auth.NewJWTService("s", 1)
	r := gin.New()
	r.GET("/", OptionalJWT(jwt), identityEcho)

	w := serve(r, "")
	assert.Equal(t, "anonymous", w.Body.String())

	userID := uuid.New()
	tok, err := jwt.Generate(userID, "a@example.com", models.RoleRespondent)
	require.NoError(t, err)
	w = serve(r, "Bearer "+tok)
	assert.Equal(t, "RESPONDENT:"+userID.String(), w.Body.String())

	w = serve(r, "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRequired(t *testing.T) {
	jwt := auth.NewJWTService("s", 1)
	r := gin.New()
	r.GET("/", JWT(jwt), identityEcho)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Token abc").Code)
}

func TestRequireRole(t *testing.T) {
	jwt := auth.NewJWTService("s", 1)
	r := gin.New()
	r.GET("/", JWT(jwt), RequireRole(models.RoleCreator), identityEcho)

	respondent, _ := jwt.Generate(uuid.New(), "r@example.com", models.RoleRespondent)
	w := serve(r, "Bearer "+respondent)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Forbidden: Creator role required")

	creator, _ := jwt.Generate(uuid.New(), "c@example.com", models.RoleCreator)
	assert.Equal(t, http.StatusOK, serve(r, "Bearer "+creator).Code)
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS("http://localhost:3000"))
	r.GET("/", identityEcho)

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
