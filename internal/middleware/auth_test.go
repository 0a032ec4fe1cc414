package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	grpcclient "hire-realtime/internal/grpc"
	"hire-realtime/internal/mocks"
)

func setupAuthRouter(auth TokenValidator, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthMiddleware(auth)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString(UserIDKey), "role": c.GetString(RoleKey)})
	})
	r.GET("/me", handlers...)
	return r
}

func TestAuthMiddlewareSetsIdentity(t *testing.T) {
	auth := new(mocks.TokenValidatorMock)
	auth.On("ValidateToken", mock.Anything, "good").Return(grpcclient.Identity{UserID: "u-1", Role: "recruiter"}, nil).Once()
	router := setupAuthRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"u-1","role":"recruiter"}`, rec.Body.String())
	auth.AssertExpectations(t)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
		code   string
	}{
		{name: "missing", header: "", code: "missing_authorization"},
		{name: "wrong scheme", header: "Basic abc", code: "invalid_authorization"},
		{name: "invalid token", header: "Bearer bad", code: "invalid_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := new(mocks.TokenValidatorMock)
			auth.On("ValidateToken", mock.Anything, "bad").Return(nil, grpcclient.ErrInvalidToken).Maybe()
			router := setupAuthRouter(auth)

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	auth := new(mocks.TokenValidatorMock)
	auth.On("ValidateToken", mock.Anything, "admin").Return(grpcclient.Identity{UserID: "a", Role: "admin"}, nil)
	auth.On("ValidateToken", mock.Anything, "user").Return(grpcclient.Identity{UserID: "b", Role: "candidate"}, nil)
	router := setupAuthRouter(auth, RequireRole("admin"))

	for token, want := range map[string]int{"admin": http.StatusOK, "user": http.StatusForbidden} {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, token)
	}
}
