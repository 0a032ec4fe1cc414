package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"hire-realtime/internal/apperr"
	grpcclient "hire-realtime/internal/grpc"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey = "userID"
	EmailKey  = "email"
	RoleKey   = "role"
)

var (
	errMissingAuth   = apperr.New(apperr.KindUnauthenticated, "missing_authorization", "missing authorization")
	errInvalidHeader = apperr.New(apperr.KindUnauthenticated, "invalid_authorization", "invalid authorization header")
	errForbiddenRole = apperr.New(apperr.KindForbidden, "forbidden", "insufficient role")
)

// TokenValidator is satisfied by the auth-service gRPC client.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (grpcclient.Identity, error)
}

// AuthMiddleware validates the bearer token with the auth service and stores
// the caller identity on the gin context.
func AuthMiddleware(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, errMissingAuth)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abort(c, errInvalidHeader)
			return
		}

		identity, err := auth.ValidateToken(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(EmailKey, identity.Email)
		c.Set(RoleKey, identity.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(RoleKey)
		for _, r := range roles {
			if strings.EqualFold(role, r) {
				c.Next()
				return
			}
		}
		abort(c, errForbiddenRole)
	}
}

func abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err), "code": apperr.CodeOf(err)})
}
