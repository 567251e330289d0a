package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"transitpay/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const requestContextKey = "request_context"

var errInvalidToken = errors.New("invalid token")

// ParseToken validates an HS256 token issued by the auth service.
// Claims carry user_id and role.
func ParseToken(secret []byte, raw string) (domain.RequestContext, error) {
	if len(secret) == 0 {
		return domain.RequestContext{}, errors.New("jwt secret not configured")
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return domain.RequestContext{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return domain.RequestContext{}, errInvalidToken
	}

	var rc domain.RequestContext
	if uid, ok := claims["user_id"].(float64); ok {
		rc.UserID = int64(uid)
	}
	if role, ok := claims["role"].(string); ok {
		rc.Role = role
	}
	if rc.UserID <= 0 {
		return domain.RequestContext{}, errInvalidToken
	}
	return rc, nil
}

// AuthRequired rejects requests without a valid bearer token.
func AuthRequired(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			abortJSON(c, http.StatusUnauthorized, "missing bearer token")
			return
		}
		rc, err := ParseToken(secret, strings.TrimSpace(raw))
		if err != nil {
			abortJSON(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(requestContextKey, rc)
		c.Next()
	}
}

// RequireRoles must run after AuthRequired.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := map[string]bool{}
	for _, r := range roles {
		allowed[strings.ToLower(r)] = true
	}
	return func(c *gin.Context) {
		rc, ok := GetRequestContext(c)
		if !ok || !allowed[strings.ToLower(rc.Role)] {
			abortJSON(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

func GetRequestContext(c *gin.Context) (domain.RequestContext, bool) {
	v, ok := c.Get(requestContextKey)
	if !ok {
		return domain.RequestContext{}, false
	}
	rc, ok := v.(domain.RequestContext)
	return rc, ok
}

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":      message,
		"request_id": GetRequestID(c),
	})
}
