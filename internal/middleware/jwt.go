package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ownerKey is where RequireAuth stores the caller's owner id.
const ownerKey = "owner_id"

var ErrMissingToken = errors.New("missing authentication token")

// ValidateToken parses an HS256 token and returns the owner id in its sub claim.
func ValidateToken(secret []byte, tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return uuid.Nil, err
	}
	owner, err := uuid.Parse(sub)
	if err != nil || owner == uuid.Nil {
		return uuid.Nil, errors.New("token subject is not an owner id")
	}
	return owner, nil
}

// bearerToken reads the Authorization header, falling back to the token query
// parameter browsers must use for websocket upgrades.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query("token")
}

// RequireAuth ensures a valid JWT is present
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header", "code": "unauthenticated"})
			return
		}

		owner, err := ValidateToken(secret, tokenString)
		if err != nil {
			logrus.WithError(err).WithField("path", c.FullPath()).Debug("rejected token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token", "code": "unauthenticated"})
			return
		}

		// Store the owner in context for downstream handlers
		c.Set(ownerKey, owner)
		c.Next()
	}
}

// OwnerID returns the authenticated owner set by RequireAuth.
func OwnerID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ownerKey); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
