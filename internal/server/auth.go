package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// userIDKey is the gin context key holding the authenticated member.
const userIDKey = "user_id"

// Claims is the session token payload.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// MintToken signs a session token for userID. It exists for development
// and tests; real sessions are issued elsewhere.
func MintToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// parseToken verifies an HS256 token and returns its member id.
func parseToken(secret, issuer, raw string) (string, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return "", err
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", errors.New("token carries no user id")
	}
	return userID, nil
}

// requireAuth accepts the token from the Authorization header or, for
// event streams that cannot set headers, the auth_token query parameter.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !found || raw == "" {
			raw = c.Query("auth_token")
		}
		if raw == "" {
			abortError(c, http.StatusUnauthorized, "missing session token")
			return
		}

		userID, err := parseToken(s.cfg.JWT.Secret, s.cfg.JWT.Issuer, raw)
		if err != nil {
			s.logger.Debugw("rejected session token", "error", err)
			abortError(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// currentUser returns the member set by requireAuth.
func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
