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

const identityKey = "userID"

var (
	ErrMissingToken = errors.New("no token provided")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the payload of the externally issued session token.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

func GenerateToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken verifies tokenString and returns the caller id it carries.
func ParseToken(tokenString string, secret []byte) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}

// requireIdentity resolves the caller from the Authorization bearer token.
// Websocket clients may pass the token as the "token" query parameter.
func requireIdentity(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			tokenString = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		} else if query := c.Query("token"); query != "" {
			tokenString = query
		}
		if tokenString == "" {
			sendError(c, http.StatusUnauthorized, "Unauthorized: "+ErrMissingToken.Error())
			c.Abort()
			return
		}

		userID, err := ParseToken(tokenString, secret)
		if err != nil {
			sendError(c, http.StatusUnauthorized, "Unauthorized: "+err.Error())
			c.Abort()
			return
		}
		c.Set(identityKey, userID)
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(identityKey)
}
