// Package auth guards the emulator bridge with a shared bearer token.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

const bearerPrefix = "Bearer "

// Validator validates a bridge access token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token denies
// everything.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Header returns the request header carrying token, or nil when token is
// empty.
func Header(token string) http.Header {
	if token == "" {
		return nil
	}
	h := http.Header{}
	h.Set("Authorization", bearerPrefix+token)
	return h
}

// TokenFromRequest reads the bearer token, falling back to the token query
// parameter for clients that cannot set headers on a websocket upgrade.
func TokenFromRequest(r *http.Request) string {
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(v, bearerPrefix))
	}
	return r.URL.Query().Get("token")
}

// Require rejects requests whose token v does not accept.
func Require(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := v.Validate(TokenFromRequest(c.Request)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "error": err.Error()})
			return
		}
		c.Next()
	}
}
