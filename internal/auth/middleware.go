package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// identityClaims is the claim set minted by the upstream auth layer.
type identityClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Middleware extracts caller identity from a Bearer token signed by the
// upstream auth layer (HS256, shared secret).
//
// A missing Authorization header leaves the request anonymous - anonymous
// callers are legitimate here (public sessions, anonymous share tokens). A
// present but invalid token is rejected outright rather than silently
// downgraded to anonymous.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			ident, err := verifyToken(strings.TrimPrefix(authHeader, "Bearer "), secret)
			if err != nil {
				log.Debug().Err(err).Msg("Bearer token verification failed")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), ident)))
		})
	}
}

func verifyToken(tokenStr string, secret []byte) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &identityClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}

	claims, ok := parsed.Claims.(*identityClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, errors.New("token expired")
	}

	if claims.Subject == "" {
		return nil, errors.New("missing subject")
	}

	role := Role(claims.Role)
	if role == "" {
		role = RoleUser
	}

	return &Identity{UserID: claims.Subject, Role: role}, nil
}
