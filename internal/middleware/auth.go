// internal/middleware/auth.go
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"blogware/internal/config"
	"blogware/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Login type labels recorded against audited operations.
const (
	LoginTypeJWT     = "jwt"
	LoginTypeSession = "session"
)

// Identity is the resolved caller of a request. Resolution is best effort:
// requests without usable credentials still pass through carrying the
// sentinel values, so the gates and the audit trail always have an actor.
type Identity struct {
	Actor       string
	UserID      int64
	SubjectKind string
	LoginType   string
}

// Subject returns the admission-control subject: the user identity when
// authenticated, otherwise the client IP.
func (i *Identity) Subject(clientIP string) string {
	if i != nil && i.UserID > 0 {
		return fmt.Sprintf("user:%d", i.UserID)
	}
	return clientIP
}

// GetIdentity extracts the resolved identity from context. A nil result
// means the resolver middleware did not run.
func GetIdentity(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(IdentityKey).(*Identity); ok {
		return identity
	}
	return nil
}

// IdentityResolver decodes the caller's identity from a bearer token or the
// session cookie. It never rejects a request; unauthenticated callers are
// marked with the unknown-actor and illegal-login sentinels.
func IdentityResolver(cfg *config.AuthConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := resolveIdentity(r, cfg)

			if identity.UserID > 0 {
				GetRequestLogger(r.Context()).Debug("Identity resolved",
					zap.String("actor", identity.Actor),
					zap.String("login_type", identity.LoginType),
				)
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resolveIdentity(r *http.Request, cfg *config.AuthConfig) *Identity {
	anonymous := &Identity{
		Actor:       models.UnknownActor,
		SubjectKind: models.SubjectKindAnonymous,
		LoginType:   models.IllegalLoginType,
	}

	token, loginType := extractToken(r, cfg)
	if token == "" {
		return anonymous
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return anonymous
	}

	identity := &Identity{
		SubjectKind: models.SubjectKindUser,
		LoginType:   loginType,
	}

	if sub, ok := claims["user_id"].(float64); ok {
		identity.UserID = int64(sub)
	}
	if username, ok := claims["username"].(string); ok && username != "" {
		identity.Actor = username
	} else if identity.UserID > 0 {
		identity.Actor = fmt.Sprintf("user:%d", identity.UserID)
	}

	if identity.UserID <= 0 || identity.Actor == "" {
		return anonymous
	}

	return identity
}

func extractToken(r *http.Request, cfg *config.AuthConfig) (token, loginType string) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if bearer, found := strings.CutPrefix(auth, "Bearer "); found {
			return bearer, LoginTypeJWT
		}
	}

	if cfg.SessionName != "" {
		if cookie, err := r.Cookie(cfg.SessionName); err == nil && cookie.Value != "" {
			return cookie.Value, LoginTypeSession
		}
	}

	return "", ""
}
