// Package middleware содержит HTTP middleware бэк-офиса.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/cod-backoffice/internal/model"
)

type contextKey string

const identityKey contextKey = "identity"

const (
	authCookieName = "backoffice_session"
	authCookieTTL  = 30 * 24 * time.Hour
)

// Identity участник, от имени которого выполняется запрос.
type Identity struct {
	ID   uuid.UUID
	Role model.Role
}

// AuthMiddleware проверяет подписанный cookie с идентификатором и ролью участника.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой секрет заменяется случайным, и тогда
// выданные cookie не переживают перезапуск.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie и добавляет Identity в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			writeError(w, http.StatusUnauthorized)
			return
		}

		id, ok := a.parseCookie(cookie.Value)
		if !ok {
			writeError(w, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SetAuthCookie выдаёт cookie для участника с указанной ролью.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, id Identity) {
	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    a.sign(payload(id)),
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func payload(id Identity) string {
	return id.ID.String() + ":" + string(id.Role)
}

func (a *AuthMiddleware) sign(data string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(data))
	return data + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(value string) (Identity, bool) {
	data, signature, ok := strings.Cut(value, ".")
	if !ok {
		return Identity{}, false
	}

	_, expected, _ := strings.Cut(a.sign(data), ".")
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return Identity{}, false
	}

	rawID, rawRole, ok := strings.Cut(data, ":")
	if !ok {
		return Identity{}, false
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Identity{}, false
	}
	role := model.Role(rawRole)
	if !role.Valid() {
		return Identity{}, false
	}

	return Identity{ID: id, Role: role}, true
}

// IdentityFromContext извлекает участника из контекста запроса.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// RequireRole пропускает запрос только для перечисленных ролей.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized)
				return
			}
			if !slices.Contains(roles, id.Role) {
				writeError(w, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + strings.ToLower(http.StatusText(status)) + `"}`))
}
