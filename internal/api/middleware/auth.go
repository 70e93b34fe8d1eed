package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Reality-Reimagined/TruthScope/internal/api/response"
)

// Auth guards the local API with a single bearer key checked against a
// bcrypt hash. A zero Auth lets every request through.
type Auth struct {
	hash []byte
}

// NewAuth creates a new Auth middleware. An empty hash disables auth.
func NewAuth(keyHash string) *Auth {
	if keyHash == "" {
		return &Auth{}
	}
	return &Auth{hash: []byte(keyHash)}
}

// Enabled reports whether requests must carry a key.
func (a *Auth) Enabled() bool {
	return a != nil && len(a.hash) > 0
}

// Authenticate validates the Bearer token and records the caller identity
// used for rate limiting.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				response.CodeInvalidToken, "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.hash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				response.CodeInvalidToken, "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(setClient(r.Context(), keyFingerprint(rawKey))))
	})
}

// keyFingerprint identifies a key without keeping it in memory.
func keyFingerprint(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return "key:" + hex.EncodeToString(sum[:8])
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
