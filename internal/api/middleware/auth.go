package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"github.com/kiranshivaraju/phrasetracker/internal/api/response"
	"github.com/kiranshivaraju/phrasetracker/internal/config"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefixLen = config.APIKeyPrefixLen

	// verified keys remembered before the set is reset
	maxVerifiedKeys = 1024
)

type apiKey struct {
	name string
	hash []byte
}

// Auth checks API keys against the configured bcrypt hashes. Keys are
// indexed by their clear prefix, so a request costs at most one bcrypt
// comparison per configured key sharing that prefix. Keys that verified
// once are remembered by SHA-256 digest.
type Auth struct {
	byPrefix map[string][]apiKey
	compare  func(hash, key []byte) error

	mu       sync.Mutex
	verified map[[sha256.Size]byte]string
}

// NewAuth creates Auth from the configured keys. No keys disables
// authentication.
func NewAuth(keys []config.APIKey) *Auth {
	a := &Auth{
		byPrefix: make(map[string][]apiKey, len(keys)),
		compare:  bcrypt.CompareHashAndPassword,
		verified: make(map[[sha256.Size]byte]string),
	}
	for _, k := range keys {
		a.byPrefix[k.Prefix] = append(a.byPrefix[k.Prefix], apiKey{name: k.Name, hash: []byte(k.Hash)})
	}
	return a
}

// Enabled reports whether any keys are configured.
func (a *Auth) Enabled() bool { return len(a.byPrefix) > 0 }

// Authenticate accepts "Authorization: Bearer <key>" or "X-API-Key: <key>"
// and stores the matching key name in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractKey(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		if len(rawKey) < keyPrefixLen {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key format", nil)
			return
		}

		name, ok := a.lookup(rawKey)
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid API key", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetKeyName(r.Context(), name)))
	})
}

func (a *Auth) lookup(rawKey string) (string, bool) {
	digest := sha256.Sum256([]byte(rawKey))

	a.mu.Lock()
	name, ok := a.verified[digest]
	a.mu.Unlock()
	if ok {
		return name, true
	}

	for _, key := range a.byPrefix[rawKey[:keyPrefixLen]] {
		if a.compare(key.hash, []byte(rawKey)) == nil {
			a.remember(digest, key.name)
			return key.name, true
		}
	}
	return "", false
}

func (a *Auth) remember(digest [sha256.Size]byte, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.verified) >= maxVerifiedKeys {
		clear(a.verified)
	}
	a.verified[digest] = name
}

func extractKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
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
