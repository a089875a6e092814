package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Auth cache (stale-while-revalidate) ---

type cacheEntry struct {
	expiresAt  time.Time
	refreshing atomic.Bool
}

type authCache struct {
	store sync.Map // map[string]*cacheEntry (keyed by full API key)
	ttl   time.Duration
}

func newAuthCache(ttl time.Duration) *authCache {
	return &authCache{ttl: ttl}
}

func (c *authCache) get(key string) (hit bool, needsRefresh bool) {
	v, ok := c.store.Load(key)
	if !ok {
		return false, false
	}
	entry := v.(*cacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return true, false
	}
	// Stale: serve the hit, let exactly one goroutine refresh.
	needsRefresh = entry.refreshing.CompareAndSwap(false, true)
	return true, needsRefresh
}

func (c *authCache) set(key string) {
	c.store.Store(key, &cacheEntry{expiresAt: time.Now().Add(c.ttl)})
}

// --- Auth middleware ---

// authMiddleware returns a wrapper validating Bearer etk_ service keys
// against the configured bcrypt hashes, with one shared cache across
// routes. With no keys configured every request passes; that is the
// development mode, and NewRouter logs it.
func (d *Dependencies) authMiddleware() func(http.HandlerFunc) http.HandlerFunc {
	if len(d.Keys) == 0 {
		return func(next http.HandlerFunc) http.HandlerFunc { return next }
	}
	cache := newAuthCache(d.CacheTTL)

	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Missing or invalid Authorization header"})
				return
			}
			if len(token) < 8 || !strings.HasPrefix(token, "etk_") {
				writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key format"})
				return
			}

			hit, needsRefresh := cache.get(token)
			if hit && needsRefresh {
				go d.refreshAuth(cache, token)
			}
			if hit {
				next(w, r)
				return
			}

			if !d.authenticateToken(token) {
				d.Logger.Warn("auth failed", zap.String("prefix", keyPrefix(token)))
				writeJSON(w, http.StatusUnauthorized, ErrorResp{Detail: "Invalid API key"})
				return
			}
			cache.set(token)
			next(w, r)
		}
	}
}

// authenticateToken compares token against every configured key whose
// prefix matches.
func (d *Dependencies) authenticateToken(token string) bool {
	for _, k := range d.Keys {
		if !strings.HasPrefix(token, k.Prefix) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(token)) == nil {
			return true
		}
	}
	return false
}

// refreshAuth revalidates a stale cache entry in the background.
func (d *Dependencies) refreshAuth(cache *authCache, token string) {
	if d.authenticateToken(token) {
		cache.set(token)
		return
	}
	cache.store.Delete(token)
}

func keyPrefix(token string) string {
	if len(token) > 12 {
		return token[:12]
	}
	return token
}

// extractBearerToken extracts the token from "Authorization: Bearer <token>".
func extractBearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// --- JSON helpers ---

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}

// --- Request logging ---

func (d *Dependencies) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		d.Metrics.IncrementHTTPRequests()
		if sw.status >= http.StatusInternalServerError {
			d.Metrics.IncrementHTTPErrors()
		}
		d.Logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
