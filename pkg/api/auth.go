package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// anonymousCaller is the dev fallback identity used when no proxy header
// is present and SCRIBE_REQUIRE_IDENTITY is off.
const anonymousCaller = "api-client"

// callerKey is the gin context key the identity middleware stores the
// resolved caller under.
const callerKey = "caller"

// extractCaller extracts the caller identity from proxy headers.
// Priority: X-Forwarded-User (oauth2-proxy) > X-Forwarded-Email (oauth2-proxy) >
// X-Remote-User (kube-rbac-proxy) > "api-client"
func extractCaller(r *http.Request) string {
	if user := r.Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := r.Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := r.Header.Get("X-Remote-User"); user != "" {
		return user
	}
	return anonymousCaller
}

// identity resolves the caller once per request and stores it in the gin
// context. With requireIdentity set, requests without any proxy identity
// header are rejected instead of falling back to the dev identity.
func (s *Server) identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		resolved := extractCaller(c.Request)
		if resolved == anonymousCaller && s.requireIdentity {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Set(callerKey, resolved)
		c.Next()
	}
}

// caller returns the identity resolved by the identity middleware.
func caller(c *gin.Context) string {
	return c.GetString(callerKey)
}
