package auth

import (
	"net/http"
	"strings"
)

// Policy decides which requests need an owner JWT. Device-facing endpoints
// are exempt here; they verify device identity at the handler instead.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds the default policy.
func NewDefaultPolicy() Policy {
	return NewPolicy(
		[]string{"/healthz", "/metrics", "/api/v1/commands/pending"},
		[]string{"/ingest/", "/api/v1/auth/", "/api/v1/telemetry/latest/", "/api/v1/telemetry/history/"},
	)
}

// NewPolicy builds a policy with explicit exemptions.
func NewPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip owner auth.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	// PATCH /api/v1/commands/{id}/complete is the device completion report.
	if r.Method == http.MethodPatch &&
		strings.HasPrefix(r.URL.Path, "/api/v1/commands/") &&
		strings.HasSuffix(r.URL.Path, "/complete") {
		return true
	}
	return false
}
