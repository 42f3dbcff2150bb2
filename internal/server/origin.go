// Package server normalizes and validates HTTP origins for WebSocket and
// cross-origin requests to enforce configured access control.
package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// OriginPolicy decides whether a request origin may connect. It is built once
// from the configured allow-list; "*" anywhere in the list allows everything.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
	logger   *slog.Logger
}

// NewOriginPolicy normalizes the configured origins into a policy. Invalid
// entries are logged and skipped.
func NewOriginPolicy(origins []string, logger *slog.Logger) *OriginPolicy {
	policy := &OriginPolicy{
		allowed: make(map[string]struct{}, len(origins)),
		logger:  logger,
	}

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			policy.allowAll = true
			continue
		}
		normalized, ok := normalizeOrigin(trimmed)
		if !ok {
			logger.Warn("ignoring invalid origin in configuration", "origin", origin)
			continue
		}
		policy.allowed[normalized] = struct{}{}
	}

	return policy
}

// AllowsOrigin reports whether the given Origin header value is permitted.
func (p *OriginPolicy) AllowsOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	normalized, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	_, exists := p.allowed[normalized]
	return exists
}

// AllowAll reports whether the policy was configured with "*".
func (p *OriginPolicy) AllowAll() bool {
	return p.allowAll
}

// CheckRequest is the upgrader's origin check. Browsers always send an Origin
// header on WebSocket upgrades; requests without one (non-browser clients)
// are allowed through, matching the original deployment.
func (p *OriginPolicy) CheckRequest(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if p.AllowsOrigin(origin) {
		return true
	}
	p.logger.Warn("blocked connection from disallowed origin", "origin", origin)
	return false
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", false
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}
