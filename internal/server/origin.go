// Package server matches the Origin header of websocket upgrades against the
// allow-list compiled from the active configuration.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the compiled form of Config.AllowedOrigins. It is replaced
// wholesale by SetConfig and never mutated afterwards.
type originPolicy struct {
	wildcard bool
	allowed  map[string]struct{}
	list     []string
}

// canonicalOrigin reduces an origin to lower-case scheme://host[:port].
func canonicalOrigin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("origin %q is not of the form scheme://host", raw)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// permits reports whether a canonical origin may open a websocket on host.
// An origin naming the host itself is always accepted, which is how the
// built-in chat page connects.
func (p originPolicy) permits(origin, host string) bool {
	if p.wildcard {
		return true
	}
	if _, ok := p.allowed[origin]; ok {
		return true
	}
	_, originHost, _ := strings.Cut(origin, "://")
	return strings.EqualFold(originHost, host)
}

func currentOrigins() originPolicy {
	configMu.RLock()
	defer configMu.RUnlock()
	return activeOrigins
}

// checkOrigin is the upgrader's CheckOrigin. Requests without a usable
// Origin header are refused even under a wildcard.
func checkOrigin(r *http.Request) bool {
	header := r.Header.Get("Origin")
	if origin, err := canonicalOrigin(header); err == nil && currentOrigins().permits(origin, r.Host) {
		return true
	}

	slog.Warn("blocked websocket connection from disallowed origin",
		"origin", header,
		"remote", r.RemoteAddr)
	return false
}
