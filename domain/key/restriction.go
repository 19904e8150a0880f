package key

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// ErrInvalidRestriction is returned for malformed domain or IP values.
var ErrInvalidRestriction = errors.New("invalid restriction")

// DomainRestriction limits a key to requests from a given domain.
type DomainRestriction struct {
	ID     string
	KeyID  string
	Domain string
}

// IPRestriction limits a key to requests from a given client IP.
type IPRestriction struct {
	ID    string
	KeyID string
	IP    string
}

// Restrictions groups all restrictions attached to a key.
type Restrictions struct {
	Domains []DomainRestriction
	IPs     []IPRestriction
}

// Empty reports whether no restriction is configured.
func (r Restrictions) Empty() bool {
	return len(r.Domains) == 0 && len(r.IPs) == 0
}

// Origin describes where a request came from.
type Origin struct {
	Origin   string // Origin header
	Referer  string // Referer header, used when Origin is empty
	RemoteIP string
}

// NormalizeDomain lowercases a domain and strips scheme, port and path.
func NormalizeDomain(s string) (string, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "", ErrInvalidRestriction
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return "", ErrInvalidRestriction
		}
		s = u.Host
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	if s == "" || strings.ContainsAny(s, " \t") {
		return "", ErrInvalidRestriction
	}
	return s, nil
}

// NormalizeIP validates an IP and returns its canonical form.
func NormalizeIP(s string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return "", ErrInvalidRestriction
	}
	return ip.String(), nil
}

// Permits reports whether a request origin satisfies the restrictions.
// A key without restrictions permits everything; otherwise one match suffices.
// This is a PURE function.
func (r Restrictions) Permits(o Origin) bool {
	if r.Empty() {
		return true
	}

	if host := requestHost(o); host != "" {
		for _, d := range r.Domains {
			if strings.EqualFold(d.Domain, host) {
				return true
			}
		}
	}

	if ip, err := NormalizeIP(o.RemoteIP); err == nil {
		for _, rip := range r.IPs {
			if rip.IP == ip {
				return true
			}
		}
	}

	return false
}

func requestHost(o Origin) string {
	src := o.Origin
	if src == "" {
		src = o.Referer
	}
	if src == "" {
		return ""
	}
	host, err := NormalizeDomain(src)
	if err != nil {
		return ""
	}
	return host
}
