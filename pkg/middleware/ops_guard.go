package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"
)

// OpsGuardConfig restricts operational endpoints such as /metrics. A request passes
// when it comes from one of CIDRs, carries Token, or matches the basic auth pair.
type OpsGuardConfig struct {
	Paths         []string
	CIDRs         string
	Token         string
	BasicAuthUser string
	BasicAuthPass string
	RealIPHeader  string
}

func (c OpsGuardConfig) configured() bool {
	return strings.TrimSpace(c.CIDRs) != "" ||
		strings.TrimSpace(c.Token) != "" ||
		strings.TrimSpace(c.BasicAuthUser) != ""
}

type opsGuard struct {
	conf  OpsGuardConfig
	cidrs []netip.Prefix
}

// OpsGuard answers 404 for guarded paths unless the caller is authorized. With no
// credential configured every guarded path is hidden.
func OpsGuard(conf OpsGuardConfig) mux.MiddlewareFunc {
	g := &opsGuard{conf: conf, cidrs: parseCIDRs(conf.CIDRs)}
	return g.middleware
}

func (g *opsGuard) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.guarded(r.URL.Path) || (g.conf.configured() && g.authorized(r)) {
			next.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}

func (g *opsGuard) guarded(path string) bool {
	for _, p := range g.conf.Paths {
		p = strings.TrimRight(p, "/")
		if p != "" && (path == p || strings.HasPrefix(path, p+"/")) {
			return true
		}
	}
	return false
}

func (g *opsGuard) authorized(r *http.Request) bool {
	if len(g.cidrs) > 0 {
		if ip, ok := realIP(r, g.conf.RealIPHeader); ok {
			if addr, err := netip.ParseAddr(ip); err == nil {
				for _, p := range g.cidrs {
					if p.Contains(addr) {
						return true
					}
				}
			}
		}
	}

	if token := strings.TrimSpace(g.conf.Token); token != "" {
		if subtle.ConstantTimeCompare([]byte(tokenFromRequest(r)), []byte(token)) == 1 {
			return true
		}
	}

	if user := strings.TrimSpace(g.conf.BasicAuthUser); user != "" {
		u, p, ok := r.BasicAuth()
		if ok &&
			subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1 &&
			subtle.ConstantTimeCompare([]byte(p), []byte(g.conf.BasicAuthPass)) == 1 {
			return true
		}
	}
	return false
}

func parseCIDRs(raw string) []netip.Prefix {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t' })
	out := make([]netip.Prefix, 0, len(parts))
	for _, part := range parts {
		if p, err := netip.ParsePrefix(part); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func tokenFromRequest(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get("X-Ops-Token")); t != "" {
		return t
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

// realIP takes the first entry of a forwarded header, falling back to RemoteAddr.
func realIP(r *http.Request, header string) (string, bool) {
	v := r.RemoteAddr
	if header != "" {
		if h := strings.TrimSpace(r.Header.Get(header)); h != "" {
			v = h
			if i := strings.IndexByte(v, ','); i >= 0 {
				v = v[:i]
			}
		}
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(v); err == nil {
		return host, true
	}
	return v, true
}
