package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// TrustedProxies makes c.RealIP() honour X-Real-IP and X-Forwarded-For,
// but only for connections arriving from the given CIDRs. Rate limiting
// keys on the resulting address.
func TrustedProxies(e *echo.Echo, trustedCIDRs []string) {
	e.IPExtractor = buildIPExtractor(trustedCIDRs)
}

func buildIPExtractor(trustedCIDRs []string) echo.IPExtractor {
	var trusted []*net.IPNet
	for _, cidr := range trustedCIDRs {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			slog.Warn("ignoring invalid trusted proxy CIDR", slog.String("cidr", cidr))
			continue
		}
		trusted = append(trusted, network)
	}

	return func(req *http.Request) string {
		directIP := extractDirectIP(req.RemoteAddr)
		if !isTrusted(directIP, trusted) {
			return directIP
		}

		if realIP := req.Header.Get(echo.HeaderXRealIP); realIP != "" {
			return strings.TrimSpace(realIP)
		}
		if xff := req.Header.Get(echo.HeaderXForwardedFor); xff != "" {
			return forwardedClient(xff, trusted)
		}
		return directIP
	}
}

// forwardedClient walks the X-Forwarded-For chain from the right and
// returns the first hop not in a trusted range. Entries left of it were
// written by the client and may be forged. When every hop is trusted the
// leftmost one is the client.
func forwardedClient(xff string, trusted []*net.IPNet) string {
	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !isTrusted(hop, trusted) {
			return hop
		}
	}
	return strings.TrimSpace(hops[0])
}

func extractDirectIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func isTrusted(ipStr string, trusted []*net.IPNet) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
