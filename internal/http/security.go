package http

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
)

// securityMetrics tracks security-related events.
type securityMetrics struct {
	rateLimitHits      int64
	suspiciousRequests int64
}

// trustedProxies defines networks that are trusted to set forwarding headers.
var trustedProxies = []*net.IPNet{
	parsecidr("127.0.0.0/8"),    // localhost
	parsecidr("10.0.0.0/8"),     // private networks
	parsecidr("172.16.0.0/12"),  // private networks
	parsecidr("192.168.0.0/16"), // private networks
}

func parsecidr(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

func isTrustedProxy(ip net.IP) bool {
	for _, network := range trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// extractClientIP returns the peer address, or the forwarded client address
// when the peer is a trusted proxy.
func extractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil || !isTrustedProxy(parsedDirectIP) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		clientIP := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(clientIP) != nil {
			return clientIP
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}
	return directIP
}

var suspiciousPatterns = []string{
	"../", "..\\", ".env", "wp-admin", "phpmyadmin",
	"admin.php", "config.php", ".git", ".ssh",
	"eval(", "javascript:", "<script", "union select",
	"etc/passwd", "cmd.exe",
}

var suspiciousAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "scanner"}

// detectSuspiciousRequest flags probing traffic. Flagged requests are still
// served; they are only logged and counted.
func detectSuspiciousRequest(r *http.Request, metrics *securityMetrics) bool {
	suspicious := false

	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(path, pattern) || strings.Contains(query, pattern) {
			suspicious = true
			break
		}
	}

	userAgent := strings.ToLower(r.Header.Get("User-Agent"))
	for _, agent := range suspiciousAgents {
		if strings.Contains(userAgent, agent) {
			suspicious = true
			break
		}
	}

	switch r.Method {
	case "TRACE", "TRACK", "DEBUG", "CONNECT":
		suspicious = true
	}

	if len(r.URL.String()) > 2048 {
		suspicious = true
	}

	if suspicious && metrics != nil {
		atomic.AddInt64(&metrics.suspiciousRequests, 1)
	}
	return suspicious
}

// HeadersConfig holds security headers configuration
type HeadersConfig struct {
	CSP                 string
	HSTSMaxAge          int
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	CrossOriginResource string
}

// DefaultHeadersConfig returns defaults for a JSON-only API.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                 "default-src 'none'; frame-ancestors 'none'",
		HSTSMaxAge:          31536000, // 1 year
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "no-referrer",
		CrossOriginResource: "same-origin",
	}
}

func (c HeadersConfig) apply(w http.ResponseWriter, r *http.Request) {
	headers := w.Header()
	headers.Set("X-Content-Type-Options", c.XContentTypeOptions)
	headers.Set("X-Frame-Options", c.XFrameOptions)
	headers.Set("Referrer-Policy", c.ReferrerPolicy)
	headers.Set("Cross-Origin-Resource-Policy", c.CrossOriginResource)
	if c.CSP != "" {
		headers.Set("Content-Security-Policy", c.CSP)
	}
	// HSTS only for HTTPS
	if r.TLS != nil && c.HSTSMaxAge > 0 {
		headers.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", c.HSTSMaxAge))
	}
}
