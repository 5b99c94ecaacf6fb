package server

import (
	"net/http"
	"strings"
)

// checkOrigin validates WebSocket origin against configured allowed origins
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Allow requests with no origin header (e.g., direct WebSocket clients, testing)
	if origin == "" {
		return true
	}
	return s.originAllowed(origin)
}

// originAllowed matches origin against server.allowed_origins with any port.
// Entries ending in "/" (e.g. vscode-webview://) match as plain prefixes.
func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.serverConfig().AllowedOrigins {
		switch {
		case allowed == "":
		case origin == allowed, strings.HasPrefix(origin, allowed+":"):
			return true
		case strings.HasSuffix(allowed, "/") && strings.HasPrefix(origin, allowed):
			return true
		}
	}
	return false
}
