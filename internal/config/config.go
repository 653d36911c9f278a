// Package config loads relay and client configuration from the
// environment, with flag-friendly defaults.
package config

import (
	"os"
	"strings"
)

// Server holds the relay server configuration.
type Server struct {
	Addr           string
	Environment    string
	AllowedOrigins []string
}

// LoadServer reads the server configuration from the environment.
// Every field has a development-friendly default.
func LoadServer() *Server {
	origins := splitCommaSeparated(getEnv("VIBE_ALLOWED_ORIGINS", ""))

	return &Server{
		Addr:           getEnv("VIBE_ADDR", ":5000"),
		Environment:    getEnv("VIBE_ENV", "development"),
		AllowedOrigins: origins,
	}
}

// Production reports whether the server runs in production mode.
func (s *Server) Production() bool {
	return s.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitCommaSeparated splits a comma-separated list, trimming whitespace
// and dropping empty entries. An empty input yields nil.
func splitCommaSeparated(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
