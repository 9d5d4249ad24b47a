package config

import "os"

// Getenv returns the value of an environment variable or a fallback
func Getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Port is the HTTP listen port
func Port() string { return Getenv("PORT", "8080") }

// RedisAddr is the optional redis address for cross-instance lobby fan-out.
// Empty means single-process mode: events are broadcast locally only.
func RedisAddr() string { return os.Getenv("REDIS_ADDR") }

// RedisPassword is the redis auth password, empty for none
func RedisPassword() string { return os.Getenv("REDIS_PASSWORD") }
