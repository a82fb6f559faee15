package config

import (
	"os"
	"strconv"
	"strings"
)

// DeviationWorkerEnabled controls whether the HTTP server starts the background
// escalation worker. Disable it on extra replicas: the worker assumes it is the
// only evaluator.
//
// Set via env:
// - DEVIATION_WORKER_ENABLED=false
func DeviationWorkerEnabled() bool {
	return boolFromEnv("DEVIATION_WORKER_ENABLED", true)
}

// SkipMigrations skips AutoMigrate on startup.
//
// Set via env:
// - SKIP_MIGRATIONS=true
func SkipMigrations() bool {
	return boolFromEnv("SKIP_MIGRATIONS", false)
}

func boolFromEnv(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return def
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
