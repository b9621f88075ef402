package config

import (
	"os"
	"testing"
	"time"
)

func TestGetEnvOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "STUDYHUB_TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "STUDYHUB_TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}

			result := getEnvOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsIntOrDefault(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "STUDYHUB_TEST_INT_1", "42", 10, 42},
		{"uses default for empty", "STUDYHUB_TEST_INT_2", "", 10, 10},
		{"uses default for non-numeric", "STUDYHUB_TEST_INT_3", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv(tc.key, tc.envValue)
			}

			result := getEnvAsIntOrDefault(tc.key, tc.defaultVal)
			if result != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, result)
			}
		})
	}
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{"parses duration", "90s", 90 * time.Second},
		{"uses default for empty", "", time.Minute},
		{"uses default for garbage", "soon", time.Minute},
		{"uses default for negative", "-5s", time.Minute},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.envValue != "" {
				t.Setenv("STUDYHUB_TEST_DURATION", tc.envValue)
			}

			result := getEnvAsDurationOrDefault("STUDYHUB_TEST_DURATION", time.Minute)
			if result != tc.expected {
				t.Errorf("Expected %s, got %s", tc.expected, result)
			}
		})
	}
}

func TestMustGetEnv_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for missing required env var")
		}
	}()

	os.Unsetenv("STUDYHUB_NONEXISTENT_REQUIRED_VAR")
	mustGetEnv("STUDYHUB_NONEXISTENT_REQUIRED_VAR")
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/studyhub")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "secret")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.WSTicketTTL != 2*time.Minute {
		t.Errorf("Expected default ticket TTL 2m, got %s", cfg.WSTicketTTL)
	}
	if cfg.AchievementWorkers != 3 {
		t.Errorf("Expected 3 achievement workers, got %d", cfg.AchievementWorkers)
	}
	if cfg.StreakLocation() != time.UTC {
		t.Errorf("Expected UTC streak location")
	}
}

func TestStreakLocation_InvalidFallsBackToUTC(t *testing.T) {
	cfg := &Config{StreakTimezone: "Not/AZone"}
	if cfg.StreakLocation() != time.UTC {
		t.Errorf("Expected fallback to UTC for invalid timezone")
	}
}
