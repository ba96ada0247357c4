package config

import (
	"os"
	"testing"
)

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	saved, had := os.LookupEnv(key)
	if value == "" {
		os.Unsetenv(key)
	} else {
		os.Setenv(key, value)
	}
	t.Cleanup(func() {
		if had {
			os.Setenv(key, saved)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestIsDevelopment(t *testing.T) {
	t.Run("true when development", func(t *testing.T) {
		withEnv(t, "RHEMA_ENV", "development")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true")
		}
	})

	t.Run("false when production", func(t *testing.T) {
		withEnv(t, "RHEMA_ENV", "production")
		if IsDevelopment() {
			t.Error("IsDevelopment() should return false for production")
		}
	})

	t.Run("true when unset (default)", func(t *testing.T) {
		withEnv(t, "RHEMA_ENV", "")
		if !IsDevelopment() {
			t.Error("IsDevelopment() should return true when env is unset")
		}
	})
}

func TestIsTesting(t *testing.T) {
	t.Run("true when testing", func(t *testing.T) {
		withEnv(t, "RHEMA_ENV", "testing")
		if !IsTesting() {
			t.Error("IsTesting() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		withEnv(t, "RHEMA_ENV", "development")
		if IsTesting() {
			t.Error("IsTesting() should return false for development")
		}
	})
}

func TestIsProduction(t *testing.T) {
	t.Run("true when production", func(t *testing.T) {
		withEnv(t, "RHEMA_ENV", "production")
		if !IsProduction() {
			t.Error("IsProduction() should return true")
		}
	})

	t.Run("false when development", func(t *testing.T) {
		withEnv(t, "RHEMA_ENV", "development")
		if IsProduction() {
			t.Error("IsProduction() should return false for development")
		}
	})
}

func TestParseEnvironmentEdgeCases(t *testing.T) {
	t.Run("case insensitive", func(t *testing.T) {
		env, ok := ParseEnvironment("PRODUCTION")
		if !ok || env != Production {
			t.Error("ParseEnvironment should be case insensitive")
		}
	})

	t.Run("mixed case", func(t *testing.T) {
		env, ok := ParseEnvironment("DeVeLoPmEnT")
		if !ok || env != Development {
			t.Error("ParseEnvironment should handle mixed case")
		}
	})

	t.Run("whitespace trimmed", func(t *testing.T) {
		env, ok := ParseEnvironment("  testing  ")
		if !ok || env != Testing {
			t.Error("ParseEnvironment should trim whitespace")
		}
	})

	t.Run("unknown returns development with ok=false", func(t *testing.T) {
		env, ok := ParseEnvironment("staging")
		if ok {
			t.Error("ParseEnvironment should return ok=false for unknown")
		}
		if env != Development {
			t.Error("ParseEnvironment should return Development for unknown")
		}
	})
}

func TestParseEnvIntAndDuration(t *testing.T) {
	t.Run("int parses", func(t *testing.T) {
		withEnv(t, "RHEMA_TEST_INT", "42")
		v, ok := parseEnvInt("RHEMA_TEST_INT")
		if !ok || v != 42 {
			t.Errorf("parseEnvInt = %d, %v", v, ok)
		}
	})

	t.Run("int missing", func(t *testing.T) {
		withEnv(t, "RHEMA_TEST_INT", "")
		if _, ok := parseEnvInt("RHEMA_TEST_INT"); ok {
			t.Error("parseEnvInt should report ok=false for unset var")
		}
	})

	t.Run("duration parses", func(t *testing.T) {
		withEnv(t, "RHEMA_TEST_DURATION", "5s")
		v, ok := parseEnvDuration("RHEMA_TEST_DURATION")
		if !ok || v.Seconds() != 5 {
			t.Errorf("parseEnvDuration = %v, %v", v, ok)
		}
	})
}
