package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{
		"POLICY_FILE": "/etc/afengine/policy.json",
	})
	defer cleanup()

	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.Automotive {
			t.Error("Automotive = true, want false")
		}
		if cfg.RateLimitRPS != 50 {
			t.Errorf("RateLimitRPS = %v, want 50", cfg.RateLimitRPS)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		cfg, err := Load(Overrides{
			EnvFile:    "nonexistent.env",
			HTTPAddr:   ":9090",
			LogLevel:   "debug",
			PolicyFile: "/tmp/policy.json",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":9090" {
			t.Errorf("HTTPAddr = %q, want :9090", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.PolicyFile != "/tmp/policy.json" {
			t.Errorf("PolicyFile = %q, want /tmp/policy.json", cfg.PolicyFile)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.PolicyFile != "/etc/afengine/policy.json" {
			t.Errorf("PolicyFile = %q, want /etc/afengine/policy.json", cfg.PolicyFile)
		}
	})
}

func TestLoadMissingRequired(t *testing.T) {
	cleanup := setEnvs(t, map[string]string{"POLICY_FILE": ""})
	defer cleanup()
	os.Unsetenv("POLICY_FILE")

	_, err := Load(Overrides{EnvFile: "nonexistent.env"})
	if err == nil {
		t.Error("expected error when POLICY_FILE is missing")
	}
}

func TestValidateAutomotiveRequiresBroker(t *testing.T) {
	cfg := &Config{Automotive: true}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when AUTOMOTIVE=true without SESSION_MQTT_BROKER_URL")
	}
	cfg.SessionMQTTBrokerURL = "tcp://localhost:1883"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

// setEnvs sets environment variables and returns a cleanup function.
func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	originals := make(map[string]string)
	unset := make([]string, 0)

	for k, v := range envs {
		if orig, ok := os.LookupEnv(k); ok {
			originals[k] = orig
		} else {
			unset = append(unset, k)
		}
		os.Setenv(k, v)
	}

	return func() {
		for k, v := range originals {
			os.Setenv(k, v)
		}
		for _, k := range unset {
			os.Unsetenv(k)
		}
	}
}
