package config

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) func() {
	t.Helper()
	prev := make(map[string]*string, len(envs))
	for k, v := range envs {
		if old, ok := os.LookupEnv(k); ok {
			old := old
			prev[k] = &old
		} else {
			prev[k] = nil
		}
		if err := os.Setenv(k, v); err != nil {
			t.Fatalf("setenv %s: %v", k, err)
		}
	}
	return func() {
		for k, v := range prev {
			if v == nil {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, *v)
			}
		}
	}
}

func TestLoad(t *testing.T) {
	t.Run("defaults from env, no file", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{
			"AP__DATABASE_URL": "postgres://localhost/alarm",
			"AP__MQTT_BROKER":  "broker.example.com",
		})
		defer cleanup()

		cfg, err := Load(Overrides{ConfigPath: "testdata/does-not-exist.toml"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Database.URL != "postgres://localhost/alarm" {
			t.Errorf("Database.URL = %q, want env override", cfg.Database.URL)
		}
		if cfg.MQTT.Broker != "broker.example.com" {
			t.Errorf("MQTT.Broker = %q, want env override", cfg.MQTT.Broker)
		}
		if cfg.MQTT.Port != 1883 {
			t.Errorf("MQTT.Port = %d, want default 1883", cfg.MQTT.Port)
		}
		if cfg.Soundpost.PlayMode != "music" {
			t.Errorf("Soundpost.PlayMode = %q, want default music", cfg.Soundpost.PlayMode)
		}
		if cfg.HTTP.Addr != ":8089" {
			t.Errorf("HTTP.Addr = %q, want default :8089", cfg.HTTP.Addr)
		}
	})

	t.Run("http overrides", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{
			"AP__DATABASE_URL":           "postgres://localhost/alarm",
			"AP__HTTP_ADDR":              ":9090",
			"AP__HTTP_RATE_LIMIT_RPS":    "5.5",
			"AP__HTTP_RATE_LIMIT_BURST":  "10",
		})
		defer cleanup()

		cfg, err := Load(Overrides{ConfigPath: "testdata/does-not-exist.toml"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTP.Addr != ":9090" {
			t.Errorf("HTTP.Addr = %q, want env override", cfg.HTTP.Addr)
		}
		if cfg.HTTP.RateLimitRPS != 5.5 {
			t.Errorf("HTTP.RateLimitRPS = %v, want 5.5", cfg.HTTP.RateLimitRPS)
		}
		if cfg.HTTP.RateLimitBurst != 10 {
			t.Errorf("HTTP.RateLimitBurst = %d, want 10", cfg.HTTP.RateLimitBurst)
		}
	})

	t.Run("localization override wins over default", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{
			"AP__DATABASE_URL": "postgres://localhost/alarm",
		})
		defer cleanup()

		cfg, err := Load(Overrides{
			ConfigPath:      "testdata/does-not-exist.toml",
			LocalizationDir: "/etc/alarm-player/l10n",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Alarm.LocalizationPath != "/etc/alarm-player/l10n" {
			t.Errorf("Alarm.LocalizationPath = %q, want CLI override", cfg.Alarm.LocalizationPath)
		}
	})

	t.Run("missing database url fails validation", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{})
		defer cleanup()
		os.Unsetenv("AP__DATABASE_URL")

		if _, err := Load(Overrides{ConfigPath: "testdata/does-not-exist.toml"}); err == nil {
			t.Fatal("expected error for missing database.url")
		}
	})

	t.Run("invalid play mode fails validation", func(t *testing.T) {
		cleanup := setEnvs(t, map[string]string{
			"AP__DATABASE_URL":      "postgres://localhost/alarm",
			"AP__SOUNDPOST_PLAY_MODE": "shout",
		})
		defer cleanup()

		if _, err := Load(Overrides{ConfigPath: "testdata/does-not-exist.toml"}); err == nil {
			t.Fatal("expected error for invalid play_mode")
		}
	})
}
