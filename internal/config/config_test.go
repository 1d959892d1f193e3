package config

import (
	"strings"
	"testing"
)

// mapBackend is an in-memory ConfigBackend for tests.
type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m mapBackend) SetString(key, val string) error { m[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error { m[key] = val; return nil }
func (m mapBackend) Delete(key string) error          { delete(m, key); return nil }

func noSecret(string) (string, error) { return "", nil }

func withKey(account string) (string, error) { return "secret-from-file", nil }

func TestDefaults(t *testing.T) {
	t.Setenv("KISAN_ADVISORY_API_KEY", "env-key")

	cfg, err := loadWith(mapBackend{}, noSecret)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Advisory.Model == "" || cfg.Advisory.BaseURL == "" {
		t.Errorf("advisory defaults missing: %+v", cfg.Advisory)
	}
	if cfg.Locale.Default != "en" {
		t.Errorf("default locale = %q", cfg.Locale.Default)
	}
	if cfg.Advisory.APIKey != "env-key" {
		t.Errorf("API key = %q", cfg.Advisory.APIKey)
	}
}

func TestBackendValuesApplied(t *testing.T) {
	t.Setenv("KISAN_ADVISORY_API_KEY", "k")

	b := mapBackend{
		"server.port":    4700,
		"advisory.model": "other-model",
		"voice.enabled":  "false",
	}
	cfg, err := loadWith(b, noSecret)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4700 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Advisory.Model != "other-model" {
		t.Errorf("model = %q", cfg.Advisory.Model)
	}
	if cfg.Voice.Enabled {
		t.Error("voice.enabled backend value ignored")
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("KISAN_ADVISORY_API_KEY", "k")
	t.Setenv("KISAN_SERVER_PORT", "5000")
	t.Setenv("KISAN_LOCALE_DEFAULT", "kn")

	b := mapBackend{"server.port": 4700}
	cfg, err := loadWith(b, noSecret)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("env override lost: port = %d", cfg.Server.Port)
	}
	if cfg.Locale.Default != "kn" {
		t.Errorf("locale = %q", cfg.Locale.Default)
	}
}

func TestMissingAPIKeyFails(t *testing.T) {
	t.Setenv("KISAN_ADVISORY_API_KEY", "")

	_, err := loadWith(mapBackend{}, noSecret)
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
	if !strings.Contains(err.Error(), "advisory API key") {
		t.Errorf("unhelpful error: %v", err)
	}
}

func TestAPIKeyFromSecretsFile(t *testing.T) {
	t.Setenv("KISAN_ADVISORY_API_KEY", "")

	cfg, err := loadWith(mapBackend{}, withKey)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Advisory.APIKey != "secret-from-file" {
		t.Errorf("API key = %q", cfg.Advisory.APIKey)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	t.Setenv("KISAN_ADVISORY_API_KEY", "super-secret")

	cfg, err := loadWith(mapBackend{}, noSecret)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	for _, k := range ShowAll(cfg) {
		if k.Key == "advisory.api_key" || strings.Contains(k.Value, "super-secret") {
			t.Errorf("secret leaked in ShowAll: %+v", k)
		}
	}
}
