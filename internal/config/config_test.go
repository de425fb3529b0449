package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port 0")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_MissingEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.Endpoint = ""
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if !strings.Contains(err.Error(), "analysis.endpoint") {
		t.Errorf("error should name the field, got: %v", err)
	}
}

func TestValidate_Transfer(t *testing.T) {
	for _, mode := range []string{"url", "base64"} {
		cfg := Defaults()
		cfg.Analysis.Transfer = mode
		if err := Validate(cfg); err != nil {
			t.Fatalf("transfer %q should be valid: %v", mode, err)
		}
	}

	cfg := Defaults()
	cfg.Analysis.Transfer = "both"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for transfer=both")
	}
}

func TestValidate_Timeout(t *testing.T) {
	cfg := Defaults()
	cfg.Analysis.Timeout = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for zero timeout")
	}
}

func TestValidate_TelegramTokenRequired(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for telegram enabled without token")
	}
	cfg.Telegram.Token = "123:abc"
	if err := Validate(cfg); err != nil {
		t.Fatalf("telegram with token should be valid: %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	original := Defaults()
	original.Server.Port = 10000
	original.Analysis.Timeout = Duration(45 * time.Second)

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.Port != 10000 {
		t.Fatalf("expected port 10000, got %d", loaded.Server.Port)
	}
	if loaded.Analysis.Timeout.Std() != 45*time.Second {
		t.Fatalf("expected 45s, got %s", loaded.Analysis.Timeout.Std())
	}
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foodrelay.yaml")
	yml := `
server:
  port: 3100
analysis:
  endpoint: http://localhost:9000/analyze
  timeout: 30s
  transfer: base64
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 3100 {
		t.Errorf("expected port 3100, got %d", cfg.Server.Port)
	}
	if cfg.Analysis.Transfer != "base64" {
		t.Errorf("expected base64, got %s", cfg.Analysis.Transfer)
	}
	if cfg.Analysis.Timeout.Std() != 30*time.Second {
		t.Errorf("expected 30s, got %s", cfg.Analysis.Timeout.Std())
	}
	// Untouched sections keep their defaults.
	if cfg.Cliq.AuthScheme != "Zoho-oauthtoken" {
		t.Errorf("expected default auth scheme, got %q", cfg.Cliq.AuthScheme)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefaults_MissingFile(t *testing.T) {
	cfg, found, err := LoadOrDefaults(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("expected defaults, got: %v", err)
	}
	if found {
		t.Error("found should be false for a missing file")
	}
	if cfg.Analysis.Endpoint != DefaultAnalysisEndpoint {
		t.Errorf("expected default endpoint, got %s", cfg.Analysis.Endpoint)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// --- Environment ---

func TestApplyEnv_Overrides(t *testing.T) {
	t.Setenv("ANALYSIS_ENDPOINT", "http://analysis.internal/analyze")
	t.Setenv("PORT", "10000")
	t.Setenv("REQUEST_TIMEOUT", "90s")

	cfg := Defaults()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Analysis.Endpoint != "http://analysis.internal/analyze" {
		t.Errorf("endpoint not overridden: %s", cfg.Analysis.Endpoint)
	}
	if cfg.Server.Port != 10000 {
		t.Errorf("port not overridden: %d", cfg.Server.Port)
	}
	if cfg.Analysis.Timeout.Std() != 90*time.Second {
		t.Errorf("timeout not overridden: %s", cfg.Analysis.Timeout.Std())
	}
}

func TestApplyEnv_UnsetKeepsValues(t *testing.T) {
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")

	cfg := Defaults()
	cfg.Server.Port = 4000
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("expected port to stay 4000, got %d", cfg.Server.Port)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOODRELAY_TEST_HOST", "example.org")

	got := ExpandEnvVars(`{"a":"${FOODRELAY_TEST_HOST}","b":"${FOODRELAY_UNSET_VAR:-fallback}","c":"${FOODRELAY_UNSET_VAR}"}`)
	want := `{"a":"example.org","b":"fallback","c":"${FOODRELAY_UNSET_VAR}"}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPath(t *testing.T) {
	val, err := GetByPath(Defaults(), "analysis.transfer")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "url" {
		t.Fatalf("expected 'url', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(Defaults(), "nonexistent.path"); err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.port", "10000"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if err := SetByPath(cfg, "relay.cards", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if err := SetByPath(cfg, "analysis.timeout", "2m"); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	if cfg.Server.Port != 10000 {
		t.Errorf("expected port 10000, got %d", cfg.Server.Port)
	}
	if cfg.Relay.Cards {
		t.Error("expected relay.cards=false")
	}
	if cfg.Analysis.Timeout.Std() != 2*time.Minute {
		t.Errorf("expected 2m, got %s", cfg.Analysis.Timeout.Std())
	}
}

func TestSetByPath_UnknownKey(t *testing.T) {
	if err := SetByPath(Defaults(), "server.prot", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestSanitize_MasksToken(t *testing.T) {
	cfg := Defaults()
	cfg.Telegram.Token = "123456789:ABCDEFGHIJ"
	s := Sanitize(cfg)
	if s.Telegram.Token == cfg.Telegram.Token {
		t.Fatal("token should be masked")
	}
	if cfg.Telegram.Token != "123456789:ABCDEFGHIJ" {
		t.Fatal("original config must not be modified")
	}
}

func TestListPaths_Sorted(t *testing.T) {
	paths, values := ListPaths(Defaults())
	if len(paths) == 0 {
		t.Fatal("expected paths")
	}
	for i := 1; i < len(paths); i++ {
		if paths[i-1] > paths[i] {
			t.Fatalf("paths not sorted: %s > %s", paths[i-1], paths[i])
		}
	}
	if values["server.port"] != float64(DefaultPort) {
		t.Errorf("expected server.port=%d, got %v", DefaultPort, values["server.port"])
	}
}
