package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvOpenAIKey, EnvOpenAIBase, EnvModel, EnvAMapKey} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.Planner.MaxDays != 30 || cfg.LLM.Model != "gpt-4o" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
listen: ":9000"
llm:
  base_url: https://dashscope.aliyuncs.com/compatible-mode/v1
  model: qwen-plus
amap:
  api_key: file-key
  disable_proxy: true
basic_auth:
  username: admin
  password: secret
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" || cfg.LLM.Model != "qwen-plus" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.AMap.APIKey != "file-key" || !cfg.AMap.DisableProxy {
		t.Errorf("amap = %+v", cfg.AMap)
	}
	if cfg.AMap.PageSize != 10 || cfg.Planner.MaxDays != 30 || cfg.LogLevel != "info" {
		t.Errorf("defaults not filled: %+v", cfg)
	}
	if cfg.BasicAuth == nil || cfg.BasicAuth.Username != "admin" {
		t.Errorf("basic auth = %+v", cfg.BasicAuth)
	}
}

func TestReadDoesNotCreateFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvModel, "qwen-plus")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Planner.MaxDays != 30 || cfg.LLM.Model != "qwen-plus" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Read wrote %s (stat err = %v)", path, err)
	}
}

func TestReadExistingFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timezone: Asia/Shanghai\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if cfg.Timezone != "Asia/Shanghai" || cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestApplyEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIKey, "sk-env")
	t.Setenv(EnvModel, "qwen-plus")
	t.Setenv(EnvAMapKey, "amap-env")

	cfg := DefaultConfig()
	cfg.LLM.BaseURL = "https://example.test/v1"
	cfg.ApplyEnv()

	if cfg.LLM.APIKey != "sk-env" || cfg.LLM.Model != "qwen-plus" || cfg.AMap.APIKey != "amap-env" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if cfg.LLM.BaseURL != "https://example.test/v1" {
		t.Errorf("unset env overrode base url: %q", cfg.LLM.BaseURL)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("AMAP_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	// godotenv never overrides a set variable, even an empty one.
	os.Unsetenv(EnvAMapKey)

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv(EnvAMapKey); got != "from-dotenv" {
		t.Errorf("%s = %q", EnvAMapKey, got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Shanghai"
	cfg.Planner.MaxDays = 14

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Timezone != "Asia/Shanghai" || got.Planner.MaxDays != 14 {
		t.Errorf("round trip lost values: %+v", got)
	}
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	if loc, err := cfg.Location(); err != nil || loc != time.Local {
		t.Errorf("Local: %v, %v", loc, err)
	}

	cfg.Timezone = "Not/AZone"
	loc, err := cfg.Location()
	if err == nil {
		t.Error("expected error for unknown zone")
	}
	if loc != time.Local {
		t.Errorf("fallback = %v, want Local", loc)
	}
}
