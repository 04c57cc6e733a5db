package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/hydirect/internal/rules/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "prod" {
		t.Errorf("expected Env=prod, got %q", cfg.Env)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected Log.Level=info, got %q", cfg.Log.Level)
	}
	if cfg.Fetch.Concurrency != 10 {
		t.Errorf("expected Fetch.Concurrency=10, got %d", cfg.Fetch.Concurrency)
	}
	if cfg.Fetch.Timeout != 20*time.Second {
		t.Errorf("expected Fetch.Timeout=20s, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.UserAgent != "Quantumult%20X/1.0.30" {
		t.Errorf("unexpected Fetch.UserAgent %q", cfg.Fetch.UserAgent)
	}
	if cfg.Fetch.Proxy != "" {
		t.Errorf("expected no proxy by default, got %q", cfg.Fetch.Proxy)
	}
	if cfg.Sources.Template != DefaultTemplate {
		t.Errorf("unexpected Sources.Template %q", cfg.Sources.Template)
	}
	if cfg.Sources.File != "" {
		t.Errorf("expected built-in source table by default, got %q", cfg.Sources.File)
	}
	if cfg.Parser.Mode != "full" {
		t.Errorf("expected Parser.Mode=full, got %q", cfg.Parser.Mode)
	}
	if cfg.Output.Path != "hydirect.list" {
		t.Errorf("expected Output.Path=hydirect.list, got %q", cfg.Output.Path)
	}
	if len(cfg.Output.Description) != 2 {
		t.Errorf("expected 2 description lines, got %v", cfg.Output.Description)
	}
	if cfg.Output.Timezone != "Asia/Shanghai" {
		t.Errorf("expected Output.Timezone=Asia/Shanghai, got %q", cfg.Output.Timezone)
	}
	if cfg.Ordering() != domain.OrderPriority {
		t.Errorf("expected priority ordering, got %v", cfg.Ordering())
	}
	if !cfg.AllowList().Allows(domain.KindIPCIDR) {
		t.Error("full mode should allow IP-CIDR")
	}
	if cfg.History.DB != "" || cfg.Metrics.File != "" {
		t.Errorf("history and metrics should be disabled by default: %+v %+v", cfg.History, cfg.Metrics)
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "sources.yaml")
	if err := os.WriteFile(table, []byte("sources: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("HYDIRECT_ENV", "dev")
	t.Setenv("HYDIRECT_LOG_LEVEL", "debug")
	t.Setenv("HYDIRECT_FETCH_CONCURRENCY", "4")
	t.Setenv("HYDIRECT_FETCH_TIMEOUT", "5s")
	t.Setenv("HYDIRECT_FETCH_USER_AGENT", "hydirect-test/1.0")
	t.Setenv("HYDIRECT_FETCH_PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("HYDIRECT_FETCH_CACHE_SIZE", "0")
	t.Setenv("HYDIRECT_SOURCES_FILE", table)
	t.Setenv("HYDIRECT_SOURCES_TEMPLATE", "https://mirror.example/{name}.list")
	t.Setenv("HYDIRECT_PARSER_MODE", "slim")
	t.Setenv("HYDIRECT_OUTPUT_PATH", filepath.Join(dir, "out.list"))
	t.Setenv("HYDIRECT_OUTPUT_TITLE", "lite.list")
	t.Setenv("HYDIRECT_OUTPUT_DESCRIPTION", "策略: 强制 DIRECT (直连) | domain only, no IP")
	t.Setenv("HYDIRECT_OUTPUT_TIMEZONE", "UTC")
	t.Setenv("HYDIRECT_OUTPUT_ORDER", "lexical")
	t.Setenv("HYDIRECT_HISTORY_DB", filepath.Join(dir, "history.db"))
	t.Setenv("HYDIRECT_METRICS_FILE", filepath.Join(dir, "hydirect.prom"))
	t.Setenv("HYDIRECT_UNKNOWN_SETTING", "ignored")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Env != "dev" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected env/log: %q %q", cfg.Env, cfg.Log.Level)
	}
	if cfg.Fetch.Concurrency != 4 || cfg.Fetch.Timeout != 5*time.Second || cfg.Fetch.CacheSize != 0 {
		t.Errorf("unexpected fetch config: %+v", cfg.Fetch)
	}
	if cfg.Fetch.UserAgent != "hydirect-test/1.0" || cfg.Fetch.Proxy != "socks5://127.0.0.1:1080" {
		t.Errorf("unexpected fetch config: %+v", cfg.Fetch)
	}
	if cfg.Sources.File != table || cfg.Sources.Template != "https://mirror.example/{name}.list" {
		t.Errorf("unexpected sources config: %+v", cfg.Sources)
	}
	if cfg.AllowList().Allows(domain.KindIPCIDR) {
		t.Error("slim mode should not allow IP-CIDR")
	}
	wantDesc := []string{"策略: 强制 DIRECT (直连)", "domain only, no IP"}
	if len(cfg.Output.Description) != len(wantDesc) {
		t.Fatalf("expected description %v, got %v", wantDesc, cfg.Output.Description)
	}
	for i := range wantDesc {
		if cfg.Output.Description[i] != wantDesc[i] {
			t.Errorf("Description[%d] = %q, want %q", i, cfg.Output.Description[i], wantDesc[i])
		}
	}
	if cfg.Ordering() != domain.OrderLexical {
		t.Errorf("expected lexical ordering, got %v", cfg.Ordering())
	}
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC location, got %v", cfg.Location())
	}
}

func TestLoad_EmptyValueKeepsDefault(t *testing.T) {
	t.Setenv("HYDIRECT_FETCH_TIMEOUT", "   ")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Fetch.Timeout != 20*time.Second {
		t.Errorf("expected default timeout, got %v", cfg.Fetch.Timeout)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"env", "HYDIRECT_ENV", "staging"},
		{"log level", "HYDIRECT_LOG_LEVEL", "trace"},
		{"concurrency zero", "HYDIRECT_FETCH_CONCURRENCY", "0"},
		{"concurrency too high", "HYDIRECT_FETCH_CONCURRENCY", "1000"},
		{"concurrency NaN", "HYDIRECT_FETCH_CONCURRENCY", "ten"},
		{"timeout too small", "HYDIRECT_FETCH_TIMEOUT", "1ms"},
		{"timeout garbage", "HYDIRECT_FETCH_TIMEOUT", "soon"},
		{"proxy scheme", "HYDIRECT_FETCH_PROXY", "ftp://proxy:21"},
		{"proxy no host", "HYDIRECT_FETCH_PROXY", "socks5://"},
		{"cache negative", "HYDIRECT_FETCH_CACHE_SIZE", "-1"},
		{"missing sources file", "HYDIRECT_SOURCES_FILE", "/nonexistent/sources.yaml"},
		{"template without placeholder", "HYDIRECT_SOURCES_TEMPLATE", "https://example.com/list"},
		{"template bad scheme", "HYDIRECT_SOURCES_TEMPLATE", "file:///rules/{name}.list"},
		{"parser mode", "HYDIRECT_PARSER_MODE", "lite"},
		{"timezone", "HYDIRECT_OUTPUT_TIMEZONE", "Mars/Olympus"},
		{"order", "HYDIRECT_OUTPUT_ORDER", "random"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%q, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_WhenKoanfDefaultLoadFails(t *testing.T) {
	orig := defaultLoader
	defaultLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { defaultLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatalf("expected error when loading defaults, got %v", err)
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error { return errors.New("mocked error") }
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatalf("expected error when loading env, got %v", err)
	}
}

func TestLoad_RegisterValidationFails(t *testing.T) {
	orig := registerValidation
	registerValidation = func(v *validator.Validate) error { return errors.New("mocked validation error") }
	defer func() { registerValidation = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked validation error") {
		t.Fatalf("expected error when registering validation, got %v", err)
	}
}

func TestTransformEnv(t *testing.T) {
	if k, v := transformEnv("HYDIRECT_PARSER_MODE", " slim "); k != "parser.mode" || v != "slim" {
		t.Errorf("transformEnv mode = %q, %v", k, v)
	}
	if k, _ := transformEnv("HYDIRECT_NOPE", "x"); k != "" {
		t.Errorf("unknown key should be dropped, got %q", k)
	}
	if k, _ := transformEnv("HYDIRECT_OUTPUT_PATH", ""); k != "" {
		t.Errorf("empty value should be dropped, got %q", k)
	}
	k, v := transformEnv("HYDIRECT_OUTPUT_DESCRIPTION", "a | | b, c")
	lines, ok := v.([]string)
	if k != "output.description" || !ok || len(lines) != 2 || lines[1] != "b, c" {
		t.Errorf("description transform = %q, %#v", k, v)
	}
}

func TestAppConfig_Fallbacks(t *testing.T) {
	cfg := &AppConfig{
		Parser: ParserConfig{Mode: "bogus"},
		Output: OutputConfig{Order: "bogus", Timezone: "Nowhere/Void"},
	}
	if cfg.Ordering() != domain.OrderPriority {
		t.Error("invalid order should fall back to priority")
	}
	if !cfg.AllowList().Allows(domain.KindUserAgent) {
		t.Error("invalid mode should fall back to the full allow-list")
	}
	if cfg.Location() != time.UTC {
		t.Error("invalid timezone should fall back to UTC")
	}
}
