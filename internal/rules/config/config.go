package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // output.timezone must resolve in minimal containers

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/haukened/hydirect/internal/rules/domain"
)

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env string `koanf:"env" validate:"required,oneof=dev prod"`

	Log     LogConfig     `koanf:"log"`
	Fetch   FetchConfig   `koanf:"fetch"`
	Sources SourcesConfig `koanf:"sources"`
	Parser  ParserConfig  `koanf:"parser"`
	Output  OutputConfig  `koanf:"output"`
	History HistoryConfig `koanf:"history"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type LogConfig struct {
	// Level controls log verbosity: "debug", "info", "warn", or "error".
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// FetchConfig tunes the concurrent fetcher.
type FetchConfig struct {
	// Concurrency is the maximum number of requests in flight.
	Concurrency int `koanf:"concurrency" validate:"required,gte=1,lte=64"`

	// Timeout bounds each request, including reading the body.
	Timeout time.Duration `koanf:"timeout" validate:"required,min=100ms,max=10m"`

	UserAgent string `koanf:"user_agent" validate:"required"`

	// Proxy is an optional outbound proxy: socks5://, http:// or https://.
	Proxy string `koanf:"proxy" validate:"omitempty,proxy_url"`

	// CacheSize bounds the per-run response cache; 0 disables it.
	CacheSize int `koanf:"cache_size" validate:"gte=0,lte=4096"`
}

// SourcesConfig selects the source table.
type SourcesConfig struct {
	// File is an optional YAML or JSON source table; empty uses the built-in table.
	File string `koanf:"file" validate:"omitempty,file"`

	// Template builds locators from identifiers; it must contain "{name}".
	Template string `koanf:"template" validate:"required,locator_template"`
}

type ParserConfig struct {
	// Mode is "full" (all kinds) or "slim" (domain kinds only).
	Mode string `koanf:"mode" validate:"required,oneof=full slim"`
}

// OutputConfig controls the rendered list file.
type OutputConfig struct {
	Path        string   `koanf:"path" validate:"required"`
	Title       string   `koanf:"title" validate:"required"`
	Description []string `koanf:"description"`
	Timezone    string   `koanf:"timezone" validate:"required,timezone"`
	Order       string   `koanf:"order" validate:"required,oneof=priority lexical"`
}

type HistoryConfig struct {
	// DB is the bbolt run history path; empty disables history.
	DB string `koanf:"db"`
}

type MetricsConfig struct {
	// File receives Prometheus text exposition after each run; empty disables it.
	File string `koanf:"file"`
}

// DefaultTemplate points at the blackmatrix7 Quantumult X rules through ghproxy.
const DefaultTemplate = "https://ghproxy.net/https://raw.githubusercontent.com/blackmatrix7/ios_rule_script/master/rule/QuantumultX/{name}/{name}.list"

// DEFAULT_APP_CONFIG reproduces the behaviour of the legacy direct-list job:
// 20s timeout, Quantumult X user agent, Beijing time in the header.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LogConfig{Level: "info"},
	Fetch: FetchConfig{
		Concurrency: 10,
		Timeout:     20 * time.Second,
		UserAgent:   "Quantumult%20X/1.0.30",
		CacheSize:   128,
	},
	Sources: SourcesConfig{Template: DefaultTemplate},
	Parser:  ParserConfig{Mode: "full"},
	Output: OutputConfig{
		Path:  "hydirect.list",
		Title: "hydirect.list (Your Custom Direct List)",
		Description: []string{
			"适用场景: iPhone 11 极致省电 + 蛋播/WPS/直播兼容",
			"策略: 强制 DIRECT (直连)",
		},
		Timezone: "Asia/Shanghai",
		Order:    "priority",
	},
}

const envPrefix = "HYDIRECT_"

// envKeys maps supported environment variables to config keys.
// Variables with the prefix but not listed here are ignored.
var envKeys = map[string]string{
	"HYDIRECT_ENV":                "env",
	"HYDIRECT_LOG_LEVEL":          "log.level",
	"HYDIRECT_FETCH_CONCURRENCY":  "fetch.concurrency",
	"HYDIRECT_FETCH_TIMEOUT":      "fetch.timeout",
	"HYDIRECT_FETCH_USER_AGENT":   "fetch.user_agent",
	"HYDIRECT_FETCH_PROXY":        "fetch.proxy",
	"HYDIRECT_FETCH_CACHE_SIZE":   "fetch.cache_size",
	"HYDIRECT_SOURCES_FILE":       "sources.file",
	"HYDIRECT_SOURCES_TEMPLATE":   "sources.template",
	"HYDIRECT_PARSER_MODE":        "parser.mode",
	"HYDIRECT_OUTPUT_PATH":        "output.path",
	"HYDIRECT_OUTPUT_TITLE":       "output.title",
	"HYDIRECT_OUTPUT_DESCRIPTION": "output.description",
	"HYDIRECT_OUTPUT_TIMEZONE":    "output.timezone",
	"HYDIRECT_OUTPUT_ORDER":       "output.order",
	"HYDIRECT_HISTORY_DB":         "history.db",
	"HYDIRECT_METRICS_FILE":       "metrics.file",
}

// transformEnv maps one environment variable to a config key and value.
// Empty values are dropped so they cannot blank out a default.
// Description lines are separated by '|' since they contain spaces and commas.
func transformEnv(key, value string) (string, any) {
	k, ok := envKeys[key]
	if !ok {
		return "", nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if k == "output.description" {
		parts := strings.Split(value, "|")
		lines := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				lines = append(lines, p)
			}
		}
		return k, lines
	}
	return k, value
}

// envLoader loads environment variables with the prefix "HYDIRECT_".
// It can be replaced in tests.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix:        envPrefix,
		TransformFunc: transformEnv,
	}), nil)
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// validLocatorTemplate accepts http(s) URL templates containing the {name} placeholder.
func validLocatorTemplate(fl validator.FieldLevel) bool {
	tmpl := fl.Field().String()
	if !strings.Contains(tmpl, domain.NamePlaceholder) {
		return false
	}
	u, err := url.Parse(domain.ExpandTemplate(tmpl, "probe"))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// validProxyURL accepts socks5, http and https proxy URLs with a host.
func validProxyURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "socks5", "socks5h", "http", "https":
		return true
	default:
		return false
	}
}

// registerValidation registers the custom "locator_template" and "proxy_url" tags.
var registerValidation = func(v *validator.Validate) error {
	if err := v.RegisterValidation("locator_template", validLocatorTemplate); err != nil {
		return err
	}
	return v.RegisterValidation("proxy_url", validProxyURL)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}

// Ordering returns the parsed output ordering.
func (c *AppConfig) Ordering() domain.Ordering {
	o, err := domain.ParseOrdering(c.Output.Order)
	if err != nil {
		return domain.OrderPriority
	}
	return o
}

// AllowList returns the parser allow-list for the configured mode.
func (c *AppConfig) AllowList() domain.AllowList {
	a, err := domain.AllowListForMode(c.Parser.Mode)
	if err != nil {
		return domain.FullAllowList()
	}
	return a
}

// Location resolves the configured output time zone, falling back to UTC.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Output.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
