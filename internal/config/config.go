// Package config loads the single configuration document recognized by
// each process role (controller, worker). Each role's struct is built from
// built-in defaults, then an optional JSON file overlay, then an
// environment-variable overlay keyed by a role-specific prefix. Environment
// wins over file; file wins over built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AuthMode selects how the controller authenticates incoming requests.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthAPIKey AuthMode = "api_key"
	AuthJWT    AuthMode = "jwt"
	AuthHybrid AuthMode = "hybrid"
)

// JWTProvider configures one entry of the closed JWT provider variant set.
type JWTProvider struct {
	Name         string `json:"name"`
	Variant      string `json:"variant"` // "A", "B", or "C"
	IssuerURL    string `json:"issuer_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	JWKSURL      string `json:"jwks_url,omitempty"` // variant C only
}

// ControllerConfig is the controller process's configuration document.
type ControllerConfig struct {
	ListenAddr string `json:"listen_addr"`
	DataDir    string `json:"data_dir"`
	LogLevel   string `json:"log_level"`

	InventoryType  string `json:"inventory_type"`
	InventoryPath  string `json:"inventory_path"`  // yamlfile backend
	InventoryDSN   string `json:"inventory_dsn"`    // netbox/nms backends
	InventoryTable string `json:"inventory_table"`  // netbox/nms backends

	// InventoryFilter is ANDed onto every inline/named per-request filter
	// (spec.md:362's open question, decided in SPEC_FULL.md §6 decision 3).
	InventoryFilter map[string]string `json:"inventory_filter"`

	CredentialPlugin string `json:"credential_plugin"`
	CredentialPath   string `json:"credential_path"` // file backend

	AuthMode        AuthMode      `json:"auth_mode"`
	APIKeys         []string      `json:"api_keys"`
	APIKeyHeaders   []string      `json:"api_key_headers"`
	JWTProviders    []JWTProvider `json:"jwt_providers"`
	JWTRequireHTTPS bool          `json:"jwt_require_https"`
	JWTLeewayS      int           `json:"jwt_leeway_s"`

	AllowedUsers      []string `json:"allowed_users"`
	AllowedDomains    []string `json:"allowed_domains"`
	AllowedUserRegex  []string `json:"allowed_user_regex"`

	CacheEnabled    bool   `json:"cache_enabled"`
	CacheDefaultTTL int    `json:"cache_default_ttl"`
	CacheMaxTTL     int    `json:"cache_max_ttl"`
	CacheKeyPrefix  string `json:"cache_key_prefix"`

	CustomTemplateDir  string `json:"custom_template_dir"`
	BuiltinTemplateDir string `json:"builtin_template_dir"`

	// APIKeyDBPath stores the bcrypt-hashed API key registry, used when
	// AuthMode is api_key or hybrid.
	APIKeyDBPath string `json:"api_key_db_path"`
}

// WorkerConfig is the worker process's configuration document.
type WorkerConfig struct {
	QueueDBPath string `json:"queue_db_path"`
	LogLevel    string `json:"log_level"`

	WorkerID         string `json:"worker_id"`
	CredentialPlugin string `json:"credential_plugin"`

	WorkerLivenessS int `json:"worker_liveness_s"`
	LeaseTTLS       int `json:"lease_ttl_s"`
	ShutdownGraceS  int `json:"shutdown_grace_s"`

	// PluginOptions holds the "plugin_<name>_<option>" namespaced keys,
	// stripped of their plugin-name prefix at lookup time by callers.
	PluginOptions map[string]string `json:"plugin_options"`
}

// DefaultController returns built-in defaults for the controller role.
func DefaultController() ControllerConfig {
	return ControllerConfig{
		ListenAddr:        ":8080",
		DataDir:           "./data",
		LogLevel:          "info",
		InventoryType:     "yamlfile",
		InventoryPath:     "./data/inventory.yaml",
		InventoryTable:    "devices",
		InventoryFilter:   map[string]string{},
		CredentialPlugin:  "file",
		CredentialPath:    "./data/credentials.yaml",
		AuthMode:          AuthNone,
		APIKeyHeaders:     []string{"Authorization"},
		JWTRequireHTTPS:   true,
		JWTLeewayS:        30,
		CacheEnabled:      true,
		CacheDefaultTTL:   300,
		CacheMaxTTL:       3600,
		CacheKeyPrefix:    "cache:",
		CustomTemplateDir:  "./templates/custom",
		BuiltinTemplateDir: "./templates/builtin",
		APIKeyDBPath:      "./data/apikeys.db",
	}
}

// DefaultWorker returns built-in defaults for the worker role.
func DefaultWorker() WorkerConfig {
	return WorkerConfig{
		QueueDBPath:      "./data/queue.db",
		LogLevel:         "info",
		CredentialPlugin: "file",
		WorkerLivenessS:  60,
		LeaseTTLS:        300,
		ShutdownGraceS:   30,
		PluginOptions:    map[string]string{},
	}
}

// LoadController builds a ControllerConfig from defaults, an optional JSON
// file at path (skipped if empty or missing), and CONTROLLER_* env vars.
func LoadController(path string) (ControllerConfig, error) {
	cfg := DefaultController()
	if path != "" {
		if err := loadJSONFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyControllerEnv(&cfg, "CONTROLLER_")
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWorker builds a WorkerConfig the same way, under the WORKER_ prefix.
func LoadWorker(path string) (WorkerConfig, error) {
	cfg := DefaultWorker()
	if path != "" {
		if err := loadJSONFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	applyWorkerEnv(&cfg, "WORKER_")
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyControllerEnv(cfg *ControllerConfig, prefix string) {
	if v, ok := lookupEnv(prefix, "LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := lookupEnv(prefix, "DATA_DIR"); ok {
		cfg.DataDir = v
	}
	if v, ok := lookupEnv(prefix, "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookupEnv(prefix, "INVENTORY_TYPE"); ok {
		cfg.InventoryType = v
	}
	if v, ok := lookupEnv(prefix, "INVENTORY_PATH"); ok {
		cfg.InventoryPath = v
	}
	if v, ok := lookupEnv(prefix, "INVENTORY_DSN"); ok {
		cfg.InventoryDSN = v
	}
	if v, ok := lookupEnv(prefix, "INVENTORY_TABLE"); ok {
		cfg.InventoryTable = v
	}
	if v, ok := lookupEnv(prefix, "CREDENTIAL_PLUGIN"); ok {
		cfg.CredentialPlugin = v
	}
	if v, ok := lookupEnv(prefix, "CREDENTIAL_PATH"); ok {
		cfg.CredentialPath = v
	}
	if v, ok := lookupEnv(prefix, "AUTH_MODE"); ok {
		cfg.AuthMode = AuthMode(strings.ToLower(v))
	}
	if v, ok := lookupEnv(prefix, "API_KEYS"); ok {
		cfg.APIKeys = splitCSV(v)
	}
	if v, ok := lookupEnv(prefix, "ALLOWED_USERS"); ok {
		cfg.AllowedUsers = splitCSV(v)
	}
	if v, ok := lookupEnv(prefix, "ALLOWED_DOMAINS"); ok {
		cfg.AllowedDomains = splitCSV(v)
	}
	if v, ok := lookupEnv(prefix, "ALLOWED_USER_REGEX"); ok {
		cfg.AllowedUserRegex = splitCSV(v)
	}
	if v, ok := lookupEnv(prefix, "JWT_REQUIRE_HTTPS"); ok {
		cfg.JWTRequireHTTPS = envBool(v, cfg.JWTRequireHTTPS)
	}
	if v, ok := lookupEnv(prefix, "JWT_LEEWAY_S"); ok {
		cfg.JWTLeewayS = envInt(v, cfg.JWTLeewayS)
	}
	if v, ok := lookupEnv(prefix, "CACHE_ENABLED"); ok {
		cfg.CacheEnabled = envBool(v, cfg.CacheEnabled)
	}
	if v, ok := lookupEnv(prefix, "CACHE_DEFAULT_TTL"); ok {
		cfg.CacheDefaultTTL = envInt(v, cfg.CacheDefaultTTL)
	}
	if v, ok := lookupEnv(prefix, "CACHE_MAX_TTL"); ok {
		cfg.CacheMaxTTL = envInt(v, cfg.CacheMaxTTL)
	}
	if v, ok := lookupEnv(prefix, "CACHE_KEY_PREFIX"); ok {
		cfg.CacheKeyPrefix = v
	}
	if v, ok := lookupEnv(prefix, "CUSTOM_TEMPLATE_DIR"); ok {
		cfg.CustomTemplateDir = v
	}
	if v, ok := lookupEnv(prefix, "BUILTIN_TEMPLATE_DIR"); ok {
		cfg.BuiltinTemplateDir = v
	}
	if cfg.InventoryFilter == nil {
		cfg.InventoryFilter = map[string]string{}
	}
	filterPrefix := prefix + "INVENTORY_FILTER_"
	for _, entry := range os.Environ() {
		key, val, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if strings.HasPrefix(key, filterPrefix) {
			field := strings.ToLower(strings.TrimPrefix(key, filterPrefix))
			cfg.InventoryFilter[field] = val
		}
	}
}

func applyWorkerEnv(cfg *WorkerConfig, prefix string) {
	if v, ok := lookupEnv(prefix, "QUEUE_DB_PATH"); ok {
		cfg.QueueDBPath = v
	}
	if v, ok := lookupEnv(prefix, "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookupEnv(prefix, "WORKER_ID"); ok {
		cfg.WorkerID = v
	}
	if v, ok := lookupEnv(prefix, "CREDENTIAL_PLUGIN"); ok {
		cfg.CredentialPlugin = v
	}
	if v, ok := lookupEnv(prefix, "WORKER_LIVENESS_S"); ok {
		cfg.WorkerLivenessS = envInt(v, cfg.WorkerLivenessS)
	}
	if v, ok := lookupEnv(prefix, "LEASE_TTL_S"); ok {
		cfg.LeaseTTLS = envInt(v, cfg.LeaseTTLS)
	}
	if v, ok := lookupEnv(prefix, "SHUTDOWN_GRACE_S"); ok {
		cfg.ShutdownGraceS = envInt(v, cfg.ShutdownGraceS)
	}
	if cfg.PluginOptions == nil {
		cfg.PluginOptions = map[string]string{}
	}
	for _, entry := range os.Environ() {
		key, val, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		pluginPrefix := prefix + "PLUGIN_"
		if strings.HasPrefix(key, pluginPrefix) {
			name := strings.ToLower(strings.TrimPrefix(key, pluginPrefix))
			cfg.PluginOptions[name] = val
		}
	}
}

func lookupEnv(prefix, key string) (string, bool) {
	v := os.Getenv(prefix + key)
	if v == "" {
		return "", false
	}
	return v, true
}

func envBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(v string, fallback int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects obviously malformed configuration, matching the
// fail-fast style the teacher applies at startup.
func (c ControllerConfig) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr is required")
	}
	switch c.AuthMode {
	case AuthNone, AuthAPIKey, AuthJWT, AuthHybrid:
	default:
		return fmt.Errorf("auth_mode must be one of none|api_key|jwt|hybrid, got %q", c.AuthMode)
	}
	if c.CacheDefaultTTL < 0 || c.CacheMaxTTL < 0 {
		return fmt.Errorf("cache TTLs must be non-negative")
	}
	if c.CacheDefaultTTL > c.CacheMaxTTL && c.CacheMaxTTL > 0 {
		return fmt.Errorf("cache_default_ttl must not exceed cache_max_ttl")
	}
	return nil
}

func (c WorkerConfig) Validate() error {
	if c.WorkerLivenessS <= 0 {
		return fmt.Errorf("worker_liveness_s must be > 0")
	}
	if c.LeaseTTLS <= 0 {
		return fmt.Errorf("lease_ttl_s must be > 0")
	}
	if c.ShutdownGraceS < 0 {
		return fmt.Errorf("shutdown_grace_s must be >= 0")
	}
	return nil
}
