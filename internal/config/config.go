package config

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:7480"
	DefaultDataDirName  = ".deptcms"
	DefaultLogLevel     = "info"
	DefaultTenantHeader = "X-Department"

	BackendSQLite = "sqlite"
	BackendLocal  = "local"
	BackendS3     = "s3"

	DefaultStorageBackend       = BackendSQLite
	DefaultChunkSize            = 255 * 1024
	DefaultMaxUploadBytes int64 = 100 * 1024 * 1024
	DefaultMaxFieldBytes  int64 = 1024 * 1024
	DefaultGCGracePeriod        = "24h"
	DefaultGCBatchSize          = 500

	configFileName           = ".deptcms.toml"
	configDirEnvKey          = "DEPTCMS_CONFIG_DIR"
	trustProjectConfigEnvKey = "DEPTCMS_TRUST_PROJECT_CONFIG"
)

// S3Config points the s3 chunk backend at an S3 compatible endpoint.
type S3Config struct {
	Endpoint  string `toml:"endpoint"`
	Region    string `toml:"region"`
	Bucket    string `toml:"bucket"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
	PathStyle bool   `toml:"path_style"`
}

// StorageConfig selects where blob chunks live.
type StorageConfig struct {
	Backend   string   `toml:"backend"`
	ChunkSize int      `toml:"chunk_size"`
	LocalRoot string   `toml:"local_root"`
	S3        S3Config `toml:"s3"`
}

// UploadConfig bounds multipart ingestion.
type UploadConfig struct {
	MaxUploadBytes    int64    `toml:"max_upload_bytes"`
	MaxFieldBytes     int64    `toml:"max_field_bytes"`
	AllowedMediaTypes []string `toml:"allowed_media_types"`
}

// PublicConfig configures the read-only public API.
type PublicConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
	TenantHeader   string   `toml:"tenant_header"`
}

// GCConfig configures the orphan blob sweep.
type GCConfig struct {
	GracePeriod string `toml:"grace_period"`
	BatchSize   int    `toml:"batch_size"`
}

// Config defines runtime configuration for deptcms.
type Config struct {
	APIURL                   string        `toml:"api_url"`
	DataDir                  string        `toml:"data_dir"`
	LogLevel                 string        `toml:"log_level"`
	Storage                  StorageConfig `toml:"storage"`
	Uploads                  UploadConfig  `toml:"uploads"`
	Public                   PublicConfig  `toml:"public"`
	GC                       GCConfig      `toml:"gc"`
	TrustedProjectConfigPath string        `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Storage: StorageConfig{
			Backend:   DefaultStorageBackend,
			ChunkSize: DefaultChunkSize,
		},
		Uploads: UploadConfig{
			MaxUploadBytes: DefaultMaxUploadBytes,
			MaxFieldBytes:  DefaultMaxFieldBytes,
		},
		Public: PublicConfig{
			TenantHeader: DefaultTenantHeader,
		},
		GC: GCConfig{
			GracePeriod: DefaultGCGracePeriod,
			BatchSize:   DefaultGCBatchSize,
		},
	}
}

// ControlDBPath is the department directory database.
func (c *Config) ControlDBPath() string {
	return filepath.Join(c.DataDir, "control.db")
}

// TenantDir holds one database per department.
func (c *Config) TenantDir() string {
	return filepath.Join(c.DataDir, "tenants")
}

// ChunkRoot is the local chunk backend root.
func (c *Config) ChunkRoot() string {
	if strings.TrimSpace(c.Storage.LocalRoot) != "" {
		return c.Storage.LocalRoot
	}
	return filepath.Join(c.DataDir, "chunks")
}

// GCGrace parses gc.grace_period.
func (c *Config) GCGrace() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.GC.GracePeriod))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("gc.grace_period must be a non-negative duration")
	}
	return d, nil
}

// Validate reports settings that would keep the server from starting.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendSQLite, BackendLocal:
	case BackendS3:
		if strings.TrimSpace(c.Storage.S3.Endpoint) == "" {
			return fmt.Errorf("storage.s3.endpoint is required for the s3 backend")
		}
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q (want sqlite, local or s3)", c.Storage.Backend)
	}
	if _, err := c.GCGrace(); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"api_url",
	"data_dir",
	"log_level",
	"storage.backend",
	"storage.chunk_size",
	"storage.local_root",
	"storage.s3.endpoint",
	"storage.s3.region",
	"storage.s3.bucket",
	"storage.s3.access_key",
	"storage.s3.secret_key",
	"storage.s3.use_ssl",
	"storage.s3.path_style",
	"uploads.max_upload_bytes",
	"uploads.max_field_bytes",
	"uploads.allowed_media_types",
	"public.allowed_origins",
	"public.tenant_header",
	"gc.grace_period",
	"gc.batch_size",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. Secrets are masked.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "data_dir":
		return c.DataDir, nil
	case "log_level":
		return c.LogLevel, nil
	case "storage.backend":
		return c.Storage.Backend, nil
	case "storage.chunk_size":
		return strconv.Itoa(c.Storage.ChunkSize), nil
	case "storage.local_root":
		return c.Storage.LocalRoot, nil
	case "storage.s3.endpoint":
		return c.Storage.S3.Endpoint, nil
	case "storage.s3.region":
		return c.Storage.S3.Region, nil
	case "storage.s3.bucket":
		return c.Storage.S3.Bucket, nil
	case "storage.s3.access_key":
		return c.Storage.S3.AccessKey, nil
	case "storage.s3.secret_key":
		if c.Storage.S3.SecretKey == "" {
			return "", nil
		}
		return "********", nil
	case "storage.s3.use_ssl":
		return strconv.FormatBool(c.Storage.S3.UseSSL), nil
	case "storage.s3.path_style":
		return strconv.FormatBool(c.Storage.S3.PathStyle), nil
	case "uploads.max_upload_bytes":
		return strconv.FormatInt(c.Uploads.MaxUploadBytes, 10), nil
	case "uploads.max_field_bytes":
		return strconv.FormatInt(c.Uploads.MaxFieldBytes, 10), nil
	case "uploads.allowed_media_types":
		return strings.Join(c.Uploads.AllowedMediaTypes, ","), nil
	case "public.allowed_origins":
		return strings.Join(c.Public.AllowedOrigins, ","), nil
	case "public.tenant_header":
		return c.Public.TenantHeader, nil
	case "gc.grace_period":
		return c.GC.GracePeriod, nil
	case "gc.batch_size":
		return strconv.Itoa(c.GC.BatchSize), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.DataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DataDir = filepath.Join(cwd, DefaultDataDirName)
		}
	}

	cfg.normalizeDefaults()

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	stringOverrides := map[string]*string{
		"DEPTCMS_API_URL":         &cfg.APIURL,
		"DEPTCMS_DATA_DIR":        &cfg.DataDir,
		"DEPTCMS_STORAGE_BACKEND": &cfg.Storage.Backend,
		"DEPTCMS_S3_ENDPOINT":     &cfg.Storage.S3.Endpoint,
		"DEPTCMS_S3_REGION":       &cfg.Storage.S3.Region,
		"DEPTCMS_S3_BUCKET":       &cfg.Storage.S3.Bucket,
		"DEPTCMS_S3_ACCESS_KEY":   &cfg.Storage.S3.AccessKey,
		"DEPTCMS_S3_SECRET_KEY":   &cfg.Storage.S3.SecretKey,
	}
	for key, target := range stringOverrides {
		if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
			*target = raw
		}
	}
	if raw := strings.TrimSpace(os.Getenv("DEPTCMS_S3_USE_SSL")); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			cfg.Storage.S3.UseSSL = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("DEPTCMS_PUBLIC_ALLOWED_ORIGINS")); raw != "" {
		cfg.Public.AllowedOrigins = splitCSV(raw)
	}
	if raw := strings.TrimSpace(os.Getenv("DEPTCMS_UPLOAD_ALLOWED_MEDIA_TYPES")); raw != "" {
		cfg.Uploads.AllowedMediaTypes = splitCSV(raw)
	}
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "uploads.max_upload_bytes", "uploads.max_field_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.chunk_size", "gc.batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "storage.s3.use_ssl", "storage.s3.path_style":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "storage.backend":
		switch value {
		case BackendSQLite, BackendLocal, BackendS3:
			return value, nil
		}
		return nil, fmt.Errorf("%s must be one of sqlite, local, s3", key)
	case "gc.grace_period":
		if d, err := time.ParseDuration(value); err != nil || d < 0 {
			return nil, fmt.Errorf("%s must be a duration such as 24h", key)
		}
		return value, nil
	case "uploads.allowed_media_types", "public.allowed_origins":
		return splitCSV(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func splitCSV(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = DefaultStorageBackend
	}
	if c.Storage.ChunkSize <= 0 {
		c.Storage.ChunkSize = DefaultChunkSize
	}
	if c.Uploads.MaxUploadBytes <= 0 {
		c.Uploads.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if c.Uploads.MaxFieldBytes <= 0 {
		c.Uploads.MaxFieldBytes = DefaultMaxFieldBytes
	}
	if strings.TrimSpace(c.Public.TenantHeader) == "" {
		c.Public.TenantHeader = DefaultTenantHeader
	}
	if strings.TrimSpace(c.GC.GracePeriod) == "" {
		c.GC.GracePeriod = DefaultGCGracePeriod
	}
	if c.GC.BatchSize <= 0 {
		c.GC.BatchSize = DefaultGCBatchSize
	}
	c.Uploads.AllowedMediaTypes = normalizeConfiguredMediaTypes(c.Uploads.AllowedMediaTypes)
}

func normalizeConfiguredMediaTypes(rawValues []string) []string {
	if len(rawValues) == 0 {
		return nil
	}
	out := make([]string, 0, len(rawValues))
	seen := map[string]struct{}{}
	for _, raw := range rawValues {
		parsed, _, err := mime.ParseMediaType(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		normalized := strings.ToLower(parsed)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
