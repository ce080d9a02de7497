// Package config loads the service configuration from YAML with
// LOGSTORAGE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/syedhassaanahmed/log-storage-service/cache"
)

// Backend kinds.
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendAzure  = "azure"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
	BackendOCI    = "oci"
)

// Cache kinds.
const (
	CacheNone   = ""
	CacheMemory = "memory"
	CacheDisk   = "disk"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOGSTORAGE_"

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	BaseURL       string        `yaml:"baseUrl"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	AuthExclude   []string      `yaml:"authExclude"`
	CacheMaxAge   time.Duration `yaml:"cacheMaxAge"`
	MaxUploadSize int64         `yaml:"maxUploadSize"`
}

// StorageConfig selects and configures the blob backend.
type StorageConfig struct {
	Backend        string      `yaml:"backend"`
	MaxArchiveSize int64       `yaml:"maxArchiveSize"`
	Disk           DiskConfig  `yaml:"disk"`
	Azure          AzureConfig `yaml:"azure"`
	S3             S3Config    `yaml:"s3"`
	GCS            GCSConfig   `yaml:"gcs"`
	OCI            OCIConfig   `yaml:"oci"`
}

// DiskConfig configures the filesystem backend.
type DiskConfig struct {
	Dir string `yaml:"dir"`
}

// AzureConfig configures the Azure Blob Storage backend. One of
// ConnectionString, AccountKey (with ServiceURL and AccountName) or a
// ServiceURL carrying a SAS token is required.
type AzureConfig struct {
	ConnectionString string `yaml:"connectionString"`
	ServiceURL       string `yaml:"serviceUrl"`
	AccountName      string `yaml:"accountName"`
	AccountKey       string `yaml:"accountKey"`
	Container        string `yaml:"container"`
	CreateContainer  bool   `yaml:"createContainer"`
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"accessKey"`
	SecretKey    string `yaml:"secretKey"`
	CreateBucket bool   `yaml:"createBucket"`
}

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	Project         string `yaml:"project"`
	CredentialsFile string `yaml:"credentialsFile"`
	Endpoint        string `yaml:"endpoint"`
	CreateBucket    bool   `yaml:"createBucket"`
}

// OCIConfig configures the OCI registry backend.
type OCIConfig struct {
	Repository   string `yaml:"repository"`
	PlainHTTP    bool   `yaml:"plainHttp"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	DockerConfig bool   `yaml:"dockerConfig"`
}

// CacheConfig configures the downloaded-archive cache.
type CacheConfig struct {
	Type     string        `yaml:"type"`
	Dir      string        `yaml:"dir"`
	MaxBytes int64         `yaml:"maxBytes"`
	MemoryMB int           `yaml:"memoryMb"`
	TTL      time.Duration `yaml:"ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:          ":8080",
			BaseURL:       "/logs/",
			AuthExclude:   []string{"/healthz", "/metrics"},
			CacheMaxAge:   time.Hour,
			MaxUploadSize: 256 << 20,
		},
		Storage: StorageConfig{
			Backend:        BackendMemory,
			MaxArchiveSize: 256 << 20,
			Azure:          AzureConfig{Container: "logs"},
			S3:             S3Config{Region: "us-east-1"},
		},
		Cache: CacheConfig{
			MaxBytes: 1 << 30,
			MemoryMB: 1024,
			TTL:      10 * time.Minute,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SERVER_ADDR":             &c.Server.Addr,
		"SERVER_BASE_URL":         &c.Server.BaseURL,
		"SERVER_USERNAME":         &c.Server.Username,
		"SERVER_PASSWORD":         &c.Server.Password,
		"STORAGE_BACKEND":         &c.Storage.Backend,
		"DISK_DIR":                &c.Storage.Disk.Dir,
		"AZURE_CONNECTION_STRING": &c.Storage.Azure.ConnectionString,
		"AZURE_SERVICE_URL":       &c.Storage.Azure.ServiceURL,
		"AZURE_ACCOUNT_NAME":      &c.Storage.Azure.AccountName,
		"AZURE_ACCOUNT_KEY":       &c.Storage.Azure.AccountKey,
		"AZURE_CONTAINER":         &c.Storage.Azure.Container,
		"S3_BUCKET":               &c.Storage.S3.Bucket,
		"S3_PREFIX":               &c.Storage.S3.Prefix,
		"S3_REGION":               &c.Storage.S3.Region,
		"S3_ENDPOINT":             &c.Storage.S3.Endpoint,
		"S3_ACCESS_KEY":           &c.Storage.S3.AccessKey,
		"S3_SECRET_KEY":           &c.Storage.S3.SecretKey,
		"GCS_BUCKET":              &c.Storage.GCS.Bucket,
		"GCS_PROJECT":             &c.Storage.GCS.Project,
		"GCS_CREDENTIALS_FILE":    &c.Storage.GCS.CredentialsFile,
		"GCS_ENDPOINT":            &c.Storage.GCS.Endpoint,
		"OCI_REPOSITORY":          &c.Storage.OCI.Repository,
		"OCI_USERNAME":            &c.Storage.OCI.Username,
		"OCI_PASSWORD":            &c.Storage.OCI.Password,
		"CACHE_TYPE":              &c.Cache.Type,
		"CACHE_DIR":               &c.Cache.Dir,
		"LOG_LEVEL":               &c.Log.Level,
		"LOG_FORMAT":              &c.Log.Format,
		"LOG_FILE":                &c.Log.File,
	}
	for name, dst := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int64{
		"SERVER_MAX_UPLOAD_SIZE":   &c.Server.MaxUploadSize,
		"STORAGE_MAX_ARCHIVE_SIZE": &c.Storage.MaxArchiveSize,
		"CACHE_MAX_BYTES":          &c.Cache.MaxBytes,
	}
	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = n
	}

	bools := map[string]*bool{
		"AZURE_CREATE_CONTAINER": &c.Storage.Azure.CreateContainer,
		"GCS_CREATE_BUCKET":      &c.Storage.GCS.CreateBucket,
		"S3_CREATE_BUCKET":       &c.Storage.S3.CreateBucket,
		"OCI_PLAIN_HTTP":         &c.Storage.OCI.PlainHTTP,
		"OCI_DOCKER_CONFIG":      &c.Storage.OCI.DockerConfig,
	}
	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = b
	}

	if v, ok := lookup(EnvPrefix + "SERVER_CACHE_MAX_AGE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSERVER_CACHE_MAX_AGE: %w", EnvPrefix, err)
		}
		c.Server.CacheMaxAge = d
	}
	if v, ok := lookup(EnvPrefix + "SERVER_AUTH_EXCLUDE"); ok {
		c.Server.AuthExclude = splitList(v)
	}
	return nil
}

// Validate reports every configuration problem found.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if (c.Server.Username == "") != (c.Server.Password == "") {
		errs = append(errs, errors.New("server.username and server.password must be set together"))
	}
	if c.Server.MaxUploadSize < 0 {
		errs = append(errs, errors.New("server.maxUploadSize must be >= 0"))
	}
	if c.Storage.MaxArchiveSize < 0 {
		errs = append(errs, errors.New("storage.maxArchiveSize must be >= 0"))
	}

	s := c.Storage
	switch s.Backend {
	case BackendMemory:
	case BackendDisk:
		if s.Disk.Dir == "" {
			errs = append(errs, errors.New("storage.disk.dir is required"))
		}
	case BackendAzure:
		a := s.Azure
		if a.ConnectionString == "" && a.ServiceURL == "" {
			errs = append(errs, errors.New("storage.azure needs connectionString or serviceUrl"))
		}
		if a.AccountKey != "" && (a.ServiceURL == "" || a.AccountName == "") {
			errs = append(errs, errors.New("storage.azure.accountKey needs serviceUrl and accountName"))
		}
		if a.Container == "" {
			errs = append(errs, errors.New("storage.azure.container is required"))
		}
	case BackendS3:
		if s.S3.Bucket == "" {
			errs = append(errs, errors.New("storage.s3.bucket is required"))
		}
		if (s.S3.AccessKey == "") != (s.S3.SecretKey == "") {
			errs = append(errs, errors.New("storage.s3.accessKey and secretKey must be set together"))
		}
	case BackendGCS:
		if s.GCS.Bucket == "" {
			errs = append(errs, errors.New("storage.gcs.bucket is required"))
		}
	case BackendOCI:
		if s.OCI.Repository == "" {
			errs = append(errs, errors.New("storage.oci.repository is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of memory, disk, azure, s3, gcs, oci", s.Backend))
	}

	switch c.Cache.Type {
	case CacheNone:
	case CacheMemory:
		switch {
		case c.Cache.MemoryMB < 0:
			errs = append(errs, errors.New("cache.memoryMb must be >= 0"))
		case c.Cache.MemoryMB > 0 && c.Storage.MaxArchiveSize == 0:
			errs = append(errs, errors.New("cache.memoryMb needs a bounded storage.maxArchiveSize"))
		default:
			if _, err := cache.MemoryShards(c.Cache.MemoryMB, c.Storage.MaxArchiveSize); err != nil {
				errs = append(errs, fmt.Errorf("cache.memoryMb: %w", err))
			}
		}
	case CacheDisk:
		if c.Cache.Dir == "" {
			errs = append(errs, errors.New("cache.dir is required for the disk cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.type %q is not one of memory, disk", c.Cache.Type))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Status returns the non-secret settings reported by the status endpoint.
func (c *Config) Status() map[string]string {
	s := c.Storage
	status := map[string]string{
		"backend": s.Backend,
		"cache":   c.Cache.Type,
	}
	switch s.Backend {
	case BackendDisk:
		status["dir"] = s.Disk.Dir
	case BackendAzure:
		status["container"] = s.Azure.Container
		if s.Azure.AccountName != "" {
			status["account"] = s.Azure.AccountName
		}
	case BackendS3:
		status["bucket"] = s.S3.Bucket
		status["region"] = s.S3.Region
		if s.S3.Endpoint != "" {
			status["endpoint"] = s.S3.Endpoint
		}
	case BackendGCS:
		status["bucket"] = s.GCS.Bucket
	case BackendOCI:
		status["repository"] = s.OCI.Repository
	}
	return status
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
