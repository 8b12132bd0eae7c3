// Package config loads service configuration from a YAML file, a .env file,
// and STRATBOOK_* environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nrzngr/exvoria-strat-management/internal/blob"
	"github.com/nrzngr/exvoria-strat-management/internal/core"
	"github.com/nrzngr/exvoria-strat-management/internal/logging"
	"github.com/nrzngr/exvoria-strat-management/internal/media"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STRATBOOK_"

// Config is the full service configuration.
type Config struct {
	Server  Server         `yaml:"server"`
	Storage Storage        `yaml:"storage"`
	Blob    Blob           `yaml:"blob"`
	Uploads Uploads        `yaml:"uploads"`
	Logging logging.Config `yaml:"logging"`
}

// Server holds HTTP listener settings.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxMultipartBytes caps the in-memory size of a multipart request.
	MaxMultipartBytes int64 `yaml:"max_multipart_bytes"`
	// MaxRequestBytes caps the whole request body.
	MaxRequestBytes int64 `yaml:"max_request_bytes"`
}

// Storage selects the relational backend.
type Storage struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	Seed        bool   `yaml:"seed"`
}

// Blob selects the object storage driver.
type Blob struct {
	Driver        string `yaml:"driver"`
	FSRoot        string `yaml:"fs_root"`
	Bucket        string `yaml:"bucket"`
	PublicBaseURL string `yaml:"public_base_url"`
	S3            S3     `yaml:"s3"`
}

// S3 configures the S3 driver. Credentials are usually left to the AWS
// default chain and only set here for MinIO style deployments.
type S3 struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Uploads bounds accepted image files.
type Uploads struct {
	MaxBytes     int64    `yaml:"max_bytes"`
	AllowedTypes []string `yaml:"allowed_types"`
}

// Default returns the configuration used when nothing is set: an in-memory
// store with seed maps and filesystem images under ./blobdata.
func Default() Config {
	return Config{
		Server: Server{
			Addr:              ":8080",
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			MaxMultipartBytes: 32 << 20,
			MaxRequestBytes:   64 << 20,
		},
		Storage: Storage{Driver: string(core.StorageMemory), SQLitePath: "stratbook.db", Seed: true},
		Blob:    Blob{Driver: string(blob.DriverFilesystem), FSRoot: "./blobdata", Bucket: "strategy-images"},
		Uploads: Uploads{MaxBytes: media.DefaultMaxBytes, AllowedTypes: append([]string(nil), media.DefaultAllowedTypes...)},
		Logging: logging.Config{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Options tells Load where to read from.
type Options struct {
	// File is an optional YAML file. A missing file is an error when set.
	File string
	// EnvFile is an optional .env file. A missing file is ignored.
	EnvFile string
	// Lookup reads the process environment; nil means os.LookupEnv.
	Lookup func(string) (string, bool)
}

// Load builds a Config from defaults, the YAML file, the .env file, and the
// environment, then validates it. Real environment variables win over the
// .env file.
func Load(opts Options) (Config, error) {
	cfg := Default()
	if opts.File != "" {
		raw, err := os.ReadFile(opts.File)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", opts.File, err)
		}
	}
	dotenv := map[string]string{}
	if opts.EnvFile != "" {
		vals, err := godotenv.Read(opts.EnvFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read env file: %w", err)
		}
		if vals != nil {
			dotenv = vals
		}
	}
	lookup := opts.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(env); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(raw []byte, cfg *Config) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func (c *Config) applyEnv(env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := env(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int64) {
		if v, ok := env(EnvPrefix + key); ok {
			n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := env(EnvPrefix + key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)
	duration("SERVER_READ_TIMEOUT", &c.Server.ReadTimeout)
	duration("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeout)
	duration("SERVER_SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	integer("SERVER_MAX_REQUEST_BYTES", &c.Server.MaxRequestBytes)

	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	str("POSTGRES_DSN", &c.Storage.PostgresDSN)
	boolean("STORAGE_SEED", &c.Storage.Seed)

	str("BLOB_DRIVER", &c.Blob.Driver)
	str("BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("BLOB_BUCKET", &c.Blob.Bucket)
	str("PUBLIC_BASE_URL", &c.Blob.PublicBaseURL)
	str("S3_BUCKET", &c.Blob.S3.Bucket)
	str("S3_REGION", &c.Blob.S3.Region)
	str("S3_ENDPOINT", &c.Blob.S3.Endpoint)
	boolean("S3_PATH_STYLE", &c.Blob.S3.PathStyle)
	str("S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	str("S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)

	integer("UPLOAD_MAX_BYTES", &c.Uploads.MaxBytes)
	if v, ok := env(EnvPrefix + "UPLOAD_ALLOWED_TYPES"); ok {
		c.Uploads.AllowedTypes = splitList(v)
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	switch core.StorageDriver(c.Storage.Driver) {
	case "", core.StorageMemory:
	case core.StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case core.StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want memory, sqlite, or postgres", c.Storage.Driver))
	}
	switch blob.Driver(c.Blob.Driver) {
	case "", blob.DriverFilesystem, blob.DriverMemory, blob.DriverNone:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" && c.Blob.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver %q: want fs, s3, memory, or none", c.Blob.Driver))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}
	if c.Server.MaxRequestBytes < c.Uploads.MaxBytes {
		errs = append(errs, errors.New("server.max_request_bytes must be at least uploads.max_bytes"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	return errors.Join(errs...)
}

// StorageConfig converts the storage section for core.OpenPersistentStore.
func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		Seed:        c.Storage.Seed,
	}
}

// BlobConfig converts the blob section for blob.Open.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:        blob.Driver(c.Blob.Driver),
		FSRoot:        c.Blob.FSRoot,
		Bucket:        c.Blob.Bucket,
		PublicBaseURL: c.Blob.PublicBaseURL,
		S3: blob.S3Config{
			Bucket:          c.Blob.S3.Bucket,
			Region:          c.Blob.S3.Region,
			Endpoint:        c.Blob.S3.Endpoint,
			PathStyle:       c.Blob.S3.PathStyle,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
		},
	}
}

// UploadConstraints converts the uploads section.
func (c Config) UploadConstraints() media.Constraints {
	return media.Constraints{MaxBytes: c.Uploads.MaxBytes, AllowedTypes: append([]string(nil), c.Uploads.AllowedTypes...)}
}
