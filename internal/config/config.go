// Package config loads allez settings from defaults, an optional YAML file and
// the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/oop-allez/allez/internal/uploader"
	"github.com/oop-allez/allez/internal/util"
)

// DefaultPath is read when no explicit config file is given
const DefaultPath = ".allez.yaml"

type Config struct {
	// Bucket is used when the CLI is not given one
	Bucket string `yaml:"bucket"`

	// Folder is used when the CLI is not given one
	Folder string `yaml:"folder,omitempty"`

	ACL string `yaml:"acl"`

	Storage  Storage               `yaml:"storage"`
	Client   uploader.ClientConfig `yaml:"client"`
	Compress Compress              `yaml:"compress"`
}

// Storage holds S3 connection settings. Credentials are only read from the environment.
type Storage struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint,omitempty"`
	UsePathStyle bool   `yaml:"usePathStyle,omitempty"`

	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
	SessionToken    string `yaml:"-"`
}

// Compress holds defaults for the compress command
type Compress struct {
	Quality  int `yaml:"quality"`
	MaxWidth int `yaml:"maxWidth,omitempty"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		ACL:      uploader.DefaultACL,
		Storage:  Storage{Region: "us-east-1"},
		Client:   uploader.DefaultClientConfig(),
		Compress: Compress{Quality: 80},
	}
}

// Load builds the configuration. An empty path reads DefaultPath if it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	if err := util.LoadYAML(path, &cfg); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
		}
		log.Debug().Str("path", path).Msg("No config file, using defaults")
	} else {
		log.Debug().Str("path", path).Msg("Loaded config file")
	}

	// Existing environment variables win over .env entries
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("Loaded .env")
	}

	applyEnv(&cfg)
	return cfg, nil
}

// Save writes cfg to path as YAML
func Save(path string, cfg Config) error {
	return util.SaveYAML(path, cfg)
}

// StorageConfig converts the storage section for the uploader
func (c Config) StorageConfig() *uploader.StorageConfig {
	return &uploader.StorageConfig{
		Region:          c.Storage.Region,
		Endpoint:        c.Storage.Endpoint,
		AccessKeyID:     c.Storage.AccessKeyID,
		SecretAccessKey: c.Storage.SecretAccessKey,
		SessionToken:    c.Storage.SessionToken,
		UsePathStyle:    c.Storage.UsePathStyle,
	}
}

func applyEnv(cfg *Config) {
	cfg.Bucket = getenv("ALLEZ_BUCKET", cfg.Bucket)
	cfg.Folder = getenv("ALLEZ_FOLDER", cfg.Folder)
	cfg.ACL = getenv("ALLEZ_ACL", cfg.ACL)

	cfg.Storage.Region = getenv("AWS_REGION", cfg.Storage.Region)
	cfg.Storage.Endpoint = getenv("ALLEZ_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.UsePathStyle = getBool("ALLEZ_PATH_STYLE", cfg.Storage.UsePathStyle)

	// Try R2-specific env vars first, then fall back to AWS env vars
	cfg.Storage.AccessKeyID = getenv("R2_ACCESS_KEY_ID", getenv("AWS_ACCESS_KEY_ID", cfg.Storage.AccessKeyID))
	cfg.Storage.SecretAccessKey = getenv("R2_SECRET_ACCESS_KEY", getenv("AWS_SECRET_ACCESS_KEY", cfg.Storage.SecretAccessKey))
	cfg.Storage.SessionToken = getenv("AWS_SESSION_TOKEN", cfg.Storage.SessionToken)

	cfg.Client.Host = getenv("ALLEZ_HOST", cfg.Client.Host)
	cfg.Client.MaxConcurrency = mustInt("ALLEZ_MAX_CONCURRENCY", cfg.Client.MaxConcurrency)
	cfg.Client.RetryAttempts = mustInt("ALLEZ_RETRY_ATTEMPTS", cfg.Client.RetryAttempts)
	cfg.Client.RetryDelay = mustDuration("ALLEZ_RETRY_DELAY", cfg.Client.RetryDelay)
	cfg.Client.MultipartThreshold = mustInt64("ALLEZ_MULTIPART_THRESHOLD", cfg.Client.MultipartThreshold)
	cfg.Client.PartSize = mustInt64("ALLEZ_PART_SIZE", cfg.Client.PartSize)

	cfg.Compress.Quality = mustInt("ALLEZ_COMPRESS_QUALITY", cfg.Compress.Quality)
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", v).Msg("bad int env, using default")
	}
	return def
}

func mustInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			return i
		}
		log.Warn().Str("key", key).Str("value", v).Msg("bad int env, using default")
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", v).Msg("bad bool env, using default")
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("bad duration env, using default")
	}
	return def
}
