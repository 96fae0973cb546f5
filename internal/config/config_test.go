package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oop-allez/allez/internal/uploader"
)

// isolate runs the test from an empty directory with allez env vars cleared
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{
		"ALLEZ_BUCKET", "ALLEZ_FOLDER", "ALLEZ_ACL", "ALLEZ_HOST", "ALLEZ_ENDPOINT", "ALLEZ_PATH_STYLE",
		"ALLEZ_MAX_CONCURRENCY", "ALLEZ_RETRY_ATTEMPTS", "ALLEZ_RETRY_DELAY",
		"ALLEZ_MULTIPART_THRESHOLD", "ALLEZ_PART_SIZE", "ALLEZ_COMPRESS_QUALITY",
		"AWS_REGION", "R2_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID",
		"R2_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY", "AWS_SESSION_TOKEN",
	} {
		t.Setenv(key, "")
	}
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, uploader.DefaultClientConfig(), cfg.Client)
	assert.Equal(t, "public-read", cfg.ACL)
}

func TestLoad_ExplicitMissingFileFails(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := isolate(t)

	yamlConfig := `
bucket: from-yaml
folder: assets
acl: private
storage:
  region: eu-west-1
  endpoint: https://account.r2.cloudflarestorage.com
client:
  maxConcurrency: 4
  retryDelay: 250ms
  host: images.example.com
compress:
  quality: 70
`
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0644))

	t.Setenv("ALLEZ_BUCKET", "from-env")
	t.Setenv("ALLEZ_RETRY_ATTEMPTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Bucket, "env overrides yaml")
	assert.Equal(t, "assets", cfg.Folder)
	assert.Equal(t, "private", cfg.ACL)
	assert.Equal(t, "eu-west-1", cfg.Storage.Region)
	assert.Equal(t, "https://account.r2.cloudflarestorage.com", cfg.Storage.Endpoint)
	assert.Equal(t, 4, cfg.Client.MaxConcurrency)
	assert.Equal(t, 7, cfg.Client.RetryAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Client.RetryDelay)
	assert.Equal(t, "images.example.com", cfg.Client.Host)
	assert.Equal(t, int64(uploader.DefaultPartSize), cfg.Client.PartSize, "unset yaml keys keep defaults")
	assert.Equal(t, 70, cfg.Compress.Quality)
}

func TestLoad_DefaultPathIsPickedUp(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultPath), []byte("bucket: dotfile\n"), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotfile", cfg.Bucket)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultPath), []byte("client: [not, a, map"), 0644))

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ALLEZ_FOLDER=from-dotenv\n"), 0644))
	// godotenv does not override variables that are already set
	require.NoError(t, os.Unsetenv("ALLEZ_FOLDER"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Folder)
}

func TestLoad_CredentialsPreferR2(t *testing.T) {
	isolate(t)
	t.Setenv("R2_ACCESS_KEY_ID", "r2-key")
	t.Setenv("AWS_ACCESS_KEY_ID", "aws-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "aws-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "r2-key", cfg.Storage.AccessKeyID)
	assert.Equal(t, "aws-secret", cfg.Storage.SecretAccessKey)

	storage := cfg.StorageConfig()
	assert.Equal(t, "r2-key", storage.AccessKeyID)
	assert.Equal(t, "us-east-1", storage.Region)
}

func TestLoad_BadNumbersKeepPreviousValue(t *testing.T) {
	isolate(t)
	t.Setenv("ALLEZ_MAX_CONCURRENCY", "lots")
	t.Setenv("ALLEZ_RETRY_DELAY", "soon")
	t.Setenv("ALLEZ_PATH_STYLE", "maybe")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uploader.DefaultMaxConcurrency, cfg.Client.MaxConcurrency)
	assert.Equal(t, uploader.DefaultRetryDelay, cfg.Client.RetryDelay)
	assert.False(t, cfg.Storage.UsePathStyle)
}

func TestSave_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "allez.yaml")

	cfg := Default()
	cfg.Bucket = "my-bucket"
	cfg.Client.RetryDelay = 2 * time.Second
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
