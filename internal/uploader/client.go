package uploader

import (
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxConcurrency     = 20
	DefaultRetryAttempts      = 3
	DefaultRetryDelay         = time.Second
	DefaultMultipartThreshold = 20 << 20 // 20 MiB
	DefaultPartSize           = 15 << 20 // 15 MiB
	DefaultHost               = "s3.amazonaws.com"
)

var validate = validator.New()

// ClientConfig holds the construction parameters of the storage client
type ClientConfig struct {
	// MaxConcurrency bounds concurrent S3 operations, both per-file in a
	// directory upload and per-part in a multipart upload
	MaxConcurrency int `yaml:"maxConcurrency" validate:"gt=0"`

	// RetryAttempts is the maximum number of attempts per S3 request
	RetryAttempts int `yaml:"retryAttempts" validate:"gt=0"`

	// RetryDelay is the fixed delay between attempts
	RetryDelay time.Duration `yaml:"retryDelay" validate:"gte=0"`

	// MultipartThreshold is the file size at which uploads switch to multipart
	MultipartThreshold int64 `yaml:"multipartThreshold" validate:"gt=0"`

	// PartSize is the size of each multipart part (S3 requires at least 5 MiB)
	PartSize int64 `yaml:"partSize" validate:"gte=5242880"`

	// Host is used to build result URLs
	Host string `yaml:"host" validate:"required,hostname_port|hostname_rfc1123"`
}

// DefaultClientConfig returns the stock client settings
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxConcurrency:     DefaultMaxConcurrency,
		RetryAttempts:      DefaultRetryAttempts,
		RetryDelay:         DefaultRetryDelay,
		MultipartThreshold: DefaultMultipartThreshold,
		PartSize:           DefaultPartSize,
		Host:               DefaultHost,
	}
}

// Validate checks the config against its field constraints
func (c ClientConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}

// fixedBackoff waits the same delay before every retry
type fixedBackoff time.Duration

func (b fixedBackoff) BackoffDelay(attempt int, err error) (time.Duration, error) {
	return time.Duration(b), nil
}

// Retryer builds the SDK retryer for this config
func (c ClientConfig) Retryer() aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		o.MaxAttempts = c.RetryAttempts
		o.Backoff = fixedBackoff(c.RetryDelay)
	})
}
