package uploader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

// Transfer moves bytes to remote storage. Retry, multipart chunking and
// directory diffing live behind this interface.
type Transfer interface {
	// UploadFile uploads a single local file to target
	UploadFile(ctx context.Context, localPath string, target ObjectTarget) error

	// UploadDir uploads the contents of localDir under target.Prefix.
	// progress may be nil.
	UploadDir(ctx context.Context, localDir string, target PrefixTarget, progress ProgressFunc) error
}

// Progress is a snapshot of a directory upload
type Progress struct {
	FilesDone  int
	FilesTotal int
	BytesDone  int64
	BytesTotal int64
}

// ProgressFunc receives directory upload progress
type ProgressFunc func(Progress)

// TransferFactory builds a Transfer for one upload call
type TransferFactory func(ctx context.Context, cfg ClientConfig, storage *StorageConfig) (Transfer, error)

// Request is the validated input of a single upload
type Request struct {
	LocalPath string   `validate:"required"`
	Bucket    string   `validate:"required"`
	Options   *Options `validate:"-"`
}

// Validate returns a ValidationError for the first missing field
func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return ValidationError{Field: fieldErrs[0].Field(), Message: "is required"}
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// Uploader resolves upload parameters and hands the transfer to a fresh
// Transfer per call. It holds no per-call state and is safe for concurrent use.
type Uploader struct {
	config    ClientConfig
	newClient TransferFactory

	mu         sync.RWMutex
	onProgress ProgressFunc
}

// New creates an Uploader backed by S3
func New(cfg ClientConfig) (*Uploader, error) {
	return NewWithTransfer(cfg, NewS3Transfer)
}

// NewWithTransfer creates an Uploader with a custom Transfer factory
func NewWithTransfer(cfg ClientConfig, factory TransferFactory) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: transfer factory is nil", ErrValidation)
	}
	return &Uploader{config: cfg, newClient: factory}, nil
}

// OnProgress registers a hook for directory upload progress
func (u *Uploader) OnProgress(fn ProgressFunc) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.onProgress = fn
}

func (u *Uploader) progressHook() ProgressFunc {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.onProgress
}

// Upload pushes a file, or the contents of a directory, to bucket.
//
// The path is inspected synchronously: if it cannot be stat'ed the error is
// returned and done is never called. Otherwise Upload returns nil at once and
// done is called exactly once, from another goroutine, with either the
// resulting URL or the error. Missing bucket or path are reported through
// done as validation errors. done may be nil.
func (u *Uploader) Upload(ctx context.Context, localPath, bucket string, opts *Options, done Completion) error {
	notify := once(done)

	req := Request{LocalPath: localPath, Bucket: bucket, Options: opts}
	if err := req.Validate(); err != nil {
		log.Debug().Err(err).Msg("Rejecting upload request")
		go notify(Failure(err))
		return nil
	}

	info, err := os.Stat(localPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", localPath, errors.Join(ErrNotFound, err))
		}
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	isDir := info.IsDir()
	go func() {
		if isDir {
			notify(u.uploadDir(ctx, req))
		} else {
			notify(u.uploadFile(ctx, req))
		}
	}()
	return nil
}

// Oop is an alias for Upload
func (u *Uploader) Oop(ctx context.Context, localPath, bucket string, opts *Options, done Completion) error {
	return u.Upload(ctx, localPath, bucket, opts, done)
}

// UploadAndWait runs Upload and blocks until it completes
func (u *Uploader) UploadAndWait(ctx context.Context, localPath, bucket string, opts *Options) (string, error) {
	results := make(chan Result, 1)
	if err := u.Upload(ctx, localPath, bucket, opts, func(r Result) { results <- r }); err != nil {
		return "", err
	}
	return (<-results).Unpack()
}

func (u *Uploader) uploadFile(ctx context.Context, req Request) Result {
	target := ResolveFile(req.LocalPath, req.Bucket, req.Options)

	log.Debug().
		Str("path", req.LocalPath).
		Str("bucket", target.Bucket).
		Str("key", target.Key).
		Str("acl", target.ACL).
		Str("contentEncoding", target.ContentEncoding).
		Str("contentType", target.ContentType).
		Msg("Resolved file upload")

	client, err := u.newClient(ctx, u.config, req.Options.orEmpty().Storage)
	if err != nil {
		return Failure(&TransferError{Op: "file", Target: target.Bucket + "/" + target.Key, Err: err})
	}

	if err := client.UploadFile(ctx, req.LocalPath, target); err != nil {
		return Failure(&TransferError{Op: "file", Target: target.Bucket + "/" + target.Key, Err: err})
	}

	url := ObjectURL(u.config.Host, target.Bucket, target.Key)
	log.Info().Str("url", url).Msg("File uploaded")
	return Success(url)
}

func (u *Uploader) uploadDir(ctx context.Context, req Request) Result {
	target := ResolveDir(req.Bucket, req.Options)

	log.Debug().
		Str("dir", req.LocalPath).
		Str("bucket", target.Bucket).
		Str("prefix", target.Prefix).
		Str("acl", target.ACL).
		Bool("deleteRemoved", target.DeleteRemoved).
		Msg("Resolved directory upload")

	client, err := u.newClient(ctx, u.config, req.Options.orEmpty().Storage)
	if err != nil {
		return Failure(&TransferError{Op: "directory", Target: target.Bucket + "/" + target.Prefix, Err: err})
	}

	if err := client.UploadDir(ctx, req.LocalPath, target, u.progressHook()); err != nil {
		return Failure(&TransferError{Op: "directory", Target: target.Bucket + "/" + target.Prefix, Err: err})
	}

	url := ObjectURL(u.config.Host, target.Bucket, target.Prefix)
	log.Info().Str("url", url).Msg("Directory uploaded")
	return Success(url)
}

// once guards done so it fires at most once and tolerates nil
func once(done Completion) Completion {
	var o sync.Once
	return func(r Result) {
		o.Do(func() {
			if done != nil {
				done(r)
			}
		})
	}
}
