package uploader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// deleteBatchSize is the DeleteObjects per-request limit
const deleteBatchSize = 1000

const defaultRegion = "us-east-1"

// S3API is the subset of *s3.Client used by S3Transfer
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Transfer implements Transfer for S3-compatible storage (AWS S3, Cloudflare R2, etc.)
type S3Transfer struct {
	client S3API
	config ClientConfig
}

// NewS3Transfer creates an S3 client configured from cfg and storage
func NewS3Transfer(ctx context.Context, cfg ClientConfig, storage *StorageConfig) (Transfer, error) {
	if storage == nil {
		storage = &StorageConfig{}
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRetryer(cfg.Retryer),
	}
	if storage.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(storage.Region))
	}
	if storage.AccessKeyID != "" && storage.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(storage.AccessKeyID, storage.SecretAccessKey, storage.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(storage.Endpoint)
			o.UsePathStyle = true // Required for R2
		} else {
			o.UsePathStyle = storage.UsePathStyle
		}
	})

	log.Debug().
		Str("region", awsCfg.Region).
		Str("endpoint", storage.Endpoint).
		Int("maxConcurrency", cfg.MaxConcurrency).
		Int("retryAttempts", cfg.RetryAttempts).
		Msg("S3 client initialized")

	return NewS3TransferFromClient(client, cfg), nil
}

// NewS3TransferFromClient wraps an existing client
func NewS3TransferFromClient(client S3API, cfg ClientConfig) *S3Transfer {
	return &S3Transfer{client: client, config: cfg}
}

// UploadFile uploads a single file, switching to multipart at the configured threshold
func (t *S3Transfer) UploadFile(ctx context.Context, localPath string, target ObjectTarget) error {
	_, err := t.put(ctx, localPath, target, t.config.MaxConcurrency)
	return err
}

// put uploads one file. partConcurrency bounds the parts in flight when the
// file goes multipart.
func (t *S3Transfer) put(ctx context.Context, localPath string, target ObjectTarget, partConcurrency int) (int64, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	size := info.Size()

	input := &s3.PutObjectInput{
		Bucket: aws.String(target.Bucket),
		Key:    aws.String(target.Key),
		Body:   f,
		ACL:    types.ObjectCannedACL(target.ACL),
	}
	if target.ContentEncoding != "" {
		input.ContentEncoding = aws.String(target.ContentEncoding)
	}
	if target.ContentType != "" {
		input.ContentType = aws.String(target.ContentType)
	}

	if size < t.config.MultipartThreshold {
		log.Debug().Str("key", target.Key).Int64("size", size).Msg("Uploading to S3")
		input.ContentLength = aws.Int64(size)
		if _, err := t.client.PutObject(ctx, input); err != nil {
			return 0, fmt.Errorf("failed to upload %s: %w", target.Key, err)
		}
		return size, nil
	}

	log.Debug().
		Str("key", target.Key).
		Int64("size", size).
		Int64("partSize", t.config.PartSize).
		Msg("Uploading to S3 (multipart)")

	up := manager.NewUploader(t.client, func(u *manager.Uploader) {
		u.PartSize = t.config.PartSize
		u.Concurrency = partConcurrency
	})
	if _, err := up.Upload(ctx, input); err != nil {
		return 0, fmt.Errorf("failed to upload %s: %w", target.Key, err)
	}
	return size, nil
}

type localFile struct {
	path string
	rel  string // forward-slash path relative to the upload root
	size int64
}

type remoteObject struct {
	size int64
	etag string
}

// UploadDir uploads every regular file under localDir. Objects whose size and
// MD5 already match are skipped. With DeleteRemoved, remote objects under the
// prefix with no local file are deleted once all uploads succeed.
//
// At most MaxConcurrency files are in flight, and multipart files send their
// parts one at a time, so MaxConcurrency also bounds the requests in flight.
func (t *S3Transfer) UploadDir(ctx context.Context, localDir string, target PrefixTarget, progress ProgressFunc) error {
	files, err := scanDir(localDir)
	if err != nil {
		return err
	}

	prefix := NormalizeFolder(target.Prefix)

	remote, err := t.listRemote(ctx, target.Bucket, prefix)
	if err != nil {
		return err
	}

	tracker := newTracker(files, progress)
	local := make(map[string]struct{}, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.config.MaxConcurrency)

	for _, file := range files {
		key := prefix + file.rel
		local[key] = struct{}{}

		g.Go(func() error {
			if obj, ok := remote[key]; ok && unchanged(file, obj) {
				log.Debug().Str("key", key).Msg("Skipping unchanged object")
				tracker.done(file.size)
				return nil
			}

			_, err := t.put(gctx, file.path, ObjectTarget{
				Bucket:          target.Bucket,
				Key:             key,
				ACL:             target.ACL,
				ContentEncoding: target.ContentEncoding,
				ContentType:     target.ContentType,
			}, 1)
			if err != nil {
				return err
			}
			tracker.done(file.size)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if !target.DeleteRemoved {
		return nil
	}

	var orphans []string
	for key := range remote {
		if _, ok := local[key]; !ok {
			orphans = append(orphans, key)
		}
	}
	return t.deleteKeys(ctx, target.Bucket, orphans)
}

func (t *S3Transfer) listRemote(ctx context.Context, bucket, prefix string) (map[string]remoteObject, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	objects := make(map[string]remoteObject)
	paginator := s3.NewListObjectsV2Paginator(t.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			objects[aws.ToString(obj.Key)] = remoteObject{
				size: aws.ToInt64(obj.Size),
				etag: strings.Trim(aws.ToString(obj.ETag), `"`),
			}
		}
	}
	return objects, nil
}

func (t *S3Transfer) deleteKeys(ctx context.Context, bucket string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	var errs []error
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(keys))

		ids := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			ids = append(ids, types.ObjectIdentifier{Key: aws.String(key)})
		}

		log.Debug().Int("count", len(ids)).Str("bucket", bucket).Msg("Deleting removed objects")

		out, err := t.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("failed to delete removed objects: %w", err)
		}
		for _, e := range out.Errors {
			errs = append(errs, fmt.Errorf("failed to delete %s: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
		}
	}
	return errors.Join(errs...)
}

func scanDir(root string) ([]localFile, error) {
	var files []localFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		// Stat follows symlinks so linked files are uploaded as their target
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, localFile{path: path, rel: filepath.ToSlash(rel), size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	return files, nil
}

// unchanged reports whether a local file matches a remote object. Multipart
// ETags are not plain MD5 sums and never match.
func unchanged(file localFile, obj remoteObject) bool {
	if file.size != obj.size || obj.etag == "" || strings.Contains(obj.etag, "-") {
		return false
	}
	sum, err := md5File(file.path)
	if err != nil {
		return false
	}
	return sum == obj.etag
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

type tracker struct {
	mu       sync.Mutex
	progress Progress
	report   ProgressFunc
}

func newTracker(files []localFile, report ProgressFunc) *tracker {
	t := &tracker{report: report}
	t.progress.FilesTotal = len(files)
	for _, f := range files {
		t.progress.BytesTotal += f.size
	}
	return t
}

func (t *tracker) done(size int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.progress.FilesDone++
	t.progress.BytesDone += size
	if t.report != nil {
		t.report(t.progress)
	}
}
