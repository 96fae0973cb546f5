package uploader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultACL is applied when Options.ACL is empty
const DefaultACL = "public-read"

// Options controls a single upload. A nil *Options behaves like an empty one.
//
// In directory mode ACL, ContentEncoding and ContentType are applied to every
// object in the directory regardless of its extension, so a mixed directory
// can end up with the wrong type or encoding on some objects.
type Options struct {
	// Folder is the remote directory (key prefix) to push content to
	Folder string

	// ACL is the canned ACL to apply, "public-read" when empty
	ACL string

	// Name overrides the remote file name. File uploads only.
	Name string

	// ContentEncoding is set verbatim when given. For file uploads ending in
	// .gz or .gzip it defaults to "gzip".
	ContentEncoding string

	// ContentType is set verbatim when given. For file uploads whose key
	// contains ".json" past its first character it defaults to "application/json".
	ContentType string

	// DeleteRemoved removes remote objects under the prefix that have no local
	// counterpart. Directory uploads only.
	DeleteRemoved bool

	// Storage is passed through to the S3 client. Nil means the default
	// credential chain and region.
	Storage *StorageConfig
}

// StorageConfig carries credentials and endpoint settings for the S3 client
type StorageConfig struct {
	// Region for the bucket (e.g., "us-east-1", "auto" for R2)
	Region string

	// Endpoint is a custom S3-compatible endpoint URL. Empty for AWS S3.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// UsePathStyle forces path-style addressing. Always on with a custom endpoint.
	UsePathStyle bool
}

// ObjectTarget describes where a single file lands
type ObjectTarget struct {
	Bucket          string
	Key             string
	ACL             string
	ContentEncoding string
	ContentType     string
}

// PrefixTarget describes where the contents of a directory land
type PrefixTarget struct {
	Bucket          string
	Prefix          string
	ACL             string
	ContentEncoding string
	ContentType     string
	DeleteRemoved   bool
}

func (o *Options) orEmpty() *Options {
	if o == nil {
		return &Options{}
	}
	return o
}

func (o *Options) acl() string {
	if o.ACL != "" {
		return o.ACL
	}
	return DefaultACL
}

// NormalizeFolder appends a trailing slash unless one is already present.
// An empty folder stays empty.
func NormalizeFolder(folder string) string {
	if folder == "" || strings.HasSuffix(folder, "/") {
		return folder
	}
	return folder + "/"
}

// ResolveFile derives the remote key and object metadata for a file upload
func ResolveFile(localPath, bucket string, opts *Options) ObjectTarget {
	opts = opts.orEmpty()

	remoteName := filepath.Base(localPath)
	if len(opts.Name) > 0 {
		remoteName = opts.Name
	}

	key := remoteName
	if opts.Folder != "" {
		key = NormalizeFolder(opts.Folder) + remoteName
	}

	target := ObjectTarget{
		Bucket:          bucket,
		Key:             key,
		ACL:             opts.acl(),
		ContentEncoding: opts.ContentEncoding,
		ContentType:     opts.ContentType,
	}

	if target.ContentEncoding == "" && (strings.HasSuffix(key, ".gz") || strings.HasSuffix(key, ".gzip")) {
		target.ContentEncoding = "gzip"
	}

	// Loose match: "foo.jsonish.txt" counts too, a leading ".json" does not.
	if target.ContentType == "" && strings.Index(key, ".json") > 0 {
		target.ContentType = "application/json"
	}

	return target
}

// ResolveDir derives the remote prefix and shared metadata for a directory upload
func ResolveDir(bucket string, opts *Options) PrefixTarget {
	opts = opts.orEmpty()

	return PrefixTarget{
		Bucket:          bucket,
		Prefix:          opts.Folder,
		ACL:             opts.acl(),
		ContentEncoding: opts.ContentEncoding,
		ContentType:     opts.ContentType,
		DeleteRemoved:   opts.DeleteRemoved,
	}
}

// ObjectURL returns the public URL of a key or prefix
func ObjectURL(host, bucket, keyOrPrefix string) string {
	return fmt.Sprintf("https://%s/%s/%s", host, bucket, keyOrPrefix)
}
