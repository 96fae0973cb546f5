package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oop-allez/allez/internal/config"
	"github.com/oop-allez/allez/internal/uploader"
)

var (
	uploadACL             string
	uploadName            string
	uploadContentEncoding string
	uploadContentType     string
	uploadDeleteRemoved   bool
	uploadRegion          string
	uploadEndpoint        string
	uploadHost            string
)

// newUploader is swapped in tests
var newUploader = uploader.New

var uploadCmd = &cobra.Command{
	Use:     "upload <localPath> [folder] [bucket]",
	Aliases: []string{"oop"},
	Short:   "Upload a file or directory to S3",
	Long: `Upload a file, or the contents of a directory, to an S3 bucket.

Files keep their local name unless --name is given. Keys ending in .gz or .gzip
get Content-Encoding gzip, keys containing .json get Content-Type application/json.

For directories, --acl, --content-encoding and --content-type are applied to every
file. --delete-removed deletes remote objects under the folder that no longer exist
locally.`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runUpload,
}

func addUploadFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&uploadACL, "acl", "", "Canned ACL to apply (default from config, public-read)")
	cmd.Flags().StringVarP(&uploadName, "name", "n", "", "Remote file name (file uploads only)")
	cmd.Flags().StringVar(&uploadContentEncoding, "content-encoding", "", "Content-Encoding to set, e.g. gzip")
	cmd.Flags().StringVar(&uploadContentType, "content-type", "", "Content-Type to set, e.g. application/json")
	cmd.Flags().BoolVar(&uploadDeleteRemoved, "delete-removed", false, "Delete remote files not present locally (directory uploads only)")
	cmd.Flags().StringVarP(&uploadRegion, "region", "r", "", "S3 region (e.g., 'us-east-1', 'auto' for R2)")
	cmd.Flags().StringVar(&uploadEndpoint, "endpoint", "", "Custom S3 endpoint URL (for R2: https://account-id.r2.cloudflarestorage.com)")
	cmd.Flags().StringVar(&uploadHost, "host", "", "Host used to build the printed URL (default s3.amazonaws.com)")
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	addUploadFlags(uploadCmd)
}

func argAt(args []string, i int) string {
	if len(args) > i {
		return strings.TrimSpace(args[i])
	}
	return ""
}

func runUpload(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	localPath := argAt(args, 0)
	if localPath == "" {
		fmt.Fprintln(out, "Please specify a path!")
		return errReported
	}

	folder := argAt(args, 1)
	if folder == "" {
		folder = cfg.Folder
	}

	bucket := argAt(args, 2)
	if bucket == "" {
		bucket = cfg.Bucket
	}

	opts := uploadOptions(cfg, folder)

	clientCfg := cfg.Client
	if uploadHost != "" {
		clientCfg.Host = uploadHost
	}

	ul, err := newUploader(clientCfg)
	if err != nil {
		return err
	}
	ul.OnProgress(func(p uploader.Progress) {
		log.Debug().
			Int("files", p.FilesDone).
			Int("total", p.FilesTotal).
			Int64("bytes", p.BytesDone).
			Msg("Upload progress")
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Fprintf(out, "uploading %s to %s, in folder %s...\n", localPath, bucket, folder)

	url, err := ul.UploadAndWait(ctx, localPath, bucket, opts)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return errReported
	}

	fmt.Fprintf(out, "uploaded to %s\n", url)
	fmt.Fprintln(out, "it has been my pleasure to serve you")
	return nil
}

func uploadOptions(cfg config.Config, folder string) *uploader.Options {
	storage := cfg.StorageConfig()
	if uploadRegion != "" {
		storage.Region = uploadRegion
	}
	if uploadEndpoint != "" {
		storage.Endpoint = uploadEndpoint
	}

	acl := cfg.ACL
	if uploadACL != "" {
		acl = uploadACL
	}

	return &uploader.Options{
		Folder:          folder,
		ACL:             acl,
		Name:            uploadName,
		ContentEncoding: uploadContentEncoding,
		ContentType:     uploadContentType,
		DeleteRemoved:   uploadDeleteRemoved,
		Storage:         storage,
	}
}
