package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oop-allez/allez/internal/compress"
)

var (
	compressQuality  int
	compressMaxWidth int
)

var compressCmd = &cobra.Command{
	Use:   "compress <from> [to]",
	Short: "Compress an image before uploading it",
	Long: `Re-encode an image to shrink it. The output format follows the extension of <to>
(jpg, png or webp). Without <to> the source file is replaced in place.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		from := argAt(args, 0)
		to := argAt(args, 1)
		if to == "" {
			to = from
		}

		quality := cfg.Compress.Quality
		if cmd.Flags().Changed("quality") {
			quality = compressQuality
		}
		maxWidth := cfg.Compress.MaxWidth
		if cmd.Flags().Changed("max-width") {
			maxWidth = compressMaxWidth
		}

		c := compress.New(compress.Config{Quality: quality, MaxWidth: maxWidth})
		result, err := c.CompressFile(from, to)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s -> %s (%dx%d, %s)\n", result.From, result.To, result.Width, result.Height, result.Format)
		fmt.Fprintf(out, "  %d bytes -> %d bytes (saved %d)\n", result.BytesBefore, result.BytesAfter, result.Saved())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compressCmd)

	compressCmd.Flags().IntVarP(&compressQuality, "quality", "q", 80, "Quality for JPEG and WebP output (1-100)")
	compressCmd.Flags().IntVar(&compressMaxWidth, "max-width", 0, "Downscale images wider than this, keeping the aspect ratio (0 disables)")
}
