package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oop-allez/allez/internal/config"
)

// errReported marks failures that were already printed for the user
var errReported = errors.New("reported")

var rootCmd = &cobra.Command{
	Use:   "allez [localPath] [folder] [bucket]",
	Short: "Upload a file or directory to S3",
	Long: `Upload a file, or the contents of a directory, to an S3 bucket and print its URL.

Credentials are read from environment variables (or the default AWS chain):
  - R2_ACCESS_KEY_ID / AWS_ACCESS_KEY_ID
  - R2_SECRET_ACCESS_KEY / AWS_SECRET_ACCESS_KEY

Example usage:
  allez dist/app.js.gz releases my-bucket
  allez ./site www --delete-removed
`,
	Args:          cobra.MaximumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runUpload,
}

var (
	envFile    string
	configFile string
	debug      bool

	// cfg is populated before any command runs
	cfg config.Config
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Path to .env file to load before running commands")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to YAML config file (default: "+config.DefaultPath+" if present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	addUploadFlags(rootCmd)

	// Load .env and config before any command runs
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		setupLogging(debug)

		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file '%s': %w", envFile, err)
			}
		}

		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	}
}
