package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// scratchDirEnv provides the default for --scratch-dir.
const scratchDirEnv = "LOGBUDDY_SCRATCH_DIR"

var (
	verbose    bool
	quiet      bool
	scratchDir string
)

var rootCmd = &cobra.Command{
	Use:   "logbuddy",
	Short: "Logbuddy - recursively expand log bundles",
	Long: `Logbuddy takes log files and bundles of any type, recursively unpacks every
archive inside them (zip, tar, gzip, bzip2, xz, zstd, lz4, 7z) into a private
scratch directory and lists the files that were found.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode (errors only)")
	rootCmd.PersistentFlags().StringVar(&scratchDir, "scratch-dir", os.Getenv(scratchDirEnv), "Parent directory for the scratch root (default: system temp dir, env "+scratchDirEnv+")")

	// Add subcommands
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(sniffCmd)
	rootCmd.AddCommand(manifestCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadEnv reads a .env file from the working directory, if present, and
// applies LOGBUDDY_* defaults that were not already set.
func loadEnv(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	if scratchDir == "" && !cmd.Flags().Changed("scratch-dir") {
		scratchDir = os.Getenv(scratchDirEnv)
	}
	return nil
}

// newLogger returns a text logger on w whose level follows --verbose and
// --quiet.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case quiet:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
