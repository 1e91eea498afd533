package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/akernet/logbuddy"
	"github.com/akernet/logbuddy/pkg/datastore"
	"github.com/akernet/logbuddy/pkg/enum"
	"github.com/akernet/logbuddy/pkg/runner"
	"github.com/akernet/logbuddy/pkg/store"
	"github.com/akernet/logbuddy/pkg/unpack"
)

var (
	expandFormat        string
	expandExclude       []string
	expandMaxConcurrent int
	expandManifest      string
	expandSave          string
	expandKeep          bool
	expandColor         string
	expandMaxEntries    int
	expandMaxBytes      string
	expandIncludeHidden bool
	expandFollowLinks   bool
)

var expandCmd = &cobra.Command{
	Use:   "expand <file|dir>...",
	Short: "Recursively expand files and list what they contain",
	Long: `Copy each file into a private scratch directory, unpack every archive found
inside it, recursively, and list the resulting files.

Directories contribute every file below them, honouring a .gitignore at their
top. Files are processed concurrently. A corrupt nested archive is reported and
skipped without affecting its siblings.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExpand,
}

func init() {
	expandCmd.Flags().StringVar(&expandFormat, "format", "human", "Output format: human, json, yaml, tree")
	expandCmd.Flags().StringArrayVar(&expandExclude, "exclude", nil, "Drop files matching a gitignore-style pattern (repeatable)")
	expandCmd.Flags().IntVar(&expandMaxConcurrent, "max-concurrent", 0, "Maximum files expanded at once (0 for unlimited)")
	expandCmd.Flags().StringVar(&expandManifest, "manifest", "", "Record results in this manifest database (file path or postgres:// URL)")
	expandCmd.Flags().StringVar(&expandSave, "save", "", "Save the manifest and a copy of every file to this datastore directory")
	expandCmd.Flags().BoolVar(&expandKeep, "keep", false, "Keep the scratch directory after exit and print its location")
	expandCmd.Flags().StringVar(&expandColor, "color", "auto", "Color output: auto, always, never")
	expandCmd.Flags().IntVar(&expandMaxEntries, "max-entries", 0, "Maximum entries per archive (0 for unlimited)")
	expandCmd.Flags().StringVar(&expandMaxBytes, "max-bytes", "", "Maximum bytes written per archive, e.g. 2GiB (empty for unlimited)")
	expandCmd.Flags().BoolVar(&expandIncludeHidden, "include-hidden", false, "Include hidden files and directories when expanding a directory")
	expandCmd.Flags().BoolVar(&expandFollowLinks, "follow-symlinks", false, "Follow symbolic links when expanding a directory")
}

func runExpand(cmd *cobra.Command, args []string) error {
	switch expandFormat {
	case "human", "json", "yaml", "tree":
	default:
		return fmt.Errorf("unknown output format: %s", expandFormat)
	}

	limits := unpack.Limits{MaxEntries: expandMaxEntries}
	if expandMaxBytes != "" {
		n, err := humanize.ParseBytes(expandMaxBytes)
		if err != nil {
			return fmt.Errorf("invalid --max-bytes: %w", err)
		}
		limits.MaxBytes = int64(n)
	}

	out := cmd.OutOrStdout()
	useColor, err := colorEnabled(expandColor, out)
	if err != nil {
		return err
	}
	st := newStyles(useColor)
	logger := newLogger(cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []logbuddy.Option{
		logbuddy.WithScratchDir(scratchDir),
		logbuddy.WithMaxConcurrent(expandMaxConcurrent),
		logbuddy.WithExclude(expandExclude...),
		logbuddy.WithLimits(limits),
		logbuddy.WithLogger(logger),
	}
	if expandManifest != "" {
		m, err := store.New(store.Config{Path: expandManifest})
		if err != nil {
			return fmt.Errorf("opening manifest: %w", err)
		}
		defer m.Close()
		opts = append(opts, logbuddy.WithStore(m))
	}
	if expandKeep {
		opts = append(opts, logbuddy.WithKeepScratch())
	}

	var ds *datastore.Datastore
	if expandSave != "" {
		ds, err = datastore.Open(expandSave, datastore.Options{StoreBlobs: true})
		if err != nil {
			return fmt.Errorf("opening datastore: %w", err)
		}
		defer ds.Close()
	}

	files, err := enum.Collect(ctx, args, enum.Config{
		IncludeHidden:  expandIncludeHidden,
		FollowSymlinks: expandFollowLinks,
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to expand")
	}

	session, err := logbuddy.Open(opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	order := make(map[string]int, len(files))
	for i, path := range files {
		h := session.Load(ctx, path)
		order[h.ID] = i
	}

	reports := make([]report, len(files))
	failed := 0
	for range files {
		var ev runner.Event
		select {
		case ev = <-session.Events():
		case <-ctx.Done():
			return fmt.Errorf("interrupted")
		}

		if ev.Err != nil {
			failed++
		} else if ds != nil {
			// Leaves are copied out before the session removes the scratch root
			if err := ds.Save(ev.Result); err != nil {
				logger.Warn("saving submission", "source", ev.Source, "err", err)
			}
		}
		reports[order[ev.Submission]] = newReport(ev)
		if expandFormat == "human" {
			printEvent(out, st, ev)
		}
	}

	switch expandFormat {
	case "json":
		err = writeJSON(out, reports)
	case "yaml":
		err = writeYAML(out, reports)
	case "tree":
		err = writeTree(out, reports)
	}
	if err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if expandKeep {
		fmt.Fprintf(cmd.ErrOrStderr(), "Scratch directory kept at %s\n", session.ScratchDir())
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be loaded", failed, len(files))
	}
	return nil
}
