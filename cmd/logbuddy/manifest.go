package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/akernet/logbuddy/pkg/datastore"
	"github.com/akernet/logbuddy/pkg/store"
	"github.com/akernet/logbuddy/pkg/types"
)

var (
	manifestFormat string
	mergeOutput    string
)

var manifestCmd = &cobra.Command{
	Use:   "manifest <manifest.db|datastore>",
	Short: "List the contents of a manifest database",
	Long:  "Read submissions, leaves and failures recorded by 'expand --manifest' or 'expand --save'",
	Args:  cobra.ExactArgs(1),
	RunE:  runManifest,
}

var manifestMergeCmd = &cobra.Command{
	Use:   "merge <source1.db> <source2.db> [source3.db...]",
	Short: "Merge multiple manifest databases",
	Long: `Merge multiple manifest databases into a single output database.

Deduplication is automatic - submissions, leaves and failures that are
already present are only stored once.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runManifestMerge,
}

func init() {
	manifestCmd.Flags().StringVar(&manifestFormat, "format", "human", "Output format: human, json, yaml")
	manifestMergeCmd.Flags().StringVarP(&mergeOutput, "output", "o", "merged.db", "Output database path")
	manifestCmd.AddCommand(manifestMergeCmd)
}

// manifestEntry is one submission with everything recorded for it.
type manifestEntry struct {
	store.Submission `yaml:",inline"`
	Leaves           []types.Leaf    `json:"leaves" yaml:"leaves"`
	Failures         []types.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func runManifest(cmd *cobra.Command, args []string) error {
	path := args[0]
	if path == store.MemoryPath {
		return fmt.Errorf("cannot read an in-memory manifest")
	}
	if !store.IsPostgresURL(path) {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("manifest not found: %s", path)
		}
		path = datastore.ManifestPath(path)
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("manifest not found: %s", path)
		}
	}

	s, err := store.New(store.Config{Path: path})
	if err != nil {
		return fmt.Errorf("opening manifest: %w", err)
	}
	defer s.Close()

	subs, err := s.GetSubmissions()
	if err != nil {
		return fmt.Errorf("retrieving submissions: %w", err)
	}

	entries := make([]manifestEntry, 0, len(subs))
	for _, sub := range subs {
		leaves, err := s.GetLeaves(sub.ID)
		if err != nil {
			return fmt.Errorf("retrieving leaves: %w", err)
		}
		failures, err := s.GetFailures(sub.ID)
		if err != nil {
			return fmt.Errorf("retrieving failures: %w", err)
		}
		if leaves == nil {
			leaves = []types.Leaf{}
		}
		entries = append(entries, manifestEntry{Submission: sub, Leaves: leaves, Failures: failures})
	}

	switch manifestFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), entries)
	case "yaml":
		return writeYAML(cmd.OutOrStdout(), entries)
	case "human":
		return outputManifestHuman(cmd, path, entries)
	default:
		return fmt.Errorf("unknown output format: %s", manifestFormat)
	}
}

func outputManifestHuman(cmd *cobra.Command, path string, entries []manifestEntry) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Manifest: %s\n", path)
	fmt.Fprintf(out, "Submissions: %d\n", len(entries))

	for _, e := range entries {
		var total int64
		for _, l := range e.Leaves {
			total += l.Size
		}
		fmt.Fprintf(out, "\n%s (%s)\n", e.Source, e.ID)
		if !e.Finished.IsZero() {
			fmt.Fprintf(out, "  Loaded %s, took %s\n", humanize.Time(e.Finished), e.Finished.Sub(e.Started))
		}
		fmt.Fprintf(out, "  Files: %d, %s\n", len(e.Leaves), humanize.Bytes(uint64(total)))
		for _, l := range e.Leaves {
			fmt.Fprintf(out, "    %s\n", l.Member)
		}
		for _, f := range e.Failures {
			fmt.Fprintf(out, "  Failed %s %s: %s\n", f.Op, f.Path, f.Message)
		}
	}
	return nil
}

func runManifestMerge(cmd *cobra.Command, args []string) error {
	stats, err := store.Merge(store.MergeConfig{
		SourcePaths: args,
		DestPath:    mergeOutput,
	})
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merge complete:\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  Sources processed: %d\n", stats.SourcesProcessed)
	fmt.Fprintf(cmd.OutOrStdout(), "  Submissions merged: %d\n", stats.SubmissionsMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Leaves merged: %d\n", stats.LeavesMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "  Failures merged: %d\n", stats.FailuresMerged)
	fmt.Fprintf(cmd.OutOrStdout(), "Output: %s\n", mergeOutput)

	return nil
}
