package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/akernet/logbuddy/pkg/sniff"
	"github.com/akernet/logbuddy/pkg/types"
)

var sniffFormat string

var sniffCmd = &cobra.Command{
	Use:   "sniff <file>...",
	Short: "Classify files by content",
	Long:  "Read the first bytes of each file and report whether it is an archive, another known format, or unknown",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSniff,
}

func init() {
	sniffCmd.Flags().StringVar(&sniffFormat, "format", "table", "Output format: table, json")
}

// sniffEntry is one classified file.
type sniffEntry struct {
	Path   string       `json:"path"`
	Kind   types.Kind   `json:"kind"`
	Format types.Format `json:"format,omitempty"`
	MIME   string       `json:"mime,omitempty"`
	Error  string       `json:"error,omitempty"`
}

func runSniff(cmd *cobra.Command, args []string) error {
	entries := make([]sniffEntry, 0, len(args))
	for _, path := range args {
		e := sniffEntry{Path: path}
		d, err := sniff.DetectFile(path)
		if err != nil {
			e.Error = err.Error()
		} else {
			e.Kind, e.Format, e.MIME = d.Kind, d.Format, d.MIME
		}
		entries = append(entries, e)
	}

	switch sniffFormat {
	case "json":
		return writeJSON(cmd.OutOrStdout(), entries)
	case "table":
		return outputSniffTable(cmd, entries)
	default:
		return fmt.Errorf("unknown output format: %s", sniffFormat)
	}
}

func outputSniffTable(cmd *cobra.Command, entries []sniffEntry) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tKIND\tFORMAT\tMIME")
	for _, e := range entries {
		if e.Error != "" {
			fmt.Fprintf(w, "%s\t%s\t-\t%s\n", e.Path, "error", e.Error)
			continue
		}
		format := string(e.Format)
		if format == "" {
			format = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Path, e.Kind, format, e.MIME)
	}
	return w.Flush()
}
