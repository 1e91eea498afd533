package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/akernet/logbuddy/pkg/filetree"
	"github.com/akernet/logbuddy/pkg/runner"
	"github.com/akernet/logbuddy/pkg/types"
)

// styles holds color formatters for human output.
type styles struct {
	heading *color.Color
	member  *color.Color
	failure *color.Color
	meta    *color.Color
}

// newStyles creates color formatters; enabled=false prints plain text.
func newStyles(enabled bool) *styles {
	s := &styles{
		heading: color.New(color.Bold, color.FgHiWhite),
		member:  color.New(color.FgHiGreen),
		failure: color.New(color.FgRed),
		meta:    color.New(color.FgHiBlue),
	}

	if !enabled {
		s.heading.DisableColor()
		s.member.DisableColor()
		s.failure.DisableColor()
		s.meta.DisableColor()
	}

	return s
}

// colorEnabled resolves a --color mode against the output writer.
func colorEnabled(mode string, out io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto", "":
		if os.Getenv("NO_COLOR") != "" {
			return false, nil
		}
		f, ok := out.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("unknown color mode: %s", mode)
	}
}

// report is the serialised outcome of one submission.
type report struct {
	Submission string          `json:"submission" yaml:"submission"`
	Source     string          `json:"source" yaml:"source"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
	Leaves     []types.Leaf    `json:"leaves" yaml:"leaves"`
	Failures   []types.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

func newReport(ev runner.Event) report {
	r := report{Submission: ev.Submission, Source: ev.Source, Leaves: []types.Leaf{}}
	if ev.Err != nil {
		r.Error = ev.Err.Error()
		return r
	}
	if ev.Result.Leaves != nil {
		r.Leaves = ev.Result.Leaves
	}
	r.Failures = ev.Result.FailureRecords()
	return r
}

// printEvent writes one submission in human form.
func printEvent(out io.Writer, s *styles, ev runner.Event) {
	if ev.Err != nil {
		fmt.Fprintf(out, "%s\n", s.failure.Sprint(ev.Summary()))
		return
	}

	fmt.Fprintf(out, "%s\n", s.heading.Sprint(ev.Summary()))
	for _, leaf := range ev.Result.Leaves {
		fmt.Fprintf(out, "  %s %s\n",
			s.member.Sprint(leaf.Member),
			s.meta.Sprintf("(%s, %s)", leaf.Kind, humanize.Bytes(uint64(leaf.Size))),
		)
	}
	for _, f := range ev.Result.FailureRecords() {
		fmt.Fprintf(out, "  %s %s: %s\n", s.failure.Sprint("failed"), f.Path, f.Message)
	}
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeYAML(out io.Writer, v any) error {
	encoder := yaml.NewEncoder(out)
	encoder.SetIndent(2)
	if err := encoder.Encode(v); err != nil {
		return err
	}
	return encoder.Close()
}

// writeTree renders the member paths of every report as one tree.
func writeTree(out io.Writer, reports []report) error {
	var members []string
	for _, r := range reports {
		for _, leaf := range r.Leaves {
			members = append(members, leaf.Member)
		}
	}
	return filetree.Build("", members).Render(out)
}
