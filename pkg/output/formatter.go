package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
	"github.com/ritzau/fast-uptodate/pkg/uptodate"
)

// PrintCheckReport prints a check's explanation followed by a colored verdict.
// Failing lines are highlighted; verbose adds the snapshot the check ran against.
func PrintCheckReport(w io.Writer, res uptodate.Result, summary snapshot.Summary, verbose bool) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan := color.New(color.FgCyan)

	if verbose {
		bold.Fprintln(w, "Fast Up-To-Date Check")
		bold.Fprintln(w, "=====================")
		fmt.Fprintf(w, "Project: %s\n", summary.Project)
		cyan.Fprintf(w, "Snapshot: version %d, project version %d\n", summary.Version, summary.ProjectVersion)
		fmt.Fprintf(w, "Items: %d sources, %d inputs, %d outputs, %d built, %d references, %d analyzers\n",
			summary.SourceItems, summary.Inputs, summary.Outputs, summary.Built,
			summary.CompilationReferences, summary.AnalyzerReferences)
		fmt.Fprintln(w)
	}

	for i, line := range res.Lines {
		last := i == len(res.Lines)-1
		switch {
		case last && !res.UpToDate:
			red.Fprintln(w, line)
		case strings.Contains(line, "does not exist"):
			yellow.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}

	switch {
	case res.UpToDate:
		green.Fprintln(w, "✓ Up to date, build can be skipped")
	case res.Reason == uptodate.ReasonNone:
		yellow.Fprintln(w, "✗ Not up to date")
	default:
		red.Fprintf(w, "✗ Not up to date (%s)\n", res.Reason)
	}
}
