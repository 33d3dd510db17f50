package uptodate

import (
	"path/filepath"
	"strings"

	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/samber/lo"
)

// rootedAt makes p absolute relative to dir; absolute paths are only cleaned
func rootedAt(dir, p string) string {
	if p == "" {
		return dir
	}
	if filepath.IsAbs(p) || dir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

func (r *run) rooted(p string) string {
	return rootedAt(r.projectDir, p)
}

// outputs are the built outputs that are not copies, followed by custom outputs
func (r *run) outputs() []string {
	var out []string
	for _, b := range r.snap.Built {
		if !b.IsCopyTarget() {
			out = append(out, r.rooted(b.Path))
		}
	}
	for _, o := range r.snap.Outputs {
		out = append(out, r.rooted(o.Path))
	}
	return lo.Uniq(out)
}

// inputs in check order: project files, source items, custom inputs, analyzers, references
func (r *run) inputs() []string {
	var in []string
	for _, p := range r.snap.Properties.AllProjects {
		in = append(in, r.rooted(p))
	}
	for _, s := range r.snap.SourceItems {
		in = append(in, r.rooted(s.Path))
	}
	for _, i := range r.snap.Inputs {
		in = append(in, r.rooted(i.Path))
	}
	for _, a := range r.snap.AnalyzerReferences {
		in = append(in, r.rooted(a.ResolvedPath))
	}
	for _, c := range r.snap.CompilationReferences {
		in = append(in, r.rooted(c.ResolvedPath))
	}
	return lo.Uniq(in)
}

// markerInputs are the copy markers and marker inputs of references that declare a marker
func (r *run) markerInputs() []string {
	var in []string
	for _, c := range r.snap.CompilationReferences {
		if c.CopyUpToDateMarker == "" {
			continue
		}
		in = append(in, r.rooted(c.CopyUpToDateMarker), r.rooted(c.MarkerInput()))
	}
	return lo.Uniq(in)
}

// destinationRelative is where a PreserveNewest item lands below the output directory
func (r *run) destinationRelative(item model.SourceItem) string {
	if item.Link != "" {
		return item.Link
	}
	return relativeToProject(r.projectDir, item.Path)
}

// relativeToProject trims the project directory from absolute item paths
func relativeToProject(projectDir, p string) string {
	if !filepath.IsAbs(p) {
		return p
	}
	if projectDir != "" {
		if rel, err := filepath.Rel(projectDir, p); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return filepath.Base(p)
}
