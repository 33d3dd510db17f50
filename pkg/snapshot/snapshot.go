package snapshot

import "github.com/ritzau/fast-uptodate/pkg/model"

// Snapshot is an immutable view of a project's items at one store version
type Snapshot struct {
	// Version is bumped once per applied update that changed content
	Version int64
	// ProjectVersion is the newest project version delivered so far
	ProjectVersion int64
	// Received is true once any update has been applied
	Received bool

	Properties            model.ProjectProperties
	SourceItems           []model.SourceItem
	Inputs                []model.InputItem
	Outputs               []model.OutputItem
	Built                 []model.BuiltItem
	CompilationReferences []model.CompilationReference
	AnalyzerReferences    []model.AnalyzerReference
	Markers               []model.MarkerItem

	// SourceSets maps each source schema to its ordered item paths
	SourceSets map[string][]string
}

// Summary is the JSON-friendly overview of a snapshot
type Summary struct {
	Version               int64  `json:"version"`
	ProjectVersion        int64  `json:"projectVersion"`
	Received              bool   `json:"received"`
	Project               string `json:"project"`
	SourceItems           int    `json:"sourceItems"`
	Inputs                int    `json:"inputs"`
	Outputs               int    `json:"outputs"`
	Built                 int    `json:"built"`
	CompilationReferences int    `json:"compilationReferences"`
	AnalyzerReferences    int    `json:"analyzerReferences"`
	Markers               int    `json:"markers"`
}

func (s *Snapshot) Summary() Summary {
	return Summary{
		Version:               s.Version,
		ProjectVersion:        s.ProjectVersion,
		Received:              s.Received,
		Project:               s.Properties.FullPath,
		SourceItems:           len(s.SourceItems),
		Inputs:                len(s.Inputs),
		Outputs:               len(s.Outputs),
		Built:                 len(s.Built),
		CompilationReferences: len(s.CompilationReferences),
		AnalyzerReferences:    len(s.AnalyzerReferences),
		Markers:               len(s.Markers),
	}
}

// MarkerPath returns the project's copy marker output, or "" when none is declared
func (s *Snapshot) MarkerPath() string {
	for _, m := range s.Markers {
		if m.Path != "" {
			return m.Path
		}
	}
	return ""
}
