package model

import (
	"fmt"
	"slices"
	"strings"
)

// BuildAction is the kind of build the orchestrator is about to run
type BuildAction string

const (
	ActionBuild   BuildAction = "Build"
	ActionClean   BuildAction = "Clean"
	ActionRebuild BuildAction = "Rebuild"
	ActionDeploy  BuildAction = "Deploy"
	ActionPackage BuildAction = "Package"
	ActionCompile BuildAction = "Compile"
	ActionLink    BuildAction = "Link"
)

var buildActions = []BuildAction{
	ActionBuild, ActionClean, ActionRebuild, ActionDeploy, ActionPackage, ActionCompile, ActionLink,
}

// ParseBuildAction parses an action name case-insensitively
func ParseBuildAction(s string) (BuildAction, error) {
	for _, a := range buildActions {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown build action %q", s)
}

// Schema names delivered by the project evaluation pipeline
const (
	SchemaCompile                      = "Compile"
	SchemaContent                      = "Content"
	SchemaNone                         = "None"
	SchemaEmbeddedResource             = "EmbeddedResource"
	SchemaUpToDateCheckInput           = "UpToDateCheckInput"
	SchemaUpToDateCheckOutput          = "UpToDateCheckOutput"
	SchemaUpToDateCheckBuilt           = "UpToDateCheckBuilt"
	SchemaResolvedCompilationReference = "ResolvedCompilationReference"
	SchemaResolvedAnalyzerReference    = "ResolvedAnalyzerReference"
	SchemaCopyUpToDateMarker           = "CopyUpToDateMarker"
	SchemaConfigurationGeneral         = "ConfigurationGeneral"
)

// SourceSchemas lists the item schemas that count as compiled or copied sources, in check order
var SourceSchemas = []string{SchemaCompile, SchemaContent, SchemaEmbeddedResource, SchemaNone}

// ItemSchemas lists every item schema the check consumes
var ItemSchemas = append(slices.Clone(SourceSchemas),
	SchemaUpToDateCheckInput,
	SchemaUpToDateCheckOutput,
	SchemaUpToDateCheckBuilt,
	SchemaResolvedCompilationReference,
	SchemaResolvedAnalyzerReference,
	SchemaCopyUpToDateMarker,
)

// Metadata keys
const (
	MetaCopyToOutputDirectory = "CopyToOutputDirectory"
	MetaOriginal              = "Original"
	MetaLink                  = "Link"
	MetaResolvedPath          = "ResolvedPath"
	MetaOriginalPath          = "OriginalPath"
	MetaCopyUpToDateMarker    = "CopyUpToDateMarker"
	MetaName                  = "Name"
)

// Properties of the ConfigurationGeneral schema
const (
	PropProjectFullPath          = "MSBuildProjectFullPath"
	PropProjectDirectory         = "MSBuildProjectDirectory"
	PropAllProjects              = "MSBuildAllProjects"
	PropOutputPath               = "OutputPath"
	PropDisableFastUpToDateCheck = "DisableFastUpToDateCheck"
)

// Item is the wire form of an evaluated item: an include path plus metadata
type Item struct {
	Path     string            `json:"path"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Meta returns the trimmed metadata value for key, or "" when absent
func (i Item) Meta(key string) string {
	return strings.TrimSpace(i.Metadata[key])
}

// CopyType is the CopyToOutputDirectory policy of a source item
type CopyType int

const (
	CopyNever CopyType = iota
	CopyAlways
	CopyPreserveNewest
)

// ParseCopyType maps a CopyToOutputDirectory value to a CopyType; unknown values mean never
func ParseCopyType(v string) CopyType {
	switch {
	case strings.EqualFold(v, "Always"):
		return CopyAlways
	case strings.EqualFold(v, "PreserveNewest"):
		return CopyPreserveNewest
	default:
		return CopyNever
	}
}

func (c CopyType) String() string {
	switch c {
	case CopyAlways:
		return "Always"
	case CopyPreserveNewest:
		return "PreserveNewest"
	default:
		return "Never"
	}
}

// SourceItem is a compiled, content, embedded or none item
type SourceItem struct {
	Schema   string   `json:"schema"`
	Path     string   `json:"path"`
	Link     string   `json:"link,omitempty"`
	CopyType CopyType `json:"copyType"`
}

// InputItem is an explicit UpToDateCheckInput
type InputItem struct {
	Path string `json:"path"`
}

// OutputItem is a custom UpToDateCheckOutput
type OutputItem struct {
	Path string `json:"path"`
}

// BuiltItem is a declared UpToDateCheckBuilt output
type BuiltItem struct {
	Path     string `json:"path"`
	Original string `json:"original,omitempty"` // source path when the output is a copy
}

// IsCopyTarget reports whether the output is produced by copying Original
func (b BuiltItem) IsCopyTarget() bool {
	return b.Original != ""
}

// CompilationReference is a resolved reference passed to the compiler
type CompilationReference struct {
	ResolvedPath       string `json:"resolvedPath"`
	OriginalPath       string `json:"originalPath,omitempty"`
	CopyUpToDateMarker string `json:"copyUpToDateMarker,omitempty"`
}

// MarkerInput is the path whose write time stands for the referenced project's build
func (r CompilationReference) MarkerInput() string {
	if r.OriginalPath != "" {
		return r.OriginalPath
	}
	return r.ResolvedPath
}

// AnalyzerReference is a resolved analyzer assembly
type AnalyzerReference struct {
	ResolvedPath string `json:"resolvedPath"`
}

// MarkerItem is the project's own copy marker output
type MarkerItem struct {
	Path string `json:"path"`
}

// ProjectProperties holds the ConfigurationGeneral values used by the check
type ProjectProperties struct {
	FullPath                 string   `json:"fullPath"`
	Directory                string   `json:"directory"`
	AllProjects              []string `json:"allProjects,omitempty"`
	OutputPath               string   `json:"outputPath"`
	DisableFastUpToDateCheck bool     `json:"disableFastUpToDateCheck"`
}

// ParseProperties converts raw ConfigurationGeneral values
func ParseProperties(props map[string]string) ProjectProperties {
	p := ProjectProperties{
		FullPath:   strings.TrimSpace(props[PropProjectFullPath]),
		Directory:  strings.TrimSpace(props[PropProjectDirectory]),
		OutputPath: strings.TrimSpace(props[PropOutputPath]),
	}
	p.DisableFastUpToDateCheck = strings.EqualFold(strings.TrimSpace(props[PropDisableFastUpToDateCheck]), "true")
	for _, part := range strings.Split(props[PropAllProjects], ";") {
		if part = strings.TrimSpace(part); part != "" {
			p.AllProjects = append(p.AllProjects, part)
		}
	}
	return p
}
