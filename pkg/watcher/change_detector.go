package watcher

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ChangeType represents the type of file change detected
type ChangeType int

const (
	// ChangeTypeManifest is a write, replace or removal of the project manifest
	ChangeTypeManifest ChangeType = iota
	// ChangeTypeProjectFile is a change to a file the build evaluates (MSBuildAllProjects)
	ChangeTypeProjectFile
	// ChangeTypeDirectory is a file added to or removed from a watched directory,
	// which can change what include globs expand to
	ChangeTypeDirectory
)

func (t ChangeType) String() string {
	switch t {
	case ChangeTypeManifest:
		return "manifest"
	case ChangeTypeProjectFile:
		return "project-file"
	case ChangeTypeDirectory:
		return "directory"
	}
	return "unknown"
}

// relevantOps are the operations that can change what the manifest evaluates to
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

// classify maps a raw event to a change type; ok is false for events that cannot affect the project
func classify(event fsnotify.Event, manifest string, projectFiles map[string]bool) (ChangeType, bool) {
	if event.Op&relevantOps == 0 {
		return 0, false
	}
	name := filepath.Clean(event.Name)
	switch {
	case name == manifest:
		return ChangeTypeManifest, true
	case projectFiles[name]:
		return ChangeTypeProjectFile, true
	case event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0:
		return ChangeTypeDirectory, true
	}
	// Plain content writes to other files are picked up by timestamp reads
	return 0, false
}
