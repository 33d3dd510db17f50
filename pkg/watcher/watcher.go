// Package watcher reloads a project manifest when it, a project file it names, or a
// directory its include globs walk changes.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/fast-uptodate/pkg/logging"
)

// ChangeEvent represents a batch of file system changes
type ChangeEvent struct {
	Types     []ChangeType
	Paths     []string
	Timestamp time.Time
}

// FileWatcher watches a manifest and its project files
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	manifest string
	onChange func()
	events   chan ChangeEvent

	mu           sync.Mutex
	projectFiles map[string]bool
	dirs         map[string]bool
}

// NewFileWatcher creates a watcher for manifest. onChange, when set, runs synchronously
// for every relevant raw event before it is queued.
func NewFileWatcher(manifest string, onChange func()) (*FileWatcher, error) {
	abs, err := filepath.Abs(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	fw := &FileWatcher{
		watcher:      w,
		manifest:     abs,
		onChange:     onChange,
		events:       make(chan ChangeEvent, 100),
		projectFiles: make(map[string]bool),
		dirs:         make(map[string]bool),
	}
	// Editors replace files by rename, so watch directories rather than files
	if err := fw.addDir(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return fw, nil
}

func (fw *FileWatcher) addDir(dir string) error {
	if fw.dirs[dir] {
		return nil
	}
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	fw.dirs[dir] = true
	logging.Debug("watching directory", "path", dir)
	return nil
}

// SetProjectFiles replaces the watched project files. Files in directories that
// cannot be watched are logged and skipped.
func (fw *FileWatcher) SetProjectFiles(files []string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.projectFiles = make(map[string]bool, len(files))
	for _, f := range files {
		f = filepath.Clean(f)
		fw.projectFiles[f] = true
		if err := fw.addDir(filepath.Dir(f)); err != nil {
			logging.Warn("failed to watch project file", "path", f, "error", err)
		}
	}
}

// SetWatchDirs adds the directories include globs walk and returns how many were
// not watched before. Directories that cannot be watched are logged and skipped.
func (fw *FileWatcher) SetWatchDirs(dirs []string) int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	added := 0
	for _, d := range dirs {
		d = filepath.Clean(d)
		if fw.dirs[d] {
			continue
		}
		if err := fw.addDir(d); err != nil {
			logging.Warn("failed to watch directory", "path", d, "error", err)
			continue
		}
		added++
	}
	return added
}

// forget drops a removed directory so it is watched again once recreated
func (fw *FileWatcher) forget(name string) {
	if fw.dirs[name] {
		delete(fw.dirs, name)
		logging.Debug("stopped watching directory", "path", name)
	}
}

// Start processes events until ctx is done; the events channel is closed afterwards
func (fw *FileWatcher) Start(ctx context.Context) {
	logging.Info("started watching project", "manifest", fw.manifest)
	go fw.processEvents(ctx)
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.mu.Lock()
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				fw.forget(filepath.Clean(event.Name))
			}
			kind, relevant := classify(event, fw.manifest, fw.projectFiles)
			fw.mu.Unlock()
			if !relevant {
				logging.Trace("ignored file event", "path", event.Name, "op", event.Op.String())
				continue
			}
			logging.Debug("project change", "path", event.Name, "type", kind.String(), "op", event.Op.String())
			if fw.onChange != nil {
				fw.onChange()
			}
			select {
			case fw.events <- ChangeEvent{Types: []ChangeType{kind}, Paths: []string{event.Name}, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Events returns the channel of raw change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}
