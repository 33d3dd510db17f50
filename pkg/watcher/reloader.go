package watcher

import (
	"context"

	"github.com/ritzau/fast-uptodate/pkg/logging"
	"github.com/ritzau/fast-uptodate/pkg/project"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
	"github.com/ritzau/fast-uptodate/pkg/uptodate"
)

// Reloader turns debounced changes into store deliveries
type Reloader struct {
	manifest string
	versions *uptodate.VersionCounter
	updates  chan<- snapshot.Update
	watcher  *FileWatcher
}

// NewReloader creates a reloader for manifest; watcher may be nil
func NewReloader(manifest string, versions *uptodate.VersionCounter, updates chan<- snapshot.Update, watcher *FileWatcher) *Reloader {
	return &Reloader{manifest: manifest, versions: versions, updates: updates, watcher: watcher}
}

// Reload loads the manifest and delivers it tagged with the current project version.
// The version is read before loading, so a change that lands during the load keeps
// the host version ahead of the delivered snapshot until the next reload.
func (r *Reloader) Reload(ctx context.Context) error {
	version := r.versions.CurrentProjectVersion()
	m, err := r.load()
	if err != nil {
		return err
	}
	if m.Version > version {
		r.versions.Set(m.Version)
		version = m.Version
	}

	select {
	case r.updates <- m.Update(version):
		logging.Debug("delivered manifest", "path", m.Path, "projectVersion", version)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// load reads the manifest and watches what it names. Files created in a directory
// before its watch was added raise no event, so newly watched directories are
// expanded once more after the watch is in place.
func (r *Reloader) load() (*project.Manifest, error) {
	m, err := project.Load(r.manifest)
	if err != nil || r.watcher == nil {
		return m, err
	}
	if !r.watch(m) {
		return m, nil
	}
	if m, err = project.Load(r.manifest); err != nil {
		return nil, err
	}
	r.watch(m)
	return m, nil
}

// watch reports whether any directory was newly watched
func (r *Reloader) watch(m *project.Manifest) bool {
	r.watcher.SetProjectFiles(m.ProjectFiles())
	return r.watcher.SetWatchDirs(m.WatchDirs()) > 0
}

// Run reloads once per debounced batch until changes is closed or ctx is done.
// A failed reload leaves the previous snapshot in place; it is older than the
// project version by then, so checks report the project out of date.
func (r *Reloader) Run(ctx context.Context, changes <-chan ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			logging.Info("reloading project manifest", "changes", len(ev.Paths))
			if err := r.Reload(ctx); err != nil {
				logging.Warn("failed to reload project manifest", "path", r.manifest, "error", err)
			}
		}
	}
}
