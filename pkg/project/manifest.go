// Package project loads a project's item declarations from a TOML manifest and turns
// them into item store deliveries.
package project

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pelletier/go-toml/v2"
	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
)

// Manifest is a decoded project manifest with all include globs expanded
type Manifest struct {
	Path       string // absolute manifest path
	Dir        string // project directory; relative item paths are rooted here
	Version    int64  // declared project version, 0 when absent
	Properties map[string]string
	Items      map[string][]model.Item

	includes []string // include globs, slash separated and relative to Dir
}

type manifestFile struct {
	Version    int64                  `toml:"version"`
	Properties map[string]any         `toml:"properties"`
	Items      map[string][]itemEntry `toml:"items"`
}

type itemEntry struct {
	Path     string         `toml:"path"`
	Include  string         `toml:"include"`
	Exclude  []string       `toml:"exclude"`
	Metadata map[string]any `toml:"metadata"`
}

// Load reads and expands the manifest at path
func Load(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest path %s: %w", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return Decode(f, abs)
}

// Decode reads a manifest from r; path locates the project when the manifest does not
func Decode(r io.Reader, path string) (*Manifest, error) {
	var raw manifestFile
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&raw); err != nil {
		return nil, &ManifestError{Path: path, Err: err}
	}
	if raw.Version < 0 {
		return nil, invalidf(path, "version %d is negative", raw.Version)
	}

	m := &Manifest{
		Path:       path,
		Version:    raw.Version,
		Properties: make(map[string]string, len(raw.Properties)),
		Items:      make(map[string][]model.Item),
	}
	for k, v := range raw.Properties {
		m.Properties[k] = stringify(v)
	}

	m.Dir = rootedAt(filepath.Dir(path), m.Properties[model.PropProjectDirectory])
	m.Properties[model.PropProjectDirectory] = m.Dir
	if m.Properties[model.PropProjectFullPath] == "" {
		m.Properties[model.PropProjectFullPath] = path
	}

	fsys := os.DirFS(m.Dir)
	for _, schema := range slices.Sorted(maps.Keys(raw.Items)) {
		if !slices.Contains(model.ItemSchemas, schema) {
			return nil, invalidf(path, "unknown item schema %q", schema)
		}
		for i, entry := range raw.Items[schema] {
			items, err := expand(fsys, entry)
			if err != nil {
				return nil, &ManifestError{Path: path, Msg: fmt.Sprintf("items.%s[%d]", schema, i), Err: err}
			}
			m.Items[schema] = append(m.Items[schema], items...)
			if entry.Include != "" {
				m.includes = append(m.includes, filepath.ToSlash(entry.Include))
			}
		}
	}
	return m, nil
}

// expand turns one entry into items; include matches are files only, in lexical order
func expand(fsys fs.FS, e itemEntry) ([]model.Item, error) {
	meta := make(map[string]string, len(e.Metadata))
	for k, v := range e.Metadata {
		meta[k] = stringify(v)
	}

	switch {
	case (e.Path == "") == (e.Include == ""):
		return nil, errors.New("exactly one of path or include is required")
	case e.Path != "":
		if len(e.Exclude) > 0 {
			return nil, errors.New("exclude only applies to include")
		}
		return []model.Item{{Path: e.Path, Metadata: meta}}, nil
	}

	pattern := filepath.ToSlash(e.Include)
	if strings.HasPrefix(pattern, "/") || filepath.IsAbs(e.Include) {
		return nil, fmt.Errorf("include %q must be relative to the project directory", e.Include)
	}
	for _, p := range append([]string{pattern}, e.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("bad glob pattern %q", p)
		}
	}

	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to expand %q: %w", pattern, err)
	}
	slices.Sort(matches)

	var items []model.Item
	for _, match := range matches {
		if excluded(match, e.Exclude) {
			continue
		}
		items = append(items, model.Item{Path: filepath.FromSlash(match), Metadata: maps.Clone(meta)})
	}
	return items, nil
}

func excluded(path string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

// Update converts the manifest into one store delivery. Every known schema is delivered,
// so a schema removed from the manifest reaches the store as empty. A zero version falls
// back to the manifest's own.
func (m *Manifest) Update(version int64) snapshot.Update {
	if version == 0 {
		version = m.Version
	}
	u := snapshot.Update{
		ProjectVersion: version,
		Changes: []snapshot.SchemaChange{{
			Schema:     model.SchemaConfigurationGeneral,
			Properties: maps.Clone(m.Properties),
			Changed:    true,
		}},
	}
	for _, schema := range model.ItemSchemas {
		u.Changes = append(u.Changes, snapshot.SchemaChange{
			Schema:  schema,
			Items:   slices.Clone(m.Items[schema]),
			Changed: true,
		})
	}
	return u
}

// ProjectFiles are the absolute paths of the project files the build evaluates
func (m *Manifest) ProjectFiles() []string {
	props := model.ParseProperties(m.Properties)
	files := make([]string, 0, len(props.AllProjects))
	for _, p := range props.AllProjects {
		files = append(files, rootedAt(m.Dir, p))
	}
	return files
}

// WatchDirs are the absolute directories whose entries decide what the include globs
// expand to: the base of every glob and each directory below it. A base that does not
// exist yet is replaced by its nearest existing ancestor alone, so its creation is seen.
func (m *Manifest) WatchDirs() []string {
	fsys := os.DirFS(m.Dir)
	seen := make(map[string]bool)
	var dirs []string
	add := func(rel string) {
		abs := filepath.Join(m.Dir, filepath.FromSlash(rel))
		if !seen[abs] {
			seen[abs] = true
			dirs = append(dirs, abs)
		}
	}

	for _, pattern := range m.includes {
		base, _ := doublestar.SplitPattern(pattern)
		base = path.Clean(base)
		if !isDir(fsys, base) {
			for base != "." && !isDir(fsys, base) {
				base = path.Dir(base)
			}
			add(base)
			continue
		}
		add(base)

		sub, err := doublestar.Glob(fsys, path.Join(base, "**"), doublestar.WithNoFiles())
		if err != nil {
			continue
		}
		for _, d := range sub {
			add(d)
		}
	}
	slices.Sort(dirs)
	return dirs
}

func isDir(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, name)
	return err == nil && info.IsDir()
}

func rootedAt(dir, p string) string {
	if p == "" {
		return filepath.Clean(dir)
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(dir, p)
}

// stringify flattens TOML scalars to MSBuild-style strings; arrays join with ';'
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringify(e)
		}
		return strings.Join(parts, ";")
	default:
		return fmt.Sprint(t)
	}
}
