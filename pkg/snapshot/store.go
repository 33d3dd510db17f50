package snapshot

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/ritzau/fast-uptodate/pkg/logging"
	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/ritzau/fast-uptodate/pkg/pubsub"
	"github.com/samber/lo"
)

// TopicSnapshot is the pubsub topic the store publishes applied updates to
const TopicSnapshot = "snapshot"

// SchemaChange is the data delivered for one schema after an evaluation or design-time build
type SchemaChange struct {
	Schema     string
	Items      []model.Item      // item schemas
	Properties map[string]string // property schemas (ConfigurationGeneral)
	Changed    bool              // false deliveries are ignored
}

// Update is one logical delivery; all of its changes are applied together
type Update struct {
	ProjectVersion int64
	Changes        []SchemaChange
}

type schemaData struct {
	items      []model.Item
	properties map[string]string
}

func (d schemaData) equal(o schemaData) bool {
	if !maps.Equal(d.properties, o.properties) {
		return false
	}
	return slices.EqualFunc(d.items, o.items, func(a, b model.Item) bool {
		return a.Path == b.Path && maps.Equal(a.Metadata, b.Metadata)
	})
}

// Store keeps the union of the most recently delivered data per schema
type Store struct {
	mu        sync.RWMutex
	schemas   map[string]schemaData
	current   *Snapshot
	publisher pubsub.Publisher
}

// Option configures a Store
type Option func(*Store)

// WithPublisher publishes a summary event on TopicSnapshot after each applied update
func WithPublisher(p pubsub.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// NewStore creates an empty store; Current returns an empty, unreceived snapshot until the first Apply
func NewStore(opts ...Option) *Store {
	s := &Store{
		schemas: make(map[string]schemaData),
		current: &Snapshot{SourceSets: map[string][]string{}},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the latest snapshot. The returned value must not be modified.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Apply records an update atomically and reports whether any schema content changed
func (s *Store) Apply(u Update) bool {
	s.mu.Lock()

	changed := false
	for _, c := range u.Changes {
		if !c.Changed {
			continue
		}
		next := schemaData{
			items:      slices.Clone(c.Items),
			properties: maps.Clone(c.Properties),
		}
		if prev, ok := s.schemas[c.Schema]; ok && prev.equal(next) {
			continue
		}
		s.schemas[c.Schema] = next
		changed = true
	}

	prev := s.current
	version := prev.Version
	if changed {
		version++
	}
	projectVersion := max(prev.ProjectVersion, u.ProjectVersion)

	if changed || !prev.Received || projectVersion != prev.ProjectVersion {
		s.current = s.build(version, projectVersion)
	}
	snap := s.current
	s.mu.Unlock()

	logging.Debug("applied snapshot update",
		"changed", changed,
		"version", snap.Version,
		"projectVersion", snap.ProjectVersion)

	if s.publisher != nil {
		if err := s.publisher.Publish(TopicSnapshot, "updated", snap.Summary()); err != nil {
			logging.Warn("failed to publish snapshot update", "error", err)
		}
	}
	return changed
}

// Run applies updates from a producer until the channel is closed or ctx is done
func (s *Store) Run(ctx context.Context, updates <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			s.Apply(u)
		}
	}
}

// build derives a typed snapshot from the raw schema data; callers hold s.mu
func (s *Store) build(version, projectVersion int64) *Snapshot {
	snap := &Snapshot{
		Version:        version,
		ProjectVersion: projectVersion,
		Received:       true,
		Properties:     model.ParseProperties(s.schemas[model.SchemaConfigurationGeneral].properties),
		SourceSets:     make(map[string][]string),
	}

	for _, schema := range model.SourceSchemas {
		items := s.schemas[schema].items
		snap.SourceSets[schema] = lo.Map(items, func(it model.Item, _ int) string { return it.Path })
		for _, it := range items {
			snap.SourceItems = append(snap.SourceItems, model.SourceItem{
				Schema:   schema,
				Path:     it.Path,
				Link:     it.Meta(model.MetaLink),
				CopyType: model.ParseCopyType(it.Meta(model.MetaCopyToOutputDirectory)),
			})
		}
	}

	snap.Inputs = lo.Map(s.schemas[model.SchemaUpToDateCheckInput].items, func(it model.Item, _ int) model.InputItem {
		return model.InputItem{Path: it.Path}
	})
	snap.Outputs = lo.Map(s.schemas[model.SchemaUpToDateCheckOutput].items, func(it model.Item, _ int) model.OutputItem {
		return model.OutputItem{Path: it.Path}
	})
	snap.Built = lo.Map(s.schemas[model.SchemaUpToDateCheckBuilt].items, func(it model.Item, _ int) model.BuiltItem {
		return model.BuiltItem{Path: it.Path, Original: it.Meta(model.MetaOriginal)}
	})
	snap.CompilationReferences = lo.Map(s.schemas[model.SchemaResolvedCompilationReference].items, func(it model.Item, _ int) model.CompilationReference {
		resolved := it.Meta(model.MetaResolvedPath)
		if resolved == "" {
			resolved = it.Path
		}
		return model.CompilationReference{
			ResolvedPath:       resolved,
			OriginalPath:       it.Meta(model.MetaOriginalPath),
			CopyUpToDateMarker: it.Meta(model.MetaCopyUpToDateMarker),
		}
	})
	snap.AnalyzerReferences = lo.Map(s.schemas[model.SchemaResolvedAnalyzerReference].items, func(it model.Item, _ int) model.AnalyzerReference {
		resolved := it.Meta(model.MetaResolvedPath)
		if resolved == "" {
			resolved = it.Path
		}
		return model.AnalyzerReference{ResolvedPath: resolved}
	})
	snap.Markers = lo.Map(s.schemas[model.SchemaCopyUpToDateMarker].items, func(it model.Item, _ int) model.MarkerItem {
		return model.MarkerItem{Path: it.Path}
	})

	return snap
}
