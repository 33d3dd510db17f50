package uptodate

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
	"github.com/ritzau/fast-uptodate/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeTimestamps struct {
	times map[string]time.Time
	errs  map[string]error
	reads map[string]int
}

func newFakeTimestamps() *fakeTimestamps {
	return &fakeTimestamps{
		times: make(map[string]time.Time),
		errs:  make(map[string]error),
		reads: make(map[string]int),
	}
}

func (f *fakeTimestamps) LastWriteTimeUTC(path string) (time.Time, bool, error) {
	f.reads[path]++
	if err := f.errs[path]; err != nil {
		return time.Time{}, false, err
	}
	t, ok := f.times[path]
	return t, ok, nil
}

func (f *fakeTimestamps) touch(path string, t time.Time) {
	f.times[path] = t
}

const projectDir = "/src/app"

func properties(extra map[string]string) snapshot.SchemaChange {
	props := map[string]string{
		model.PropProjectFullPath:  projectDir + "/app.csproj",
		model.PropProjectDirectory: projectDir,
		model.PropOutputPath:       "bin/",
	}
	for k, v := range extra {
		props[k] = v
	}
	return snapshot.SchemaChange{Schema: model.SchemaConfigurationGeneral, Properties: props, Changed: true}
}

func items(schema string, paths ...string) snapshot.SchemaChange {
	c := snapshot.SchemaChange{Schema: schema, Changed: true}
	for _, p := range paths {
		c.Items = append(c.Items, model.Item{Path: p})
	}
	return c
}

func itemWithMeta(schema, path string, meta map[string]string) snapshot.SchemaChange {
	return snapshot.SchemaChange{
		Schema:  schema,
		Items:   []model.Item{{Path: path, Metadata: meta}},
		Changed: true,
	}
}

type fixture struct {
	store    *snapshot.Store
	stamps   *fakeTimestamps
	rec      *telemetry.Recorder
	tasks    *TaskQueue
	versions *VersionCounter
	now      time.Time
	checker  *Checker
}

func newFixture(t *testing.T, changes ...snapshot.SchemaChange) *fixture {
	t.Helper()
	f := &fixture{
		store:    snapshot.NewStore(),
		stamps:   newFakeTimestamps(),
		rec:      telemetry.NewRecorder(),
		tasks:    &TaskQueue{},
		versions: &VersionCounter{},
		now:      t0.Add(10 * time.Minute),
	}
	f.versions.Set(1)
	hasProps := false
	for _, c := range changes {
		if c.Schema == model.SchemaConfigurationGeneral {
			hasProps = true
		}
	}
	if !hasProps {
		changes = append([]snapshot.SchemaChange{properties(nil)}, changes...)
	}
	f.store.Apply(snapshot.Update{ProjectVersion: 1, Changes: changes})
	f.checker = NewChecker(f.store,
		WithTimestampSource(f.stamps),
		WithTelemetry(f.rec),
		WithTaskTracker(f.tasks),
		WithProjectVersionSource(f.versions),
		WithClock(func() time.Time { return f.now }),
	)
	return f
}

// standard is a project with one source file and one built output, both present
func standard(t *testing.T, extra ...snapshot.SchemaChange) *fixture {
	t.Helper()
	changes := append([]snapshot.SchemaChange{
		items(model.SchemaCompile, "Program.cs"),
		items(model.SchemaUpToDateCheckBuilt, "bin/app.dll"),
	}, extra...)
	f := newFixture(t, changes...)
	f.stamps.touch(projectDir+"/Program.cs", t0)
	f.stamps.touch(projectDir+"/bin/app.dll", t0.Add(time.Minute))
	return f
}

// prime runs the first bookkeeping check that establishes the item baseline
func (f *fixture) prime(t *testing.T) {
	t.Helper()
	res := f.checker.Check(model.ActionBuild)
	require.Equal(t, ReasonItemInfoOutOfDate, res.Reason, "lines: %v", res.Lines)
	f.rec.Reset()
}

func (f *fixture) requireSingleEvent(t *testing.T, res Result) {
	t.Helper()
	events := f.rec.Events()
	require.Len(t, events, 1)
	if res.UpToDate {
		assert.Equal(t, telemetry.EventCheckSuccess, events[0].Name)
		assert.Empty(t, events[0].Properties)
		return
	}
	assert.Equal(t, telemetry.EventCheckFail, events[0].Name)
	assert.Equal(t, map[string]string{telemetry.PropertyReason: string(res.Reason)}, events[0].Properties)
}

func (f *fixture) check(t *testing.T) Result {
	t.Helper()
	f.rec.Reset()
	res := f.checker.Check(model.ActionBuild)
	f.requireSingleEvent(t, res)
	return res
}

func line(msg string) string {
	return FormatLine(msg, "app")
}

func TestCheck_NonBuildActionsFallThrough(t *testing.T) {
	f := standard(t)
	for _, action := range []model.BuildAction{
		model.ActionClean, model.ActionRebuild, model.ActionDeploy,
		model.ActionPackage, model.ActionCompile, model.ActionLink,
	} {
		res := f.checker.Check(action)
		assert.False(t, res.UpToDate, action)
		assert.Equal(t, ReasonNone, res.Reason, action)
		assert.Empty(t, res.Lines, action)
	}
	assert.Empty(t, f.rec.Events())
	_, checked := f.checker.State().LastCheckedAt()
	assert.False(t, checked)
}

func TestCheck_FirstCheckEstablishesBaseline(t *testing.T) {
	f := standard(t)

	res := f.check(t)
	assert.False(t, res.UpToDate)
	assert.Equal(t, ReasonItemInfoOutOfDate, res.Reason)
	assert.Equal(t, []string{
		line("The list of source items has changed since the last build, not up to date."),
	}, res.Lines)

	res = f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
	assert.Equal(t, line("Project is up to date."), res.Lines[len(res.Lines)-1])
}

func TestCheck_Disabled(t *testing.T) {
	f := standard(t, properties(map[string]string{model.PropDisableFastUpToDateCheck: " True "}))

	for i := 0; i < 3; i++ {
		res := f.check(t)
		assert.Equal(t, ReasonDisabled, res.Reason)
		assert.Equal(t, []string{
			line("The 'DisableFastUpToDateCheck' property is true, not up to date."),
		}, res.Lines)
	}
}

func TestCheck_CriticalTasks(t *testing.T) {
	f := standard(t)
	f.prime(t)

	done := f.tasks.Begin()
	res := f.check(t)
	assert.Equal(t, ReasonCriticalTasks, res.Reason)
	assert.Equal(t, []string{line("Critical build tasks are running, not up to date.")}, res.Lines)

	done()
	done()
	res = f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
}

func TestCheck_NoSnapshotReceived(t *testing.T) {
	store := snapshot.NewStore()
	rec := telemetry.NewRecorder()
	c := NewChecker(store, WithTimestampSource(newFakeTimestamps()), WithTelemetry(rec))

	res := c.Check(model.ActionBuild)
	assert.Equal(t, ReasonProjectInfoOutOfDate, res.Reason)
	assert.Equal(t, []string{
		FormatLine("Project information is older than current project version, not up to date.", ""),
	}, res.Lines)
	assert.Len(t, rec.Events(), 1)
	assert.False(t, c.State().HasReceivedItemSnapshot())
}

func TestCheck_ProjectVersion(t *testing.T) {
	f := standard(t)
	f.prime(t)

	// The host moved on but the snapshot for the new version has not arrived yet
	f.versions.Bump()
	res := f.check(t)
	assert.Equal(t, ReasonProjectInfoOutOfDate, res.Reason)

	f.store.Apply(snapshot.Update{ProjectVersion: 2})
	res = f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
	assert.Equal(t, int64(2), f.checker.State().LastSeenProjectVersion())

	// An older version delivered late is harmless
	f.store.Apply(snapshot.Update{ProjectVersion: 1})
	res = f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
	assert.Equal(t, int64(2), f.checker.State().LastSeenProjectVersion())
}

func TestCheck_UpToDateIsIdempotent(t *testing.T) {
	f := standard(t)
	f.prime(t)

	first := f.check(t)
	require.True(t, first.UpToDate, "lines: %v", first.Lines)
	checkedAt, ok := f.checker.State().LastCheckedAt()
	require.True(t, ok)
	assert.Equal(t, f.now, checkedAt)

	f.now = f.now.Add(time.Second)
	second := f.check(t)
	assert.True(t, second.UpToDate, "lines: %v", second.Lines)
	assert.Equal(t, first.Lines, second.Lines)
}

func TestCheck_ItemSetChanged(t *testing.T) {
	f := standard(t)
	f.prime(t)
	require.True(t, f.check(t).UpToDate)

	f.stamps.touch(projectDir+"/Util.cs", t0)
	f.store.Apply(snapshot.Update{ProjectVersion: 1, Changes: []snapshot.SchemaChange{
		items(model.SchemaCompile, "Program.cs", "Util.cs"),
	}})
	res := f.check(t)
	assert.Equal(t, ReasonItemInfoOutOfDate, res.Reason)

	res = f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)

	// Reordering counts as a change
	f.store.Apply(snapshot.Update{ProjectVersion: 1, Changes: []snapshot.SchemaChange{
		items(model.SchemaCompile, "Util.cs", "Program.cs"),
	}})
	assert.Equal(t, ReasonItemInfoOutOfDate, f.check(t).Reason)
}

func TestCheck_CopyAlwaysItem(t *testing.T) {
	f := standard(t, itemWithMeta(model.SchemaContent, "config.json",
		map[string]string{model.MetaCopyToOutputDirectory: "Always"}))
	f.stamps.touch(projectDir+"/config.json", t0)
	f.prime(t)

	res := f.check(t)
	assert.Equal(t, ReasonCopyAlwaysItemExists, res.Reason)
	assert.Equal(t, []string{
		line("Item '/src/app/config.json' has CopyToOutputDirectory set to 'Always', not up to date."),
	}, res.Lines)
}

func TestCheck_MissingOutput(t *testing.T) {
	f := standard(t, items(model.SchemaUpToDateCheckOutput, "obj/app.pdb"))
	f.prime(t)

	res := f.check(t)
	assert.Equal(t, ReasonOutputs, res.Reason)
	assert.Equal(t, []string{line("Output '/src/app/obj/app.pdb' does not exist, not up to date.")}, res.Lines)
}

func TestCheck_MissingInput(t *testing.T) {
	f := standard(t, items(model.SchemaUpToDateCheckInput, "schema.xsd"))
	f.prime(t)

	res := f.check(t)
	assert.Equal(t, ReasonOutputs, res.Reason)
	assert.Equal(t, line("Input '/src/app/schema.xsd' does not exist, not up to date."), res.Lines[len(res.Lines)-1])
}

func TestCheck_InputNewerThanEarliestOutput(t *testing.T) {
	f := standard(t, items(model.SchemaUpToDateCheckOutput, "obj/app.pdb"))
	f.stamps.touch(projectDir+"/obj/app.pdb", t0.Add(5*time.Minute))
	f.stamps.touch(projectDir+"/Program.cs", t0.Add(2*time.Minute))
	f.prime(t)

	res := f.check(t)
	assert.Equal(t, ReasonOutputs, res.Reason)
	want := "Input '/src/app/Program.cs' is newer (" + formatTime(t0.Add(2*time.Minute)) +
		") than earliest output '/src/app/bin/app.dll' (" + formatTime(t0.Add(time.Minute)) + "), not up to date."
	assert.Equal(t, []string{line(want)}, res.Lines)
}

func TestCheck_EqualTimestampsAreNotNewer(t *testing.T) {
	f := standard(t)
	f.stamps.touch(projectDir+"/Program.cs", t0.Add(time.Minute))
	f.prime(t)

	assert.True(t, f.check(t).UpToDate)
}

func TestCheck_ProjectFilesAreInputs(t *testing.T) {
	f := standard(t, properties(map[string]string{
		model.PropAllProjects: projectDir + "/app.csproj;/src/Directory.Build.props",
	}))
	f.stamps.touch(projectDir+"/app.csproj", t0)
	f.stamps.touch("/src/Directory.Build.props", t0.Add(3*time.Minute))
	f.prime(t)

	res := f.check(t)
	assert.Equal(t, ReasonOutputs, res.Reason)
	assert.Contains(t, res.Lines[0], "Input '/src/Directory.Build.props' is newer")
}

func TestCheck_RaceWindow(t *testing.T) {
	f := standard(t)
	f.prime(t)
	require.True(t, f.check(t).UpToDate)

	// A build starts, the input changes mid-build and the output lands afterwards
	f.stamps.touch(projectDir+"/Program.cs", f.now.Add(time.Minute))
	f.stamps.touch(projectDir+"/bin/app.dll", f.now.Add(2*time.Minute))
	f.now = f.now.Add(3 * time.Minute)

	res := f.check(t)
	assert.Equal(t, ReasonOutputs, res.Reason)
	assert.Equal(t, []string{
		line("Input '/src/app/Program.cs' has been modified since the last up-to-date check, not up to date."),
	}, res.Lines)

	// Failing checks do not move the reference time
	res = f.check(t)
	assert.Equal(t, ReasonOutputs, res.Reason)

	// A build started after the modification covers it
	f.checker.BuildStarted(f.now.Add(time.Minute))
	f.stamps.touch(projectDir+"/bin/app.dll", f.now.Add(2*time.Minute))
	f.now = f.now.Add(3 * time.Minute)
	res = f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
}

func TestCheck_NoOutputsDefined(t *testing.T) {
	f := newFixture(t, items(model.SchemaCompile, "Program.cs"))
	f.stamps.touch(projectDir+"/Program.cs", t0)
	f.prime(t)

	res := f.check(t)
	assert.True(t, res.UpToDate)
	assert.Equal(t, []string{
		line("No build outputs defined."),
		line("Project is up to date."),
	}, res.Lines)
}

func TestCheck_EmptyProjectIsUpToDate(t *testing.T) {
	f := newFixture(t)
	f.prime(t)

	res := f.check(t)
	assert.True(t, res.UpToDate)
}

func TestCheck_Markers(t *testing.T) {
	ref := snapshot.SchemaChange{
		Schema:  model.SchemaResolvedCompilationReference,
		Changed: true,
		Items: []model.Item{{
			Path: "/src/lib/bin/lib.dll",
			Metadata: map[string]string{
				model.MetaResolvedPath:       "/src/lib/bin/lib.dll",
				model.MetaOriginalPath:       "/src/lib/obj/lib.dll",
				model.MetaCopyUpToDateMarker: "/src/lib/obj/lib.csproj.CopyComplete",
			},
		}},
	}
	f := standard(t, ref, items(model.SchemaCopyUpToDateMarker, "obj/app.csproj.CopyComplete"))
	f.stamps.touch("/src/lib/bin/lib.dll", t0)
	f.stamps.touch("/src/lib/obj/lib.dll", t0)
	f.stamps.touch("/src/lib/obj/lib.csproj.CopyComplete", t0.Add(3*time.Minute))
	f.stamps.touch(projectDir+"/obj/app.csproj.CopyComplete", t0.Add(2*time.Minute))
	f.prime(t)

	res := f.check(t)
	assert.Equal(t, ReasonMarker, res.Reason)
	assert.Equal(t, []string{
		line("Input marker '/src/lib/obj/lib.csproj.CopyComplete' write time is " + formatTime(t0.Add(3*time.Minute)) + "."),
		line("Input marker '/src/lib/obj/lib.dll' write time is " + formatTime(t0) + "."),
		line("Output marker '/src/app/obj/app.csproj.CopyComplete' write time is " + formatTime(t0.Add(2*time.Minute)) + "."),
		line("Input marker is newer than output marker, not up to date."),
	}, res.Lines)

	f.stamps.touch(projectDir+"/obj/app.csproj.CopyComplete", t0.Add(3*time.Minute))
	res = f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
}

func TestCheck_MarkerInputsNeedMarkerMetadata(t *testing.T) {
	ref := snapshot.SchemaChange{
		Schema:  model.SchemaResolvedCompilationReference,
		Changed: true,
		Items: []model.Item{
			{
				Path: "/src/lib/bin/lib.dll",
				Metadata: map[string]string{
					model.MetaResolvedPath:       "/src/lib/bin/lib.dll",
					model.MetaCopyUpToDateMarker: "/src/lib/obj/lib.csproj.CopyComplete",
				},
			},
			{
				// A package reference: no marker, so its original path never counts as a marker input
				Path: "/nuget/json/lib/json.dll",
				Metadata: map[string]string{
					model.MetaResolvedPath: "/nuget/json/lib/json.dll",
					model.MetaOriginalPath: "/nuget/json/src/json.dll",
				},
			},
		},
	}
	f := standard(t, ref, items(model.SchemaCopyUpToDateMarker, "obj/app.csproj.CopyComplete"))
	f.stamps.touch("/src/lib/bin/lib.dll", t0)
	f.stamps.touch("/src/lib/obj/lib.csproj.CopyComplete", t0)
	f.stamps.touch("/nuget/json/lib/json.dll", t0)
	f.stamps.touch("/nuget/json/src/json.dll", t0.Add(5*time.Minute))
	f.stamps.touch(projectDir+"/obj/app.csproj.CopyComplete", t0.Add(time.Minute))
	f.prime(t)

	res := f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
	for _, l := range res.Lines {
		assert.NotContains(t, l, "/nuget/json/src/json.dll")
	}
	assert.Contains(t, res.Lines, line("Input marker '/src/lib/bin/lib.dll' write time is "+formatTime(t0)+"."))
}

func TestCheck_MarkerMissingOutputSkips(t *testing.T) {
	ref := itemWithMeta(model.SchemaResolvedCompilationReference, "/src/lib/bin/lib.dll",
		map[string]string{model.MetaCopyUpToDateMarker: "/src/lib/obj/lib.csproj.CopyComplete"})
	f := standard(t, ref, items(model.SchemaCopyUpToDateMarker, "obj/app.csproj.CopyComplete"))
	f.stamps.touch("/src/lib/bin/lib.dll", t0)
	f.stamps.touch("/src/lib/obj/lib.csproj.CopyComplete", t0)
	f.prime(t)

	res := f.check(t)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)
	assert.Contains(t, res.Lines, line("Output marker '/src/app/obj/app.csproj.CopyComplete' does not exist, skipping marker check."))
}

func TestCheck_CopiedOutputs(t *testing.T) {
	const (
		source = "/src/lib/bin/lib.dll"
		dest   = projectDir + "/bin/lib.dll"
	)
	header := line("Checking copied output (UpToDateCheckBuilt with Original property) file '" + source + "':")

	tests := []struct {
		name   string
		source *time.Time
		dest   *time.Time
		want   []string
	}{
		{
			name: "source missing",
			dest: &t0,
			want: []string{header, line("Source '" + source + "' does not exist, not up to date.")},
		},
		{
			name:   "destination missing",
			source: &t0,
			want: []string{
				header,
				line("    Source " + formatTime(t0) + ": '" + source + "'."),
				line("Destination '" + dest + "' does not exist, not up to date."),
			},
		},
		{
			name:   "source newer",
			source: ptr(t0.Add(time.Minute)),
			dest:   &t0,
			want: []string{
				header,
				line("    Source " + formatTime(t0.Add(time.Minute)) + ": '" + source + "'."),
				line("    Destination " + formatTime(t0) + ": '" + dest + "'."),
				line("Source is newer than build output destination, not up to date."),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, snapshot.SchemaChange{
				Schema:  model.SchemaUpToDateCheckBuilt,
				Changed: true,
				Items:   []model.Item{{Path: "bin/lib.dll", Metadata: map[string]string{model.MetaOriginal: source}}},
			})
			if tt.source != nil {
				f.stamps.touch(source, *tt.source)
			}
			if tt.dest != nil {
				f.stamps.touch(dest, *tt.dest)
			}
			f.prime(t)

			// Copy targets are not build outputs, so the project declares none
			res := f.check(t)
			assert.Equal(t, ReasonCopyOutput, res.Reason)
			assert.Equal(t, append([]string{line("No build outputs defined.")}, tt.want...), res.Lines)
		})
	}
}

func TestCheck_PreserveNewest(t *testing.T) {
	content := func(meta map[string]string) snapshot.SchemaChange {
		meta[model.MetaCopyToOutputDirectory] = "PreserveNewest"
		return itemWithMeta(model.SchemaContent, "data/settings.json", meta)
	}

	t.Run("destination missing", func(t *testing.T) {
		f := standard(t, content(map[string]string{}))
		f.stamps.touch(projectDir+"/data/settings.json", t0)
		f.prime(t)

		res := f.check(t)
		assert.Equal(t, ReasonCopyToOutputDirectory, res.Reason)
		assert.Equal(t, []string{
			line("Checking PreserveNewest file '/src/app/data/settings.json':"),
			line("    Source " + formatTime(t0) + ": '/src/app/data/settings.json'."),
			line("Destination '/src/app/bin/data/settings.json' does not exist, not up to date."),
		}, res.Lines)
	})

	t.Run("link overrides destination", func(t *testing.T) {
		f := standard(t, content(map[string]string{model.MetaLink: "settings.json"}))
		f.stamps.touch(projectDir+"/data/settings.json", t0)
		f.stamps.touch(projectDir+"/bin/settings.json", t0.Add(time.Minute))
		f.prime(t)

		res := f.check(t)
		assert.True(t, res.UpToDate, "lines: %v", res.Lines)
	})

	t.Run("source newer", func(t *testing.T) {
		f := standard(t, content(map[string]string{}))
		f.stamps.touch(projectDir+"/data/settings.json", t0.Add(time.Minute))
		f.stamps.touch(projectDir+"/bin/data/settings.json", t0)
		f.prime(t)

		res := f.check(t)
		assert.Equal(t, ReasonCopyToOutputDirectory, res.Reason)
		assert.Equal(t, line("PreserveNewest source is newer than destination, not up to date."), res.Lines[len(res.Lines)-1])
	})
}

func TestCheck_TimestampErrorFailsClosed(t *testing.T) {
	f := standard(t)
	f.stamps.errs[projectDir+"/bin/app.dll"] = errors.New("permission denied")
	f.prime(t)

	res := f.check(t)
	assert.False(t, res.UpToDate)
	assert.Equal(t, ReasonError, res.Reason)
	assert.Equal(t, []string{
		line("Failed to read timestamp for '/src/app/bin/app.dll': permission denied, not up to date."),
	}, res.Lines)
}

func TestCheck_TimestampsReadOncePerCheck(t *testing.T) {
	f := standard(t)
	f.prime(t)
	f.stamps.reads = make(map[string]int)

	require.True(t, f.check(t).UpToDate)
	for path, n := range f.stamps.reads {
		assert.Equal(t, 1, n, path)
	}
}

func TestIsUpToDate_WritesLines(t *testing.T) {
	f := standard(t)
	var sb strings.Builder

	assert.False(t, f.checker.IsUpToDate(model.ActionBuild, &sb))
	assert.Equal(t, line("The list of source items has changed since the last build, not up to date.")+"\n", sb.String())

	sb.Reset()
	assert.True(t, f.checker.IsUpToDate(model.ActionBuild, &sb))
	assert.True(t, strings.HasSuffix(sb.String(), line("Project is up to date.")+"\n"))
}

func TestCheck_RealFileSystem(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.go")
	out := filepath.Join(dir, "bin", "app")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("package main"), 0o644))
	require.NoError(t, os.WriteFile(out, []byte("binary"), 0o644))

	base := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(src, base, base))
	require.NoError(t, os.Chtimes(out, base.Add(time.Minute), base.Add(time.Minute)))

	store := snapshot.NewStore()
	store.Apply(snapshot.Update{ProjectVersion: 1, Changes: []snapshot.SchemaChange{
		{Schema: model.SchemaConfigurationGeneral, Changed: true, Properties: map[string]string{
			model.PropProjectFullPath:  filepath.Join(dir, "app.proj"),
			model.PropProjectDirectory: dir,
		}},
		items(model.SchemaCompile, "main.go"),
		items(model.SchemaUpToDateCheckBuilt, "bin/app"),
	}})
	rec := telemetry.NewRecorder()
	c := NewChecker(store, WithTelemetry(rec))

	assert.Equal(t, ReasonItemInfoOutOfDate, c.Check(model.ActionBuild).Reason)
	res := c.Check(model.ActionBuild)
	assert.True(t, res.UpToDate, "lines: %v", res.Lines)

	require.NoError(t, os.Remove(out))
	res = c.Check(model.ActionBuild)
	assert.Equal(t, ReasonOutputs, res.Reason)
	assert.Equal(t, []string{FormatLine("Output '"+out+"' does not exist, not up to date.", "app")}, res.Lines)
	assert.Len(t, rec.Events(), 3)
}

func ptr[T any](v T) *T {
	return &v
}
