package uptodate

import (
	"time"

	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
)

// run is the working context of one check
type run struct {
	snap       *snapshot.Snapshot
	state      *CheckState
	stamps     *timestampCache
	log        *lineLogger
	tasks      TaskTracker
	versions   ProjectVersionSource
	projectDir string
	reason     Reason
}

// fail logs the final message and records the reason; it always returns false
func (r *run) fail(reason Reason, format string, args ...any) bool {
	r.reason = reason
	r.log.info(format, args...)
	return false
}

// stamp reads a timestamp; a read error fails the check closed
func (r *run) stamp(path string) (t time.Time, exists bool, ok bool) {
	t, exists, err := r.stamps.get(path)
	if err != nil {
		r.fail(ReasonError, "Failed to read timestamp for '%s': %v, not up to date.", path, err)
		return time.Time{}, false, false
	}
	return t, exists, true
}

type step struct {
	name string
	fn   func(*run) bool
}

// pipeline is the ordered list of checks; the first failure ends the check
var pipeline = []step{
	{"disabled", checkDisabled},
	{"critical-tasks", checkCriticalTasks},
	{"project-version", checkProjectVersion},
	{"item-sets", checkItemSets},
	{"copy-always", checkCopyAlways},
	{"output-existence", checkOutputsExist},
	{"inputs", checkInputs},
	{"markers", checkMarkers},
	{"copied-outputs", checkCopiedOutputs},
	{"copy-to-output-directory", checkCopyToOutputDirectory},
}

func checkDisabled(r *run) bool {
	if r.snap.Properties.DisableFastUpToDateCheck {
		return r.fail(ReasonDisabled, "The 'DisableFastUpToDateCheck' property is true, not up to date.")
	}
	return true
}

func checkCriticalTasks(r *run) bool {
	if r.tasks != nil && r.tasks.IsCriticalTaskPending() {
		return r.fail(ReasonCriticalTasks, "Critical build tasks are running, not up to date.")
	}
	return true
}

func checkProjectVersion(r *run) bool {
	current := r.state.lastSeenProjectVersion
	if r.versions != nil {
		current = r.versions.CurrentProjectVersion()
	}
	if !r.state.hasReceivedItemSnapshot || current > r.state.lastSeenProjectVersion {
		return r.fail(ReasonProjectInfoOutOfDate, "Project information is older than current project version, not up to date.")
	}
	return true
}

// checkItemSets compares the source items with the set the last build was started against.
// A mismatch becomes the new baseline, since the build that follows compiles the current set.
func checkItemSets(r *run) bool {
	if r.state.matchesBaseline(r.snap.SourceSets) {
		return true
	}
	r.state.recordBaseline(r.snap.SourceSets)
	return r.fail(ReasonItemInfoOutOfDate, "The list of source items has changed since the last build, not up to date.")
}

func checkCopyAlways(r *run) bool {
	for _, item := range r.snap.SourceItems {
		if item.CopyType == model.CopyAlways {
			return r.fail(ReasonCopyAlwaysItemExists,
				"Item '%s' has CopyToOutputDirectory set to 'Always', not up to date.", r.rooted(item.Path))
		}
	}
	return true
}

func checkOutputsExist(r *run) bool {
	for _, output := range r.outputs() {
		_, exists, ok := r.stamp(output)
		if !ok {
			return false
		}
		if !exists {
			return r.fail(ReasonOutputs, "Output '%s' does not exist, not up to date.", output)
		}
	}
	return true
}

func checkInputs(r *run) bool {
	outputs := r.outputs()
	var earliest time.Time
	var earliestPath string
	if len(outputs) == 0 {
		r.log.info("No build outputs defined.")
	}
	for _, output := range outputs {
		t, _, ok := r.stamp(output)
		if !ok {
			return false
		}
		if earliestPath == "" || t.Before(earliest) {
			earliest, earliestPath = t, output
		}
	}

	raceRef, guarded := r.state.raceReference()
	for _, input := range r.inputs() {
		t, exists, ok := r.stamp(input)
		if !ok {
			return false
		}
		if !exists {
			return r.fail(ReasonOutputs, "Input '%s' does not exist, not up to date.", input)
		}
		if earliestPath != "" && t.After(earliest) {
			return r.fail(ReasonOutputs, "Input '%s' is newer (%s) than earliest output '%s' (%s), not up to date.",
				input, formatTime(t), earliestPath, formatTime(earliest))
		}
		if guarded && t.After(raceRef) {
			return r.fail(ReasonOutputs, "Input '%s' has been modified since the last up-to-date check, not up to date.", input)
		}
	}
	return true
}

func checkMarkers(r *run) bool {
	marker := r.snap.MarkerPath()
	if marker == "" {
		return true
	}
	inputs := r.markerInputs()
	if len(inputs) == 0 {
		return true
	}
	marker = r.rooted(marker)

	var latest time.Time
	found := false
	for _, input := range inputs {
		t, exists, ok := r.stamp(input)
		if !ok {
			return false
		}
		if !exists {
			r.log.info("Input marker '%s' does not exist.", input)
			continue
		}
		r.log.info("Input marker '%s' write time is %s.", input, formatTime(t))
		if !found || t.After(latest) {
			latest, found = t, true
		}
	}
	if !found {
		r.log.info("No input markers exist, skipping marker check.")
		return true
	}

	outT, exists, ok := r.stamp(marker)
	if !ok {
		return false
	}
	if !exists {
		r.log.info("Output marker '%s' does not exist, skipping marker check.", marker)
		return true
	}
	r.log.info("Output marker '%s' write time is %s.", marker, formatTime(outT))
	if latest.After(outT) {
		return r.fail(ReasonMarker, "Input marker is newer than output marker, not up to date.")
	}
	return true
}

func checkCopiedOutputs(r *run) bool {
	for _, built := range r.snap.Built {
		if !built.IsCopyTarget() {
			continue
		}
		source, destination := r.rooted(built.Original), r.rooted(built.Path)
		r.log.info("Checking copied output (%s with %s property) file '%s':",
			model.SchemaUpToDateCheckBuilt, model.MetaOriginal, source)
		if !r.comparePair(ReasonCopyOutput, source, destination,
			"Source is newer than build output destination, not up to date.") {
			return false
		}
	}
	return true
}

func checkCopyToOutputDirectory(r *run) bool {
	outputDir := r.rooted(r.snap.Properties.OutputPath)
	for _, item := range r.snap.SourceItems {
		if item.CopyType != model.CopyPreserveNewest {
			continue
		}
		source := r.rooted(item.Path)
		destination := rootedAt(outputDir, r.destinationRelative(item))
		r.log.info("Checking PreserveNewest file '%s':", source)
		if !r.comparePair(ReasonCopyToOutputDirectory, source, destination,
			"PreserveNewest source is newer than destination, not up to date.") {
			return false
		}
	}
	return true
}

// comparePair applies the existence and recency rules shared by copy checks
func (r *run) comparePair(reason Reason, source, destination, newerMessage string) bool {
	srcT, exists, ok := r.stamp(source)
	if !ok {
		return false
	}
	if !exists {
		return r.fail(reason, "Source '%s' does not exist, not up to date.", source)
	}
	r.log.info("    Source %s: '%s'.", formatTime(srcT), source)

	dstT, exists, ok := r.stamp(destination)
	if !ok {
		return false
	}
	if !exists {
		return r.fail(reason, "Destination '%s' does not exist, not up to date.", destination)
	}
	r.log.info("    Destination %s: '%s'.", formatTime(dstT), destination)

	if srcT.After(dstT) {
		return r.fail(reason, newerMessage)
	}
	return true
}
