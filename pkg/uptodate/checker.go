// Package uptodate decides whether a project's last build is still valid by comparing
// the write times of its declared inputs and outputs.
//
// A Checker runs an ordered pipeline of steps against one immutable snapshot from the
// item store. The first failing step ends the check and names the reason; when every
// step passes the project is up to date and the check time is recorded so the next
// check can detect inputs modified while a build was running.
package uptodate

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ritzau/fast-uptodate/pkg/logging"
	"github.com/ritzau/fast-uptodate/pkg/model"
	"github.com/ritzau/fast-uptodate/pkg/snapshot"
	"github.com/ritzau/fast-uptodate/pkg/telemetry"
)

// SnapshotSource hands out the current immutable item snapshot
type SnapshotSource interface {
	Current() *snapshot.Snapshot
}

// Checker is the fast up-to-date check for a single project
type Checker struct {
	mu         sync.Mutex // serializes checks and guards state
	state      CheckState
	snapshots  SnapshotSource
	timestamps TimestampSource
	telemetry  telemetry.Service
	tasks      TaskTracker
	versions   ProjectVersionSource
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Checker
type Option func(*Checker)

// WithTimestampSource replaces the OS file system timestamp source
func WithTimestampSource(ts TimestampSource) Option {
	return func(c *Checker) { c.timestamps = ts }
}

// WithTelemetry sets the service receiving one event per Build check
func WithTelemetry(s telemetry.Service) Option {
	return func(c *Checker) { c.telemetry = s }
}

// WithTaskTracker sets the build-activity tracker polled by the critical tasks step
func WithTaskTracker(t TaskTracker) Option {
	return func(c *Checker) { c.tasks = t }
}

// WithProjectVersionSource sets the project host's version source.
// Without one, the newest version seen in a snapshot is taken as current.
func WithProjectVersionSource(v ProjectVersionSource) Option {
	return func(c *Checker) { c.versions = v }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

// WithLogger sets the structured logger for check diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// NewChecker creates a checker reading snapshots from store
func NewChecker(store SnapshotSource, opts ...Option) *Checker {
	c := &Checker{
		snapshots:  store,
		timestamps: OSTimestampSource{},
		telemetry:  telemetry.Discard{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.New("uptodate")
	}
	return c
}

// State returns a copy of the checker's bookkeeping
func (c *Checker) State() CheckState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.itemBaseline = nil
	if c.state.itemBaseline != nil {
		s.recordBaseline(c.state.itemBaseline)
	}
	return s
}

// BuildStarted records that the orchestrator started a build at the given time.
// Inputs written after a build start are not covered by that build's outputs.
func (c *Checker) BuildStarted(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	at = at.UTC()
	if at.After(c.state.lastBuildStartedAt) {
		c.state.lastBuildStartedAt = at
	}
}

// IsUpToDate runs a check and writes its explanation, one line each, to w
func (c *Checker) IsUpToDate(action model.BuildAction, w io.Writer) bool {
	res := c.Check(action)
	if w != nil {
		for _, line := range res.Lines {
			fmt.Fprintln(w, line)
		}
	}
	return res.UpToDate
}

// Check runs the pipeline for action against the current snapshot
func (c *Checker) Check(action model.BuildAction) Result {
	// Only full builds may skip the builder; nothing is logged or posted otherwise
	if action != model.ActionBuild {
		return Result{UpToDate: false, Reason: ReasonNone}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.snapshots.Current()
	checkID := uuid.NewString()
	logger := c.logger.With("checkID", checkID)

	r := &run{
		snap:       snap,
		state:      &c.state,
		stamps:     newTimestampCache(c.timestamps),
		log:        newLineLogger(snap.Properties.FullPath, logger),
		tasks:      c.tasks,
		versions:   c.versions,
		projectDir: snap.Properties.Directory,
	}
	r.state.observe(snap.Received, snap.ProjectVersion)

	for _, step := range pipeline {
		if !step.fn(r) {
			logger.Info("project is not up to date",
				"project", r.log.project,
				"step", step.name,
				"reason", string(r.reason))
			c.telemetry.PostEvent(telemetry.Event{
				Name:       telemetry.EventCheckFail,
				Properties: map[string]string{telemetry.PropertyReason: string(r.reason)},
			})
			return Result{UpToDate: false, Reason: r.reason, Lines: r.log.lines, CheckID: checkID}
		}
	}

	c.state.lastCheckedAt = c.now().UTC()
	r.log.info("Project is up to date.")
	logger.Info("project is up to date", "project", r.log.project)
	c.telemetry.PostEvent(telemetry.Event{Name: telemetry.EventCheckSuccess})
	return Result{UpToDate: true, Lines: r.log.lines, CheckID: checkID}
}
