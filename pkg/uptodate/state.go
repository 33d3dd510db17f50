package uptodate

import (
	"maps"
	"slices"
	"time"

	"github.com/ritzau/fast-uptodate/pkg/model"
)

// CheckState is the per-project bookkeeping the checker carries between checks.
// It lives as long as its Checker and is never persisted.
type CheckState struct {
	lastCheckedAt           time.Time // zero until the first successful check
	lastBuildStartedAt      time.Time // zero until a build start is reported
	lastSeenProjectVersion  int64
	hasReceivedItemSnapshot bool
	itemBaseline            map[string][]string // nil until the first bookkeeping pass
}

// LastCheckedAt returns the time of the last successful check
func (s *CheckState) LastCheckedAt() (time.Time, bool) {
	return s.lastCheckedAt, !s.lastCheckedAt.IsZero()
}

// LastSeenProjectVersion returns the newest project version the checker has accounted for
func (s *CheckState) LastSeenProjectVersion() int64 {
	return s.lastSeenProjectVersion
}

// HasReceivedItemSnapshot reports whether any snapshot has been observed
func (s *CheckState) HasReceivedItemSnapshot() bool {
	return s.hasReceivedItemSnapshot
}

// observe accounts for a snapshot; project versions never move backwards
func (s *CheckState) observe(received bool, projectVersion int64) {
	if !received {
		return
	}
	s.hasReceivedItemSnapshot = true
	if projectVersion > s.lastSeenProjectVersion {
		s.lastSeenProjectVersion = projectVersion
	}
}

// raceReference is the time after which an input modification cannot be covered by existing outputs
func (s *CheckState) raceReference() (time.Time, bool) {
	ref := s.lastCheckedAt
	if s.lastBuildStartedAt.After(ref) {
		ref = s.lastBuildStartedAt
	}
	return ref, !ref.IsZero()
}

// matchesBaseline compares the source sets with the recorded baseline
func (s *CheckState) matchesBaseline(sets map[string][]string) bool {
	if s.itemBaseline == nil {
		return false
	}
	for _, schema := range model.SourceSchemas {
		if !slices.Equal(s.itemBaseline[schema], sets[schema]) {
			return false
		}
	}
	return true
}

func (s *CheckState) recordBaseline(sets map[string][]string) {
	s.itemBaseline = make(map[string][]string, len(sets))
	for k, v := range maps.All(sets) {
		s.itemBaseline[k] = slices.Clone(v)
	}
}
