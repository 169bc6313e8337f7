package backtest

import (
	"time"

	"github.com/quantcandle/signalengine/internal/xerrors"
)

// Role labels which segment of a time-split a Window belongs to.
type Role string

const (
	RoleTrain        Role = "train"
	RoleValidation   Role = "validation"
	RoleTest         Role = "test"
	RoleWalkForward  Role = "wf"
)

// Window is one temporally isolated segment of the overall range.
type Window struct {
	Start time.Time
	End   time.Time
	Role  Role
}

// Split divides [start, end] (both ends inclusive, in whole days) into
// non-overlapping train, validation, walk-forward and test segments, in
// that chronological order, ported from the original
// TimeSplitPipeline.split: train comes first, then
// validation, then a run of walk-forward folds filling the remaining
// gap, then test anchored to the end of the range.
func Split(start, end time.Time, trainDays, valDays, testDays, walkDays int) (map[Role][]Window, error) {
	if !start.Before(end) {
		return nil, &xerrors.CampaignAbort{Reason: "start must be earlier than end"}
	}

	day := 24 * time.Hour
	trainEnd := start.Add(time.Duration(trainDays-1) * day)
	if !trainEnd.Before(end) {
		return nil, &xerrors.CampaignAbort{Reason: "training window exceeds available range"}
	}

	valStart := trainEnd.Add(day)
	valEnd := valStart.Add(time.Duration(valDays-1) * day)
	if !valEnd.Before(end) {
		return nil, &xerrors.CampaignAbort{Reason: "validation window exceeds available range"}
	}

	testEnd := end
	testStart := end.Add(-time.Duration(testDays-1) * day)
	if !testStart.After(valEnd) {
		return nil, &xerrors.CampaignAbort{Reason: "test window overlaps validation data"}
	}

	if walkDays <= 0 {
		walkDays = testDays
	}
	var walkWindows []Window
	walkStart := valEnd.Add(day)
	walkCutoff := testStart.Add(-day)
	for !walkStart.After(walkCutoff) {
		walkEnd := walkStart.Add(time.Duration(walkDays-1) * day)
		if walkEnd.After(walkCutoff) {
			walkEnd = walkCutoff
		}
		walkWindows = append(walkWindows, Window{Start: walkStart, End: walkEnd, Role: RoleWalkForward})
		walkStart = walkEnd.Add(day)
	}

	windows := map[Role][]Window{
		RoleTrain:       {{Start: start, End: trainEnd, Role: RoleTrain}},
		RoleValidation:  {{Start: valStart, End: valEnd, Role: RoleValidation}},
		RoleTest:        {{Start: testStart, End: testEnd, Role: RoleTest}},
		RoleWalkForward: walkWindows,
	}

	if err := checkNoOverlap(windows); err != nil {
		return nil, err
	}
	return windows, nil
}

// checkNoOverlap is the walk-forward overlap guard: any two windows
// across all roles that share time are a campaign-fatal configuration
// error, since a strategy evaluated against a window it was also
// fit on would leak information forward.
func checkNoOverlap(windows map[Role][]Window) error {
	var all []Window
	for _, ws := range windows {
		all = append(all, ws...)
	}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			if a.Start.Before(b.End) && b.Start.Before(a.End) {
				return &xerrors.CampaignAbort{
					Reason: "overlapping walk-forward windows detected",
					Details: map[string]interface{}{
						"window_a": a, "window_b": b,
					},
				}
			}
		}
	}
	return nil
}
