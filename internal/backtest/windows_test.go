package backtest

import (
	"testing"
	"time"

	"github.com/quantcandle/signalengine/internal/xerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(n int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * 24 * time.Hour)
}

func TestSplit_ProducesChronologicalNonOverlappingWindows(t *testing.T) {
	windows, err := Split(day(0), day(99), 30, 20, 20, 10)
	require.NoError(t, err)

	require.Len(t, windows[RoleTrain], 1)
	require.Len(t, windows[RoleValidation], 1)
	require.Len(t, windows[RoleTest], 1)

	train := windows[RoleTrain][0]
	val := windows[RoleValidation][0]
	test := windows[RoleTest][0]

	assert.True(t, train.End.Before(val.Start))
	assert.True(t, val.End.Before(test.Start) || val.End.Equal(test.Start.Add(-24*time.Hour)))
	assert.Equal(t, day(0), train.Start)
	assert.Equal(t, day(99), test.End)
}

func TestSplit_GeneratesWalkForwardFoldsBetweenValidationAndTest(t *testing.T) {
	windows, err := Split(day(0), day(199), 30, 20, 20, 15)
	require.NoError(t, err)
	require.NotEmpty(t, windows[RoleWalkForward])

	for _, w := range windows[RoleWalkForward] {
		assert.Equal(t, RoleWalkForward, w.Role)
		assert.True(t, w.Start.Before(w.End) || w.Start.Equal(w.End))
	}
}

func TestSplit_RejectsRangeTooShortForTrainWindow(t *testing.T) {
	_, err := Split(day(0), day(10), 30, 20, 20, 10)
	require.Error(t, err)
	var abort *xerrors.CampaignAbort
	require.ErrorAs(t, err, &abort)
}

func TestSplit_RejectsInvertedRange(t *testing.T) {
	_, err := Split(day(10), day(0), 30, 20, 20, 10)
	require.Error(t, err)
}

func TestCheckNoOverlap_DetectsOverlappingWindows(t *testing.T) {
	windows := map[Role][]Window{
		RoleTrain:      {{Start: day(0), End: day(10), Role: RoleTrain}},
		RoleValidation: {{Start: day(5), End: day(15), Role: RoleValidation}},
	}
	err := checkNoOverlap(windows)
	require.Error(t, err)
	var abort *xerrors.CampaignAbort
	require.ErrorAs(t, err, &abort)
}

func TestCheckNoOverlap_PassesForAdjacentWindows(t *testing.T) {
	windows := map[Role][]Window{
		RoleTrain:      {{Start: day(0), End: day(10), Role: RoleTrain}},
		RoleValidation: {{Start: day(11), End: day(20), Role: RoleValidation}},
	}
	require.NoError(t, checkNoOverlap(windows))
}
