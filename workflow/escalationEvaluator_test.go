package workflow

import (
	"testing"
	"time"

	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluateAt(t *testing.T, e *engineFixture, threshold int, d time.Duration) int {
	t.Helper()
	promoted, err := EvaluateEscalations(testCtx(), e.db, threshold, testutil.T0.Add(d))
	require.NoError(t, err)
	return promoted
}

func TestEvaluateEscalations_PromotesAfterThreshold(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 0, 12, 4)

	assert.Equal(t, 0, evaluateAt(t, e, 30, 29*time.Minute))
	assert.Equal(t, 1, e.onlyEvent(t, 0).CurrentEscalationLevel)

	assert.Equal(t, 1, evaluateAt(t, e, 30, 31*time.Minute))
	ev := e.onlyEvent(t, 0)
	assert.Equal(t, 2, ev.CurrentEscalationLevel)
	assert.Equal(t, models.DeviationEventStatusOpen, ev.Status)
	require.Len(t, ev.EscalationLogs, 2)
	assert.Equal(t, 2, ev.EscalationLogs[1].Level)
	assert.Equal(t, models.EscalationMessageLevel2, ev.EscalationLogs[1].Message)
	assert.True(t, ev.EscalationLogs[1].CreatedAt.Equal(testutil.T0.Add(31*time.Minute)))

	// already at the top level
	assert.Equal(t, 0, evaluateAt(t, e, 30, 45*time.Minute))
	assert.Len(t, e.onlyEvent(t, 0).EscalationLogs, 2)
}

func TestEvaluateEscalations_ThresholdBoundaryIsInclusive(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 1, 12, 4)

	assert.Equal(t, 1, evaluateAt(t, e, 30, 30*time.Minute))
}

func TestEvaluateEscalations_NonPositiveThresholdUsesDefault(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 1, 12, 4)

	assert.Equal(t, 0, evaluateAt(t, e, 0, 29*time.Minute))
	assert.Equal(t, 0, evaluateAt(t, e, -5, 29*time.Minute))
	assert.Equal(t, 1, evaluateAt(t, e, 0, 30*time.Minute))
}

func TestEvaluateEscalations_AcknowledgedEventIsNotPromoted(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 2, 12, 4)
	ev := e.onlyEvent(t, 2)

	e.at(10 * time.Minute)
	applied, err := e.svc.Acknowledge(testCtx(), ev.ID, e.User.ID)
	require.NoError(t, err)
	require.True(t, applied)

	assert.Equal(t, 0, evaluateAt(t, e, 30, 40*time.Minute))
	after := e.onlyEvent(t, 2)
	assert.Equal(t, 1, after.CurrentEscalationLevel)
	assert.Equal(t, models.DeviationEventStatusAcknowledged, after.Status)
	assert.False(t, after.HasLogAtLevel(2))
}

func TestEvaluateEscalations_ClosedEventIsNotPromoted(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 3, 12, 4)
	e.at(5 * time.Minute)
	e.reconcile(t, 3, 12, 12)

	assert.Equal(t, 0, evaluateAt(t, e, 30, 2*time.Hour))
	ev := e.onlyEvent(t, 3)
	assert.Equal(t, 1, ev.CurrentEscalationLevel)
	assert.Equal(t, models.DeviationEventStatusClosed, ev.Status)
}

func TestEvaluateEscalations_RepeatedPassIsIdempotent(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 4, 12, 4)
	e.reconcile(t, 5, 12, 7)

	assert.Equal(t, 2, evaluateAt(t, e, 30, time.Hour))
	assert.Equal(t, 0, evaluateAt(t, e, 30, time.Hour))

	for _, hour := range []int{4, 5} {
		ev := e.onlyEvent(t, hour)
		assert.Equal(t, 2, ev.CurrentEscalationLevel)
		assert.Len(t, ev.EscalationLogs, 2)
	}
}

func TestEvaluateEscalations_DoesNotDuplicateExistingTopLevelLog(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 6, 12, 4)
	ev := e.onlyEvent(t, 6)

	_, err := models.AppendEscalationLog(testCtx(), e.db, ev.ID, models.EscalationTopLevel, models.EscalationMessageLevel2, testutil.T0.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, evaluateAt(t, e, 30, time.Hour))
	after := e.onlyEvent(t, 6)
	assert.Equal(t, 2, after.CurrentEscalationLevel)
	assert.Len(t, after.EscalationLogs, 2)
}

func TestEvaluateEscalations_LevelsNeverDecrease(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 7, 12, 4)
	evaluateAt(t, e, 30, time.Hour)

	e.at(61 * time.Minute)
	assert.Equal(t, ReconcileUpdated, e.reconcile(t, 7, 12, 8))
	applied, err := e.svc.Acknowledge(testCtx(), e.onlyEvent(t, 7).ID, e.User.ID)
	require.NoError(t, err)
	assert.True(t, applied)
	evaluateAt(t, e, 30, 2*time.Hour)

	ev := e.onlyEvent(t, 7)
	assert.Equal(t, 2, ev.CurrentEscalationLevel)
	for _, l := range ev.EscalationLogs[1:] {
		assert.Equal(t, 2, l.Level, l.Message)
	}
}
