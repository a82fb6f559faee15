package workflow

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/testutil"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testDate = "2026-03-02"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type engineFixture struct {
	db    *gorm.DB
	clock *utils.ManualClock
	svc   *DeviationService
	*testutil.Fixture
}

// newEngineFixture seeds a day with 12 planned per hour and a service whose clock starts at testutil.T0.
func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, testDate, 300)
	clock := utils.NewManualClock(testutil.T0)
	svc := NewDeviationService(db, quietLogger(), config.DeviationOptions{EscalationMinutes: 30, WorkerIntervalSeconds: 60}, clock)
	return &engineFixture{db: db, clock: clock, svc: svc, Fixture: f}
}

func (e *engineFixture) at(d time.Duration) {
	e.clock.Set(testutil.T0.Add(d))
}

func (e *engineFixture) events(t *testing.T, hourIndex int) []models.DeviationEvent {
	t.Helper()
	return testutil.Events(t, e.db, e.Hour(t, e.db, hourIndex).ID)
}

func (e *engineFixture) onlyEvent(t *testing.T, hourIndex int) models.DeviationEvent {
	t.Helper()
	events := e.events(t, hourIndex)
	require.Len(t, events, 1)
	return events[0]
}

func (e *engineFixture) nonClosedCount(t *testing.T, hourIndex int) int {
	t.Helper()
	n := 0
	for _, ev := range e.events(t, hourIndex) {
		if !ev.IsClosed() {
			n++
		}
	}
	return n
}

func (e *engineFixture) reconcile(t *testing.T, hourIndex int, plan int, actual int) ReconcileResult {
	t.Helper()
	hr := e.Hour(t, e.db, hourIndex)
	result, err := e.svc.Reconcile(testCtx(), hr.ID, plan, actual, e.User.ID)
	require.NoError(t, err)
	return result
}

func testCtx() context.Context { return context.Background() }
