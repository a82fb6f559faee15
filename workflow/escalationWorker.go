package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/metrics"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type evaluateFunc func(ctx context.Context, db *gorm.DB, thresholdMinutes int, now time.Time) (int, error)

// EscalationWorker runs EvaluateEscalations on a fixed interval.
// Run exactly one per deployment (see DEVIATION_WORKER_ENABLED); overlapping
// workers stay consistent but do redundant work.
type EscalationWorker struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Options  config.DeviationOptions
	Clock    utils.Clock
	Interval time.Duration

	evaluate evaluateFunc
}

func NewEscalationWorker(db *gorm.DB, logger *logrus.Logger, opts config.DeviationOptions, clock utils.Clock) *EscalationWorker {
	if clock == nil {
		clock = utils.SystemClock()
	}
	return &EscalationWorker{
		DB:       db,
		Logger:   logger,
		Options:  opts,
		Clock:    clock,
		Interval: opts.WorkerInterval(),
		evaluate: EvaluateEscalations,
	}
}

// Run evaluates once, then again every Interval until ctx is cancelled.
// A failing pass is logged and retried on the next tick.
func (w *EscalationWorker) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	interval := w.Interval
	if interval <= 0 {
		interval = config.DefaultWorkerIntervalSeconds * time.Second
	}
	w.logger().WithFields(logrus.Fields{
		"field":             "EscalationWorker",
		"interval":          interval.String(),
		"threshold_minutes": w.Options.ThresholdMinutes(),
	}).Info("escalation worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger().WithField("field", "EscalationWorker").Info("escalation worker stopped")
			return
		default:
		}
		if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
			config.LogError(w.logger(), "EscalationWorker", "Run", "evaluate escalations", nil, err)
		}
		select {
		case <-ctx.Done():
			w.logger().WithField("field", "EscalationWorker").Info("escalation worker stopped")
			return
		case <-time.After(interval):
		}
	}
}

// RunOnce performs a single evaluation pass. A panic inside the pass is
// returned as an error.
func (w *EscalationWorker) RunOnce(ctx context.Context) (promoted int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("escalation pass panicked: %v", r)
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.EvaluationsTotal.WithLabelValues("worker", status).Inc()
	}()

	if w.DB == nil {
		return 0, fmt.Errorf("escalation worker has no database")
	}
	evaluate := w.evaluate
	if evaluate == nil {
		evaluate = EvaluateEscalations
	}
	promoted, err = evaluate(ctx, w.DB, w.Options.ThresholdMinutes(), w.clock().Now())
	if err != nil {
		return 0, err
	}
	metrics.WorkerLastSuccessTimestamp.SetToCurrentTime()
	if promoted > 0 {
		w.logger().WithFields(logrus.Fields{
			"field":    "EscalationWorker",
			"promoted": promoted,
		}).Info("deviation events escalated")
	}
	return promoted, nil
}

func (w *EscalationWorker) logger() *logrus.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return config.GetLogger()
}

func (w *EscalationWorker) clock() utils.Clock {
	if w.Clock != nil {
		return w.Clock
	}
	return utils.SystemClock()
}
