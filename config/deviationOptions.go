package config

import "time"

const (
	DefaultEscalationMinutes     = 30
	DefaultWorkerIntervalSeconds = 60
)

// DeviationOptions is the configuration of the deviation engine. It is passed
// explicitly to the workflow types instead of being read from globals.
type DeviationOptions struct {
	EscalationMinutes     int
	WorkerIntervalSeconds int
}

// LoadDeviationOptions reads
// - DEVIATION_ESCALATION_MINUTES (default 30)
// - DEVIATION_WORKER_INTERVAL_SECONDS (default 60)
func LoadDeviationOptions() DeviationOptions {
	return DeviationOptions{
		EscalationMinutes:     intFromEnv("DEVIATION_ESCALATION_MINUTES", DefaultEscalationMinutes),
		WorkerIntervalSeconds: intFromEnv("DEVIATION_WORKER_INTERVAL_SECONDS", DefaultWorkerIntervalSeconds),
	}
}

// ThresholdMinutes falls back to 30 for non-positive values.
func (o DeviationOptions) ThresholdMinutes() int {
	if o.EscalationMinutes <= 0 {
		return DefaultEscalationMinutes
	}
	return o.EscalationMinutes
}

// WorkerInterval falls back to 60s for non-positive values.
func (o DeviationOptions) WorkerInterval() time.Duration {
	if o.WorkerIntervalSeconds <= 0 {
		return DefaultWorkerIntervalSeconds * time.Second
	}
	return time.Duration(o.WorkerIntervalSeconds) * time.Second
}
