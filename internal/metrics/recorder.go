package metrics

import "time"

// ResultLabel enumerates task/run result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultFailed   ResultLabel = "failed"
	ResultEmpty    ResultLabel = "empty"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for task runs and reload notifications.
type Recorder interface {
	ObserveTaskDuration(task string, d time.Duration)
	IncTaskResult(task string, result ResultLabel)
	ObserveRunDuration(entry string, d time.Duration)
	IncRunOutcome(entry string, result ResultLabel)
	IncReloadEvent()
	IncNotificationFailure(listener string)
	IncWatchTrigger(binding string, coalesced bool)
	SetLiveReloadClients(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(string, time.Duration) {}
func (NoopRecorder) IncTaskResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveRunDuration(string, time.Duration)  {}
func (NoopRecorder) IncRunOutcome(string, ResultLabel)         {}
func (NoopRecorder) IncReloadEvent()                           {}
func (NoopRecorder) IncNotificationFailure(string)             {}
func (NoopRecorder) IncWatchTrigger(string, bool)              {}
func (NoopRecorder) SetLiveReloadClients(int)                  {}
