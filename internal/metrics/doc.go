// Package metrics provides observability hooks for task runs and live-reload delivery.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so nothing needs nil checks:
//
//	r := runner.New(reg, srcRoot, runner.WithRecorder(metrics.NewPrometheusRecorder(promReg)))
//
// The dev server exposes the registry at /metrics via HTTPHandler.
package metrics
