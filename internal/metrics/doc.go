// Package metrics records pipeline run and step metrics.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	observer := pipeline.RecorderObserver{Recorder: recorder}
//
// The daemon serves the registry on its admin listener via HTTPHandler.
package metrics
