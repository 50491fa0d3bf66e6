// Package metrics records build and compile task metrics.
//
// Components take a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	recorder := metrics.NewPrometheusRecorder(registry)
//	orchestrator := build.NewOrchestrator().WithRecorder(recorder)
//
// The Prometheus implementation can be scraped over HTTP (HTTPHandler, used by
// spark watch) or written once to a node_exporter textfile (WriteTextfile, used
// by spark build --metrics-file).
package metrics
