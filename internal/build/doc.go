// Package build runs a compilation: it ensures the output directory, streams
// source discovery, and dispatches one compiler process per matched file.
//
// All execution paths (spark build, spark watch, tests) route through
// Orchestrator.Run. Presentation is delegated to a status.Reporter and never
// influences the outcome.
package build
