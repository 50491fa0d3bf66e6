// Package errors provides the classified error type used across spark.
//
// Every failure that can end a run is expressed as a ClassifiedError carrying a
// category (config, discovery, compile, filesystem, ...), a severity and a small
// bag of structured context. The CLIErrorAdapter turns those into a user-facing
// message and a process exit code.
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryCompile, "compile failed").
//		Fatal().
//		WithContext("source", path).
//		Build()
package errors
