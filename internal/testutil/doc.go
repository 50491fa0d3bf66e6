// Package testutil contains fixtures shared by spark tests: project trees,
// configuration builders, file assertions and a fake compiler.
package testutil

const (
	testDirPermissions  = 0o750
	testFilePermissions = 0o600
)
