package build

import "errors"

// Sentinel errors used as the cause of classified compile failures.
var (
	ErrNonZeroExit = errors.New("spark: compiler exited with non-zero status")
	ErrTimeout     = errors.New("spark: compile task timed out")
)
