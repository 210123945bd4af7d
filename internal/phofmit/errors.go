package phofmit

import "errors"

var (
	// ErrInvalidPath is returned when a scan root or target path is missing
	// or is not a directory.
	ErrInvalidPath = errors.New("invalid path")

	// ErrInvalidConfig is returned by NormalizeConfig for unusable options
	// (bad chunk size, unknown algorithm, malformed pattern, ...).
	ErrInvalidConfig = errors.New("invalid scanner config")

	// ErrConfigMismatch is returned when the reference and target scanner
	// configs differ and the operator declined to continue.
	ErrConfigMismatch = errors.New("scanner config mismatch")

	// ErrConflictingModes is returned when dry-run and shell mode are both requested.
	ErrConflictingModes = errors.New("dry-run and shell mode are mutually exclusive")
)
