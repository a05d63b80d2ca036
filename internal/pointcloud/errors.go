package pointcloud

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgumentCount is returned when the command line does not
	// name exactly one input file.
	ErrInvalidArgumentCount = errors.New("invalid number of arguments")

	// ErrSourceUnavailable is returned when the input cannot be opened or read.
	ErrSourceUnavailable = errors.New("point cloud source unavailable")

	// ErrFormat is returned when a data row is not three finite numbers.
	ErrFormat = errors.New("malformed point cloud row")

	// ErrInvalidConfiguration is returned for a non-positive or non-finite voxel size.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrSinkUnavailable is returned when the output cannot be created or written.
	ErrSinkUnavailable = errors.New("point cloud sink unavailable")

	// ErrInvalidPoint is returned when a point has no representable voxel key.
	ErrInvalidPoint = errors.New("point has no voxel key")
)

// FormatError describes a data row that could not be parsed.
type FormatError struct {
	Line int    // 1-based line number in the input
	Text string // offending line, trimmed
	Err  error  // underlying parse error, may be nil
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("line %d %q", e.Line, e.Text)
}

// Unwrap lets errors.Is match both ErrFormat and the parse error.
func (e *FormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFormat}
	}
	return []error{ErrFormat, e.Err}
}
