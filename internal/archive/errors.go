package archive

import (
	"errors"
	"fmt"
)

// ErrNoSurvivor reports a duplicate group whose consolidation would delete
// every member. The algorithm cannot produce this; seeing it means the
// group snapshot was corrupted and the run must stop.
var ErrNoSurvivor = errors.New("duplicate group would leave no survivor")

// ParseError reports a snapshot document that could not be decoded as
// markup at all. It is fatal for the import run: no partial results are
// produced for the document, and prior snapshot commits are preserved.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing snapshot %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
