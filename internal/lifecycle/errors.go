package lifecycle

import (
	"errors"
	"fmt"
)

// ErrAlreadyTerminal is returned by Cancel for jobs that already finished.
var ErrAlreadyTerminal = errors.New("job already in a terminal state")

// UnknownJobError reports an update that correlates to no tracked record.
// Such updates are dropped; they never create a record.
type UnknownJobError struct {
	Key string
}

func (e *UnknownJobError) Error() string {
	if e.Key == "" {
		return "update carries no job correlation key"
	}
	return fmt.Sprintf("unknown job %q", e.Key)
}
