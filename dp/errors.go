package dp

import "errors"

var (
	// ErrOverflow reports that a push hit the buffer's capacity ceiling and
	// the record was dropped. Backpressure, not corruption: the caller keeps
	// walking, and the drop is counted for the operator.
	ErrOverflow = errors.New("dp: buffer overflow, record dropped")

	// ErrInvalidRecord reports a record that fails basic shape checks.
	ErrInvalidRecord = errors.New("dp: invalid record")
)

// IsOverflow reports whether err is a buffer-overflow signal.
func IsOverflow(err error) bool { return errors.Is(err, ErrOverflow) }
