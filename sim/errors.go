package sim

import "errors"

// Errors returned by the ratio, scaling, and timeline primitives. Call
// sites wrap these with argument context; match them with errors.Is.
var (
	// ErrInvalidParameter reports a fixed point width that does not fit
	// the 64-bit lane, or an argument outside an operation's domain.
	ErrInvalidParameter = errors.New("sim: fixed point width out of range")

	// ErrDivisionByZero reports a zero frequency where a divisor is needed.
	ErrDivisionByZero = errors.New("sim: division by zero")

	// ErrOverflow reports a ratio or scaled value that exceeds 64 bits
	// (or the declared fixed point width, where one applies).
	ErrOverflow = errors.New("sim: result exceeds 64 bits")

	// ErrInvalidTimeline reports non-monotonic migration times or a
	// zero-frequency host segment.
	ErrInvalidTimeline = errors.New("sim: invalid migration timeline")
)
