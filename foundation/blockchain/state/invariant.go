package state

import "fmt"

// InvariantViolation reports a broken consensus invariant. Nothing can
// safely continue once one is raised.
type InvariantViolation struct {
	Msg string
}

// Error implements the error interface.
func (iv *InvariantViolation) Error() string {
	return "invariant violation: " + iv.Msg
}

// invariant panics with an InvariantViolation when the condition is false.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantViolation{Msg: fmt.Sprintf(format, args...)})
	}
}
