// Package errcode carries NLER's small status-code enumeration as a Go
// error type, so every core operation can keep returning a status the way
// the original C API does while still composing with errors.Is/errors.As.
package errcode

import "fmt"

// Code is a status code, doubling as an error.
type Code int

const (
	Success        Code = 0
	Failure        Code = -1
	BadInput       Code = -1000
	NoResource     Code = -1001
	BadState       Code = -1002
	NoMemory       Code = -1003
	Init           Code = -1004
	NotImplemented Code = -1005
)

func (c Code) Error() string {
	switch c {
	case Success:
		return "nler: success"
	case Failure:
		return "nler: failure"
	case BadInput:
		return "nler: bad input"
	case NoResource:
		return "nler: no resource"
	case BadState:
		return "nler: bad state"
	case NoMemory:
		return "nler: no memory"
	case Init:
		return "nler: not initialized"
	case NotImplemented:
		return "nler: not implemented"
	default:
		return fmt.Sprintf("nler: unknown status (%d)", int(c))
	}
}

// Is lets errors.Is(err, errcode.NoResource) match a wrapped Code.
func (c Code) Is(target error) bool {
	other, ok := target.(Code)
	return ok && other == c
}

// Wrap attaches a message to a Code, preserving errors.Is(result, code).
func Wrap(c Code, message string) error {
	return fmt.Errorf("%s: %w", message, c)
}
