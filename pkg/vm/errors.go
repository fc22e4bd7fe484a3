package vm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFatal matches every *FatalError via errors.Is.
	ErrFatal             = errors.New("fatal engine error")
	ErrInvalidOpcode     = errors.New("invalid opcode")
	ErrUnsupportedOpcode = errors.New("unsupported opcode")
	ErrUnsetLocal        = errors.New("read of uninitialized local variable")
	ErrStackUnderflow    = errors.New("operand stack underflow")
	ErrNotOwner          = errors.New("current thread is not owner")
)

// Fault is an exception raised inside interpreted code. It is matched
// against exception tables and unwinds frame by frame.
type Fault struct {
	// Class is the internal name of the exception class, e.g. java/lang/ArithmeticException.
	Class   string
	Message string
	// Exception is the thrown object. It is null until the fault is first
	// matched against a handler or the host materializes it.
	Exception Value
	Cause     error
}

// NewFault creates a fault whose exception object is created lazily.
func NewFault(class, message string) *Fault {
	return &Fault{Class: class, Message: message, Exception: NullValue()}
}

func (f *Fault) Error() string {
	name := f.Class[strings.LastIndexByte(f.Class, '/')+1:]
	if f.Message == "" {
		return name
	}
	return name + ": " + f.Message
}

func (f *Fault) Unwrap() error { return f.Cause }

// FatalError is an internal contract violation. It is never caught by
// interpreted handlers and terminates the run.
type FatalError struct {
	Op  string
	PC  int
	Err error
}

func (e *FatalError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("fatal: %v", e.Err)
	}
	return fmt.Sprintf("fatal: %s at pc=%d: %v", e.Op, e.PC, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func (e *FatalError) Is(target error) bool { return target == ErrFatal }

func fatalf(format string, args ...any) *FatalError {
	return &FatalError{Err: fmt.Errorf(format, args...)}
}

// asFault extracts a *Fault from err.
func asFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func isFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
