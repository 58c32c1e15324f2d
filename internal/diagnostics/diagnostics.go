// Package diagnostics reports the fatal compile-time and runtime errors
// that the Leda semantics require: every fault aborts the run, nothing is
// recovered from mid-program. Core packages never call os.Exit directly
// (that stays in cmd/ledac); instead they call Fail, which panics with a
// typed *Error, and the process boundary recovers it into a plain error.
package diagnostics

import "fmt"

// Error is a fatal compiler or runtime error, carrying the source
// position the original implementation's yyerror/yyserror macros printed
// alongside the message.
type Error struct {
	File string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.File == "" && e.Line == 0 {
		return e.Msg
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// Fail raises a fatal error at the given position. It never returns.
func Fail(file string, line int, format string, args ...any) {
	panic(&Error{File: file, Line: line, Msg: fmt.Sprintf(format, args...)})
}

// Failf raises a fatal error with no associated source position, for
// faults detected deep in the runtime (heap exhaustion, a corrupt
// internal table) that have no single source line to blame.
func Failf(format string, args ...any) {
	panic(&Error{Msg: fmt.Sprintf(format, args...)})
}

// Recover turns a panicking *Error (or any other panic) into a returned
// error. It is meant to be deferred at a process boundary:
//
//	func Run() (err error) {
//	    defer diagnostics.Recover(&err)
//	    ...
//	}
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(*Error); ok {
		*errp = e
		return
	}
	if e, ok := r.(error); ok {
		*errp = e
		return
	}
	*errp = fmt.Errorf("%v", r)
}
