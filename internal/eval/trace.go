package eval

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/GunterMueller/Leda-Language/internal/config"
)

// stderrIsTTY is resolved once; the three trace switches in
// internal/config gate whether traceOperator/traceStatement/
// traceFunction print at all, this only decides whether the tag prefix
// gets colorized.
var stderrIsTTY = isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

func traceTag(tag string) string {
	if !stderrIsTTY {
		return "[" + tag + "] "
	}
	return "\x1b[2m[" + tag + "]\x1b[0m "
}

// traceOperator mirrors the original's `if (displayOperators) printf(...)`
// sites scattered through evaluateExpression/evaluateSpecial.
func traceOperator(format string, args ...any) {
	if !config.DisplayOperators {
		return
	}
	fmt.Fprintf(os.Stderr, traceTag("op")+format+"\n", args...)
}

// traceStatement mirrors the original's displayStatements checks in
// evaluateStatement.
func traceStatement(format string, args ...any) {
	if !config.DisplayStatements {
		return
	}
	fmt.Fprintf(os.Stderr, traceTag("stmt")+format+"\n", args...)
}

// traceFunction mirrors the original's displayFunctions checks around
// doFunctionCall/tailCall.
func traceFunction(format string, args ...any) {
	if !config.DisplayFunctions {
		return
	}
	fmt.Fprintf(os.Stderr, traceTag("fn")+format+"\n", args...)
}
