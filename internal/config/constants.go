// Package config holds process-wide constants and runtime switches for the
// Leda middle end and runtime.
package config

// RootStackLimit bounds the number of live roots the collector will track
// at once. The original implementation used a fixed C array of this size;
// exceeding it is a fatal compiler error (see diagnostics.Fail).
const RootStackLimit = 250

// InternedIntegerLow and InternedIntegerHigh bound the small-integer range
// that the bootstrap sequence pre-allocates in the static region, so that
// common loop counters never trigger a garbage collection just to box them.
const (
	InternedIntegerLow  = 0
	InternedIntegerHigh = 20
)

// DefaultSemispaceWords is the word count of each of the two semispaces
// managed by the collector, used when no overlay configuration is loaded.
const DefaultSemispaceWords = 1 << 16

// DefaultStaticWords is the word count of the static (never collected)
// region used for class tables, interned integers and other
// program-lifetime data.
const DefaultStaticWords = 1 << 14

// IsTestMode indicates the process is running under `go test`. Some
// diagnostics (notably stack traces printed on fatal error) are suppressed
// in test mode so that expected-failure tests stay quiet.
var IsTestMode = false

// UniqueTempNames controls whether tree.GenerateTemporary suffixes each
// compiler-synthesized temporary name with a UUID. Off by default because
// it is only useful when compiling many programs concurrently in one
// process (e.g. a long-running service embedding this package); a CLI run
// of cmd/ledac never needs it.
var UniqueTempNames = false

// Trace flags. These mirror the three diagnostic switches of the original
// implementation: function calls, statement dispatch and operator
// dispatch can each be traced independently to stderr.
var (
	DisplayFunctions = false
	DisplayStatements = false
	DisplayOperators = false
)

// AnyTraceEnabled reports whether evaluator tracing should run at all, so
// that hot dispatch loops can skip the tracing machinery with one check.
func AnyTraceEnabled() bool {
	return DisplayFunctions || DisplayStatements || DisplayOperators
}
