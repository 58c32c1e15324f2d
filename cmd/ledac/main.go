// Command ledac is the Leda driver: it reads a source file, runs it
// through bootstrap.SeedGlobals -> frontend.ParseProgram ->
// bootstrap.Materialize -> Evaluator.Run, and reports any fatal error
// to stderr. It is the only package allowed to call os.Exit; every
// other package raises diagnostics.Fail/Failf instead and leaves
// unwinding to the caller (see internal/diagnostics).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/GunterMueller/Leda-Language/internal/bootstrap"
	"github.com/GunterMueller/Leda-Language/internal/config"
	"github.com/GunterMueller/Leda-Language/internal/diagnostics"
	"github.com/GunterMueller/Leda-Language/internal/frontend"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: ledac [flags] <source-file>

flags:
  -config <path>       load a YAML config overlay (see internal/config.Overlay)
  -trace-functions      trace function/method calls to stderr
  -trace-statements     trace statement dispatch to stderr
  -trace-operators      trace operator dispatch to stderr
  -trace                shorthand for all three -trace-* flags above
`)
}

// usageError marks a parseArgs failure so main knows to print usage
// instead of just the bare message a diagnostics.Error or I/O error gets.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

// run is the recoverable body of main: diagnostics.Fail/Failf panics
// with a *diagnostics.Error, which diagnostics.Recover turns into the
// returned error here, exactly the process-boundary pattern the
// package doc for internal/diagnostics describes.
func run(args []string) (err error) {
	defer diagnostics.Recover(&err)

	configPath, sourcePath, perr := parseArgs(args)
	if perr != nil {
		return perr
	}

	if configPath != "" {
		if lerr := config.LoadOverlay(configPath); lerr != nil {
			return lerr
		}
	}

	src, rerr := os.ReadFile(sourcePath)
	if rerr != nil {
		return rerr
	}

	globals, seed := bootstrap.SeedGlobals()
	parserSeed := &frontend.Seed{
		Object: seed.Object, Boolean: seed.Boolean, Integer: seed.Integer,
		Real: seed.Real, String: seed.String, Array: seed.Array, Relation: seed.Relation,
	}
	p := frontend.NewParser(sourcePath, string(src), globals, parserSeed)
	top := p.ParseProgram()

	rt := bootstrap.Materialize(globals, seed)
	rt.Eval.Run(top)
	return nil
}

// parseArgs scans args by hand for the small set of switches ledac
// supports, following the teacher driver's own convention of walking
// os.Args rather than reaching for the flag package: funxy's main()
// recognizes "-debug"/"--debug" and similar switches the same way,
// leaving whatever isn't a "-"-prefixed flag as the positional file
// argument.
func parseArgs(args []string) (configPath, sourcePath string, err error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 >= len(args) {
				return "", "", &usageError{fmt.Sprintf("%s requires a path argument", arg)}
			}
			i++
			configPath = args[i]

		case arg == "-trace":
			config.DisplayFunctions = true
			config.DisplayStatements = true
			config.DisplayOperators = true

		case arg == "-trace-functions":
			config.DisplayFunctions = true

		case arg == "-trace-statements":
			config.DisplayStatements = true

		case arg == "-trace-operators":
			config.DisplayOperators = true

		case arg == "-h" || arg == "-help" || arg == "--help":
			usage()
			os.Exit(0)

		case strings.HasPrefix(arg, "-"):
			return "", "", &usageError{fmt.Sprintf("unrecognized flag %q", arg)}

		default:
			if sourcePath != "" {
				return "", "", &usageError{fmt.Sprintf("unexpected extra argument %q", arg)}
			}
			sourcePath = arg
		}
	}
	if sourcePath == "" {
		return "", "", &usageError{"missing source file"}
	}
	return configPath, sourcePath, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if _, isUsage := err.(*usageError); isUsage {
			usage()
		}
		os.Exit(1)
	}
}
