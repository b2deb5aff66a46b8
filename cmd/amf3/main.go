// Command amf3 inspects, builds and exchanges AMF3 payloads.
//
//	amf3 decode [--offset N] [--format json|cbor] [--compact]  < body.amf
//	amf3 encode [--sequence]                                   < values.jsonc
//	amf3 diag [--offset N]                                     < body.amf
//	amf3 call [--config FILE] [--body FILE] [--options V:L]
//	amf3 serve [--addr ADDR] [--preamble-len N]
//	amf3 capture ls|cat [--config FILE]
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// command is one subcommand. run receives the arguments after the
// subcommand name.
type command struct {
	summary string
	run     func(env *environment, args []string) error
}

// environment carries the process streams so commands can be driven
// from tests.
type environment struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

var commands = map[string]command{
	"decode":  {"Convert AMF3 on stdin to JSON or CBOR on stdout", runDecode},
	"encode":  {"Convert JSON (with comments) on stdin to AMF3 on stdout", runEncode},
	"diag":    {"Print one typed diagnostic line per AMF3 value on stdin", runDiag},
	"call":    {"Post values to the configured gateway and print the reply", runCall},
	"serve":   {"Run a local echo gateway", runServe},
	"capture": {"List or print captured gateway bodies", runCapture},
}

func main() {
	env := &environment{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := run(env, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(env *environment, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(env.stderr)
		if len(args) == 0 {
			return errors.New("no command given")
		}
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage(env.stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
	return cmd.run(env, args[1:])
}

func usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "usage: amf3 <command> [flags]")
	fmt.Fprintln(w)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name].summary)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(env *environment, name string) *pflag.FlagSet {
	flags := pflag.NewFlagSet("amf3 "+name, pflag.ContinueOnError)
	flags.SetOutput(env.stderr)
	flags.SortFlags = false
	return flags
}

// noArgs rejects positional arguments left after flag parsing.
func noArgs(flags *pflag.FlagSet) error {
	if flags.NArg() > 0 {
		return fmt.Errorf("%s takes no positional arguments, got %q", strings.TrimPrefix(flags.Name(), "amf3 "), flags.Arg(0))
	}
	return nil
}
