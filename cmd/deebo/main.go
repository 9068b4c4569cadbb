// deebo: autonomous debugging agent, served over MCP.
//
// A host AI hands deebo a bug with the start tool. A mother agent forms
// hypotheses and tests each one in a scenario agent running as its own
// process on its own git branch, until one of them yields a fix.
//
// Usage:
//
//	deebo serve       # Start MCP server (stdio transport)
//	deebo scenario    # Run one scenario agent (started by serve)
//	deebo version     # Print the version, optionally checking for updates
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit exitError
		if !errors.As(err, &exit) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// exitError ends the process with a failure status after the command has
// already reported the failure itself.
type exitError struct{ err error }

func (e exitError) Error() string { return e.err.Error() }

func (e exitError) Unwrap() error { return e.err }
