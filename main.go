// The main package for the report-relay executable.
package main

import (
	"github.com/relaycore/report-relay/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
