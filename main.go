// Command gridsim is the entrypoint for the CLI; it delegates to the
// Cobra root command in cmd/root.go.
package main

import (
	"github.com/krfmo/gridsim/cmd"
)

func main() {
	cmd.Execute()
}
