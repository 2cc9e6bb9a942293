// The main package for the jobwatch executable.
package main

import (
	"github.com/JakeFAU/jobwatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
