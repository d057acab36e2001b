// Command hostsim runs a host population simulation that checkpoints itself
// and resumes after an interruption.
package main

import "github.com/sarchlab/hostsim/cmd/hostsim/cmd"

func main() {
	cmd.Execute()
}
