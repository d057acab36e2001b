package simulation

import "github.com/sarchlab/hostsim/sim"

// TestSupport exposes internals of a Simulation to tests and to the checkpoint
// tooling. It is not meant for regular callers.
type TestSupport struct {
	s *Simulation
}

// NewTestSupport wraps a simulation.
func NewTestSupport(s *Simulation) TestSupport {
	return TestSupport{s: s}
}

// Blocks returns the state blocks in checkpoint order.
func (t TestSupport) Blocks() []sim.Stateful {
	return append([]sim.Stateful(nil), t.s.blocks...)
}

// ForcedCheckpointStep returns the step at which test checkpointing stops the
// warm-up phase, or -1 when test checkpointing is off.
func (t TestSupport) ForcedCheckpointStep() int64 {
	return t.s.forcedCheckpointStep()
}

// LastSlot returns the slot of the last checkpoint written or restored, or -1.
func (t TestSupport) LastSlot() int {
	return t.s.lastSlot
}
