package simulation

import "fmt"

// Outcome is the result of a run that did not fail. It is either Completed or
// TerminatedForCheckpointTest.
type Outcome interface {
	fmt.Stringer
	outcome()
}

// Completed is returned when the main phase ran to its end.
type Completed struct {
	FinalTime   int64
	OutputSteps int64
}

func (Completed) outcome() {}

func (c Completed) String() string {
	return fmt.Sprintf("completed at step %d after %d output steps",
		c.FinalTime, c.OutputSteps)
}

// TerminatedForCheckpointTest is returned when test checkpointing stopped the
// run after writing its checkpoint. It is not an error.
type TerminatedForCheckpointTest struct {
	Reason        string
	Slot          int
	SimulatedTime int64
}

func (TerminatedForCheckpointTest) outcome() {}

func (t TerminatedForCheckpointTest) String() string {
	return fmt.Sprintf("%s (slot %d, step %d)",
		t.Reason, t.Slot, t.SimulatedTime)
}
