package sim

import "io"

// A StateReader is the stream a collaborator restores itself from. Being a
// RuneScanner lets fmt.Fscan stop exactly at the end of a token, so one block
// never consumes bytes that belong to the next.
type StateReader interface {
	io.Reader
	io.RuneScanner
}

// Stateful is a collaborator that can write its state into a checkpoint and
// read back exactly the bytes it wrote.
type Stateful interface {
	Name() string
	WriteState(w io.Writer) error
	ReadState(r StateReader) error
}

// Population is the host population advanced by the engine.
type Population interface {
	Stateful

	// Setup prepares the population before the run starts. When resuming is
	// true, the state is about to be overwritten by a checkpoint.
	Setup(resuming bool) error

	// Update advances the population by the step the clock just took.
	Update(clock ClockReader) error

	// PreMainInit is called once, right after entering the main phase.
	PreMainInit(clock ClockReader) error

	// NewSurvey takes a survey snapshot.
	NewSurvey(clock ClockReader) error

	// ImplementIntervention applies interventions scheduled for the current
	// output step.
	ImplementIntervention(clock ClockReader) error

	// Release frees the population at the end of the run.
	Release() error
}

// TransmissionModel decides how long initialization lasts.
type TransmissionModel interface {
	// InitDuration estimates the number of steps initialization needs.
	InitDuration() int64

	// InitIterate is called when the initialization phase ends. It returns
	// the number of extra steps required to converge, or zero when converged.
	InitIterate(clock ClockReader) (int64, error)
}

// SurveySchedule knows at which output steps surveys are taken.
type SurveySchedule interface {
	// CurrentStep returns the output step of the next survey.
	CurrentStep() int64

	// Advance moves on to the next survey period.
	Advance()

	// FinalStep returns the output step of the last survey.
	FinalStep() int64

	// WriteSummary flushes the accumulated survey output.
	WriteSummary() error
}

// RandomState persists the state of the random number generator. States are
// keyed by checkpoint slot, so the generator is always restored from the same
// snapshot as the rest of the simulation.
type RandomState interface {
	SaveState(slot int) error
	LoadState(slot int) error
}

// ProgressSink receives progress reports and decides when to checkpoint.
type ProgressSink interface {
	ReportProgress(fraction float64)
	IsCheckpointDue() bool
}

// CheckpointObserver is optionally implemented by a ProgressSink that wants to
// know when a checkpoint has been committed.
type CheckpointObserver interface {
	CheckpointCompleted(slot int)
}
