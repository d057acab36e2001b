package sim

import (
	"fmt"
	"io"
	"log"
	"math"
)

// OutputStepNever is the output step before the main phase has begun.
const OutputStepNever int64 = -1

// A ClockReader gives read-only access to simulated time. Every collaborator
// call receives the engine's clock through this view.
type ClockReader interface {
	SimulatedTime() int64
	OutputStep() int64
	PhaseEnd() int64
	TotalDuration() int64
	ProgressFraction() float64
}

// Clock holds the scalar time quantities of a run.
//
// The invariant simulatedTime <= phaseEnd <= totalDuration holds between
// operations. outputStep stays at OutputStepNever until EnterMain resets it to
// zero.
type Clock struct {
	simulatedTime int64
	outputStep    int64
	phaseEnd      int64
	totalDuration int64
}

// NewClock returns a clock at step zero with empty bounds.
func NewClock() *Clock {
	return &Clock{outputStep: OutputStepNever}
}

// SimulatedTime returns the number of steps since the run began.
func (c *Clock) SimulatedTime() int64 {
	return c.simulatedTime
}

// OutputStep returns the number of steps since the main phase began, or
// OutputStepNever before that.
func (c *Clock) OutputStep() int64 {
	return c.outputStep
}

// PhaseEnd returns the step at which the current phase terminates.
func (c *Clock) PhaseEnd() int64 {
	return c.phaseEnd
}

// TotalDuration returns the planned length of the whole run.
func (c *Clock) TotalDuration() int64 {
	return c.totalDuration
}

// InMainPhase tells whether EnterMain has been called.
func (c *Clock) InMainPhase() bool {
	return c.outputStep != OutputStepNever
}

// ProgressFraction returns simulatedTime / totalDuration clamped to [0, 1].
func (c *Clock) ProgressFraction() float64 {
	if c.totalDuration <= 0 {
		return 0
	}

	f := float64(c.simulatedTime) / float64(c.totalDuration)
	if f < 0 {
		return 0
	}

	if f > 1 {
		return 1
	}

	return f
}

// Advance moves the clock forward by one step.
func (c *Clock) Advance() {
	if c.simulatedTime == math.MaxInt64 {
		log.Panic("clock: simulated time overflow")
	}

	c.simulatedTime++

	if c.InMainPhase() {
		c.outputStep++
	}
}

// StartInitialization sets the bounds of a cold-started run.
func (c *Clock) StartInitialization(phaseEnd, totalDuration int64) {
	if phaseEnd < c.simulatedTime || totalDuration < phaseEnd {
		log.Panicf("clock: invalid bounds, now %d, phase end %d, total %d",
			c.simulatedTime, phaseEnd, totalDuration)
	}

	c.phaseEnd = phaseEnd
	c.totalDuration = totalDuration
}

// ExtendBound pushes both the phase end and the total duration back by the
// given number of steps.
func (c *Clock) ExtendBound(steps int64) {
	if steps < 0 {
		log.Panicf("clock: cannot extend bounds by %d steps", steps)
	}

	if c.totalDuration > math.MaxInt64-steps {
		log.Panic("clock: total duration overflow")
	}

	c.phaseEnd += steps
	c.totalDuration += steps
}

// EnterWarmUp moves the phase end one host lifespan further.
func (c *Clock) EnterWarmUp(lifespan int64) {
	if lifespan < 0 || c.phaseEnd+lifespan > c.totalDuration {
		log.Panicf("clock: warm-up of %d steps exceeds total duration %d",
			lifespan, c.totalDuration)
	}

	c.phaseEnd += lifespan
}

// EnterMain resets the output step and lets the phase run to the total
// duration.
func (c *Clock) EnterMain() {
	if c.InMainPhase() {
		log.Panic("clock: main phase entered twice")
	}

	c.outputStep = 0
	c.phaseEnd = c.totalDuration
}

// Name identifies the clock block in checkpoint diagnostics.
func (c *Clock) Name() string {
	return "clock"
}

// WriteState writes the four scalars, one per line.
func (c *Clock) WriteState(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%d\n%d\n%d\n%d\n",
		c.simulatedTime, c.outputStep, c.phaseEnd, c.totalDuration)

	return err
}

// ReadState reads the scalars written by WriteState and checks the ordering
// invariant.
func (c *Clock) ReadState(r StateReader) error {
	var now, outputStep, phaseEnd, total int64

	_, err := fmt.Fscan(r, &now, &outputStep, &phaseEnd, &total)
	if err != nil {
		return fmt.Errorf("clock: %w", err)
	}

	if now < 0 || now > phaseEnd || phaseEnd > total ||
		outputStep < OutputStepNever {
		return fmt.Errorf(
			"clock: inconsistent state, now %d, output step %d, "+
				"phase end %d, total %d",
			now, outputStep, phaseEnd, total)
	}

	c.simulatedTime = now
	c.outputStep = outputStep
	c.phaseEnd = phaseEnd
	c.totalDuration = total

	return nil
}
