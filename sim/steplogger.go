package sim

import "log"

// StepLogger is a hook that prints the clock after every step.
type StepLogger struct {
	logger *log.Logger

	phaseChangesOnly bool
}

// NewStepLogger returns a new StepLogger that writes into the logger.
func NewStepLogger(logger *log.Logger) *StepLogger {
	return &StepLogger{logger: logger}
}

// PhaseChangesOnly makes the logger skip individual steps.
func (h *StepLogger) PhaseChangesOnly() *StepLogger {
	h.phaseChangesOnly = true
	return h
}

// Func writes the step information into the logger
func (h *StepLogger) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosPhaseEntered:
		phase, ok := ctx.Item.(Phase)
		if !ok {
			return
		}

		h.logger.Printf("entering phase %s", phase)
	case HookPosAfterStep:
		if h.phaseChangesOnly {
			return
		}

		clock, ok := ctx.Item.(ClockReader)
		if !ok {
			return
		}

		h.logger.Printf("%d/%d, output step %d, phase end %d, %s",
			clock.SimulatedTime(), clock.TotalDuration(),
			clock.OutputStep(), clock.PhaseEnd(), ctx.Detail)
	}
}
