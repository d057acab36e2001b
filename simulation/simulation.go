// Package simulation drives a host population through the initialization,
// warm-up and main phases, and checkpoints the run so that it can resume after
// an interruption.
package simulation

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/sarchlab/hostsim/checkpoint"
	"github.com/sarchlab/hostsim/sim"
)

var (
	// ErrResumeInMain is returned when a checkpoint claims to have been taken
	// during the main phase. Survey and intervention schedules are not
	// checkpointed, so such a run cannot be resumed.
	ErrResumeInMain = errors.New("resuming in the main phase is not supported")

	// ErrNegativeExtension is returned when the transmission model asks for
	// a negative number of extra initialization steps.
	ErrNegativeExtension = errors.New("negative initialization extension")

	// ErrAlreadyRun is returned when Run is called a second time.
	ErrAlreadyRun = errors.New("simulation already run")
)

const noForcedStep int64 = -1

// CheckpointStore persists the clock and the state blocks of a simulation.
type CheckpointStore interface {
	HasExistingCheckpoint() bool
	Write(clock *sim.Clock, blocks []sim.Stateful) (int, error)
	Read(clock *sim.Clock, blocks []sim.Stateful) (*checkpoint.ReadReport, error)
}

// A Simulation owns the clock of one run and steps it through the phases.
type Simulation struct {
	*sim.HookableBase

	id    string
	clock *sim.Clock
	phase sim.Phase

	population   sim.Population
	transmission sim.TransmissionModel
	surveys      sim.SurveySchedule
	sink         sim.ProgressSink
	store        CheckpointStore
	blocks       []sim.Stateful

	maxHostLifespan   int64
	testCheckpointing bool

	logger   *log.Logger
	lastSlot int
	ran      bool
}

// ID returns the ID of the run. A resumed simulation takes over the ID of the
// run that wrote the checkpoint.
func (s *Simulation) ID() string {
	return s.id
}

// Clock returns a read-only view of the simulation clock.
func (s *Simulation) Clock() sim.ClockReader {
	return s.clock
}

// Phase returns the current phase.
func (s *Simulation) Phase() sim.Phase {
	return s.phase
}

// Run executes the simulation from a cold start, or from the latest
// checkpoint if one exists. It returns Completed when the main phase finishes
// and TerminatedForCheckpointTest when test checkpointing stops the run.
func (s *Simulation) Run() (Outcome, error) {
	if s.ran {
		return nil, ErrAlreadyRun
	}

	s.ran = true

	resuming := s.store.HasExistingCheckpoint()

	err := s.population.Setup(resuming)
	if err != nil {
		return nil, fmt.Errorf("simulation: population setup: %w", err)
	}

	if resuming {
		err = s.resume()
	} else {
		err = s.startCold()
	}

	if err != nil {
		return nil, err
	}

	if s.phase == sim.PhaseInitializing {
		err = s.initialize()
		if err != nil {
			return nil, err
		}

		s.clock.EnterWarmUp(s.maxHostLifespan)
		s.enterPhase(sim.PhaseWarmingUp)
	}

	outcome, err := s.warmUp()
	if err != nil || outcome != nil {
		return outcome, err
	}

	return s.runMain()
}

func (s *Simulation) startCold() error {
	phaseEnd := s.transmission.InitDuration()
	if phaseEnd < 0 {
		return fmt.Errorf("simulation: negative initialization duration %d",
			phaseEnd)
	}

	// +1 lets the final survey run.
	total := phaseEnd + s.maxHostLifespan + s.surveys.FinalStep() + 1

	s.clock.StartInitialization(phaseEnd, total)
	s.enterPhase(sim.PhaseInitializing)

	return nil
}

func (s *Simulation) resume() error {
	report, err := s.store.Read(s.clock, s.blocks)
	if err != nil {
		return fmt.Errorf("simulation: resume: %w", err)
	}

	for _, d := range report.Discrepancies {
		if d.Block == schedulerBlockName {
			return fmt.Errorf("simulation: resume: no scheduler state in %s",
				report.Path)
		}
	}

	if s.phase >= sim.PhaseMain || s.clock.InMainPhase() {
		return fmt.Errorf("simulation: resume: %w", ErrResumeInMain)
	}

	s.lastSlot = report.Slot

	s.logger.Printf("resuming in phase %s at step %d of %d",
		s.phase, s.clock.SimulatedTime(), s.clock.TotalDuration())

	s.enterPhase(s.phase)

	if s.testCheckpointing {
		// Written right away so the resumed state can be compared with the
		// state that was saved.
		_, err = s.checkpoint()
		if err != nil {
			return err
		}
	}

	return nil
}

// initialize runs the initialization phase until the transmission model
// reports convergence.
func (s *Simulation) initialize() error {
	for {
		_, err := s.runToPhaseEnd(noForcedStep)
		if err != nil {
			return err
		}

		extension, err := s.transmission.InitIterate(s.clock)
		if err != nil {
			return fmt.Errorf("simulation: initialization at step %d: %w",
				s.clock.SimulatedTime(), err)
		}

		if extension < 0 {
			return fmt.Errorf("simulation: %w: %d",
				ErrNegativeExtension, extension)
		}

		if extension == 0 {
			return nil
		}

		s.clock.ExtendBound(extension)

		s.logger.Printf("initialization extended by %d steps to step %d",
			extension, s.clock.PhaseEnd())
	}
}

// warmUp runs one maximum host lifespan so that the population age structure
// settles.
func (s *Simulation) warmUp() (Outcome, error) {
	forced, err := s.runToPhaseEnd(s.forcedCheckpointStep())
	if err != nil {
		return nil, err
	}

	if forced {
		return TerminatedForCheckpointTest{
			Reason:        "checkpoint test: written checkpoint",
			Slot:          s.lastSlot,
			SimulatedTime: s.clock.SimulatedTime(),
		}, nil
	}

	return nil, nil
}

func (s *Simulation) forcedCheckpointStep() int64 {
	if !s.testCheckpointing {
		return noForcedStep
	}

	return s.clock.PhaseEnd() - s.maxHostLifespan/2
}

// runToPhaseEnd steps the clock until the phase end, checkpointing whenever
// the sink asks for it or the forced step is reached. It reports whether it
// stopped at the forced step.
func (s *Simulation) runToPhaseEnd(forcedStep int64) (bool, error) {
	for s.clock.SimulatedTime() < s.clock.PhaseEnd() {
		err := s.step()
		if err != nil {
			return false, err
		}

		s.sink.ReportProgress(s.clock.ProgressFraction())

		isForced := s.clock.SimulatedTime() == forcedStep
		if s.sink.IsCheckpointDue() || isForced {
			_, err = s.checkpoint()
			if err != nil {
				return false, err
			}

			if isForced {
				return true, nil
			}
		}
	}

	return false, nil
}

func (s *Simulation) step() error {
	s.invokeStepHook(sim.HookPosBeforeStep)

	s.clock.Advance()

	err := s.population.Update(s.clock)
	if err != nil {
		return fmt.Errorf("simulation: update at step %d: %w",
			s.clock.SimulatedTime(), err)
	}

	s.invokeStepHook(sim.HookPosAfterStep)

	return nil
}

// runMain takes the surveys and applies the interventions. No checkpoint is
// written in this phase.
func (s *Simulation) runMain() (Outcome, error) {
	s.clock.EnterMain()
	s.enterPhase(sim.PhaseMain)

	err := s.population.PreMainInit(s.clock)
	if err != nil {
		return nil, fmt.Errorf("simulation: pre-main init: %w", err)
	}

	err = s.survey()
	if err != nil {
		return nil, err
	}

	for s.clock.SimulatedTime() < s.clock.PhaseEnd() {
		if s.clock.OutputStep() == s.surveys.CurrentStep() {
			err = s.survey()
			if err != nil {
				return nil, err
			}
		}

		err = s.population.ImplementIntervention(s.clock)
		if err != nil {
			return nil, fmt.Errorf(
				"simulation: intervention at output step %d: %w",
				s.clock.OutputStep(), err)
		}

		s.sink.ReportProgress(s.clock.ProgressFraction())

		err = s.step()
		if err != nil {
			return nil, err
		}
	}

	s.logger.Printf("main phase finished after %d output steps",
		s.clock.OutputStep())

	err = s.surveys.WriteSummary()
	if err != nil {
		return nil, fmt.Errorf("simulation: write summary: %w", err)
	}

	err = s.population.Release()
	if err != nil {
		return nil, fmt.Errorf("simulation: release population: %w", err)
	}

	s.enterPhase(sim.PhaseDone)

	return Completed{
		FinalTime:   s.clock.SimulatedTime(),
		OutputSteps: s.clock.OutputStep(),
	}, nil
}

func (s *Simulation) survey() error {
	err := s.population.NewSurvey(s.clock)
	if err != nil {
		return fmt.Errorf("simulation: survey at output step %d: %w",
			s.clock.OutputStep(), err)
	}

	s.surveys.Advance()

	return nil
}

func (s *Simulation) checkpoint() (int, error) {
	slot, err := s.store.Write(s.clock, s.blocks)
	if err != nil {
		return -1, fmt.Errorf("simulation: checkpoint at step %d: %w",
			s.clock.SimulatedTime(), err)
	}

	s.lastSlot = slot

	if o, ok := s.sink.(sim.CheckpointObserver); ok {
		o.CheckpointCompleted(slot)
	}

	return slot, nil
}

func (s *Simulation) enterPhase(p sim.Phase) {
	s.phase = p

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    sim.HookPosPhaseEntered,
		Item:   p,
	})
}

func (s *Simulation) invokeStepHook(pos *sim.HookPos) {
	if s.NumHooks() == 0 {
		return
	}

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    pos,
		Item:   sim.ClockReader(s.clock),
		Detail: s.phase,
	})
}

const schedulerBlockName = "scheduler"

// schedulerState is the first block of every checkpoint. It records the phase
// and the run ID so that a resumed run continues where it stopped.
type schedulerState struct {
	s *Simulation
}

func (b *schedulerState) Name() string {
	return schedulerBlockName
}

func (b *schedulerState) WriteState(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s %s\n", b.s.phase, b.s.id)
	return err
}

func (b *schedulerState) ReadState(r sim.StateReader) error {
	var name, id string

	_, err := fmt.Fscan(r, &name, &id)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	phase, err := sim.ParsePhase(name)
	if err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	b.s.phase = phase
	b.s.id = id

	return nil
}
