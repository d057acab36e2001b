package simulation

import (
	"log"

	"github.com/rs/xid"
	"github.com/sarchlab/hostsim/sim"
)

// Builder can be used to build a simulation.
type Builder struct {
	population   sim.Population
	transmission sim.TransmissionModel
	surveys      sim.SurveySchedule
	sink         sim.ProgressSink
	store        CheckpointStore

	maxHostLifespan   int64
	testCheckpointing bool

	extraBlocks []sim.Stateful
	hooks       []sim.Hook
	logger      *log.Logger
}

// MakeBuilder creates a new builder.
func MakeBuilder() Builder {
	return Builder{
		logger: log.Default(),
	}
}

// WithPopulation sets the population the simulation advances.
func (b Builder) WithPopulation(p sim.Population) Builder {
	b.population = p
	return b
}

// WithTransmissionModel sets the model that decides the initialization
// length. If the model is also a sim.Stateful, it is checkpointed right after
// the population.
func (b Builder) WithTransmissionModel(t sim.TransmissionModel) Builder {
	b.transmission = t
	return b
}

// WithSurveySchedule sets the survey schedule used in the main phase.
func (b Builder) WithSurveySchedule(s sim.SurveySchedule) Builder {
	b.surveys = s
	return b
}

// WithProgressSink sets the sink that receives progress and decides when to
// checkpoint. Without a sink, no checkpoint is taken except the forced one of
// test-checkpointing mode.
func (b Builder) WithProgressSink(s sim.ProgressSink) Builder {
	b.sink = s
	return b
}

// WithCheckpointStore sets where checkpoints are written and read.
func (b Builder) WithCheckpointStore(s CheckpointStore) Builder {
	b.store = s
	return b
}

// WithMaxHostLifespan sets the length of the warm-up phase, in steps.
func (b Builder) WithMaxHostLifespan(steps int64) Builder {
	b.maxHostLifespan = steps
	return b
}

// WithTestCheckpointing makes the simulation write a checkpoint halfway
// through the warm-up phase and stop there, and write one right after
// resuming.
func (b Builder) WithTestCheckpointing(on bool) Builder {
	b.testCheckpointing = on
	return b
}

// WithStateful appends blocks that are checkpointed after the population and
// the transmission model, in the given order.
func (b Builder) WithStateful(blocks ...sim.Stateful) Builder {
	b.extraBlocks = append(
		append([]sim.Stateful(nil), b.extraBlocks...), blocks...)
	return b
}

// WithHook registers a hook on the simulation.
func (b Builder) WithHook(h sim.Hook) Builder {
	b.hooks = append(append([]sim.Hook(nil), b.hooks...), h)
	return b
}

// WithLogger sets the logger for status lines.
func (b Builder) WithLogger(l *log.Logger) Builder {
	b.logger = l
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.population == nil {
		panic("population is not set")
	}

	if b.transmission == nil {
		panic("transmission model is not set")
	}

	if b.surveys == nil {
		panic("survey schedule is not set")
	}

	if b.store == nil {
		panic("checkpoint store is not set")
	}

	if b.maxHostLifespan < 0 {
		panic("max host lifespan cannot be negative")
	}
}

// Build builds the simulation.
func (b Builder) Build() *Simulation {
	b.parametersMustBeValid()

	s := &Simulation{
		HookableBase:      sim.NewHookableBase(),
		id:                xid.New().String(),
		clock:             sim.NewClock(),
		phase:             sim.PhaseInitializing,
		population:        b.population,
		transmission:      b.transmission,
		surveys:           b.surveys,
		sink:              b.sink,
		store:             b.store,
		maxHostLifespan:   b.maxHostLifespan,
		testCheckpointing: b.testCheckpointing,
		logger:            b.logger,
		lastSlot:          -1,
	}

	if s.sink == nil {
		s.sink = nopSink{}
	}

	s.blocks = []sim.Stateful{&schedulerState{s: s}, b.population}

	stateful, ok := b.transmission.(sim.Stateful)
	if ok && stateful != sim.Stateful(b.population) {
		s.blocks = append(s.blocks, stateful)
	}

	s.blocks = append(s.blocks, b.extraBlocks...)

	for _, h := range b.hooks {
		s.AcceptHook(h)
	}

	return s
}

type nopSink struct{}

func (nopSink) ReportProgress(float64) {}

func (nopSink) IsCheckpointDue() bool { return false }
