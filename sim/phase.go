package sim

import "fmt"

// Phase is a stage of the simulation timeline. Phases run in declaration
// order and are never re-entered.
type Phase int

// The phases of a run.
const (
	PhaseInitializing Phase = iota
	PhaseWarmingUp
	PhaseMain
	PhaseDone
)

var phaseNames = []string{"initializing", "warming-up", "main", "done"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}

	return phaseNames[p]
}

// ParsePhase converts the name produced by String back to a Phase.
func ParsePhase(name string) (Phase, error) {
	for i, n := range phaseNames {
		if n == name {
			return Phase(i), nil
		}
	}

	return 0, fmt.Errorf("unknown phase %q", name)
}
