package survey

import (
	"fmt"
	"sort"
)

// A Measure is a quantity captured at every survey.
type Measure struct {
	// Name is the identifier used in configuration, e.g. "nHost".
	Name string

	// OutID is the number identifying the measure in the output. Ids are
	// never reused.
	OutID int

	// IsDouble is false for counts.
	IsDouble bool
}

// Measures lists the measures a population may report, by name.
var Measures = map[string]Measure{
	// Total number of hosts.
	"nHost": {Name: "nHost", OutID: 0},

	// Hosts with an infection at the time of the survey.
	"nInfect": {Name: "nInfect", OutID: 1},

	// Sum over the steps since the last survey of each host's probability
	// of becoming infected.
	"nExpectd": {Name: "nExpectd", OutID: 2, IsDouble: true},

	// Hosts whose infection is detectable.
	"nPatent": {Name: "nPatent", OutID: 3},

	// Total number of infections in the population.
	"totalInfs": {Name: "totalInfs", OutID: 6},

	// Treatments given since the last survey.
	"nTreatments1": {Name: "nTreatments1", OutID: 11},

	// Uncomplicated episodes since the last survey.
	"nUncomp": {Name: "nUncomp", OutID: 14},

	// Sum of host ages in steps. Divide by nHost for the mean.
	"sumAge": {Name: "sumAge", OutID: 68, IsDouble: true},
}

// LookupMeasures resolves measure names, sorted by output id.
func LookupMeasures(names []string) ([]Measure, error) {
	measures := make([]Measure, 0, len(names))
	seen := make(map[string]bool)

	for _, n := range names {
		m, ok := Measures[n]
		if !ok {
			return nil, fmt.Errorf("survey: unknown measure %q", n)
		}

		if seen[n] {
			continue
		}

		seen[n] = true
		measures = append(measures, m)
	}

	sort.Slice(measures, func(i, j int) bool {
		return measures[i].OutID < measures[j].OutID
	})

	return measures, nil
}

// AllMeasureNames returns every known measure name, sorted by output id.
func AllMeasureNames() []string {
	names := make([]string, 0, len(Measures))
	for n := range Measures {
		names = append(names, n)
	}

	sort.Slice(names, func(i, j int) bool {
		return Measures[names[i]].OutID < Measures[names[j]].OutID
	})

	return names
}
