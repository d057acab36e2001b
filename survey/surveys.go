// Package survey schedules surveys of the population during the main phase
// and collects the measures reported at each of them.
package survey

import (
	"fmt"
	"sort"

	"github.com/sarchlab/hostsim/datarecording"
	"github.com/sarchlab/hostsim/sim"
)

// TableName is the table survey results are written into.
const TableName = "survey"

// Entry is one row of survey output.
type Entry struct {
	RunID      string
	Survey     int
	OutputStep int64
	Measure    string
	OutID      int
	Value      float64
}

// Surveys holds the survey schedule and accumulates the reported values.
//
// Survey period 0 is the time before the first survey; the values reported
// during it are discarded. The schedule is not part of checkpoints because no
// checkpoint is taken during the main phase.
type Surveys struct {
	steps    []int64
	measures []Measure
	enabled  map[string]bool

	period  int
	current int64

	values   map[string]float64
	finished []Entry

	recorder datarecording.DataRecorder
	runID    func() string
}

var _ sim.SurveySchedule = (*Surveys)(nil)

// New creates surveys taken at the given output steps, capturing the named
// measures. Steps must be positive; they are sorted and de-duplicated.
func New(steps []int64, measureNames []string) (*Surveys, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("survey: no survey steps")
	}

	sorted := append([]int64(nil), steps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	unique := sorted[:0]
	for _, s := range sorted {
		if s <= 0 {
			return nil, fmt.Errorf("survey: step %d is not positive", s)
		}

		if len(unique) > 0 && s == unique[len(unique)-1] {
			continue
		}

		unique = append(unique, s)
	}

	measures, err := LookupMeasures(measureNames)
	if err != nil {
		return nil, err
	}

	enabled := make(map[string]bool, len(measures))
	for _, m := range measures {
		enabled[m.Name] = true
	}

	return &Surveys{
		steps:    unique,
		measures: measures,
		enabled:  enabled,
		current:  sim.OutputStepNever,
		values:   make(map[string]float64),
	}, nil
}

// WithRecorder sets where WriteSummary sends the results. Rows are tagged
// with the run ID current when their survey closes.
func (s *Surveys) WithRecorder(
	recorder datarecording.DataRecorder,
	runID func() string,
) *Surveys {
	s.recorder = recorder
	s.runID = runID

	return s
}

// CurrentStep returns the output step of the next survey, or
// sim.OutputStepNever once all surveys are done.
func (s *Surveys) CurrentStep() int64 {
	return s.current
}

// Period returns the index of the survey period being accumulated. Period 0
// precedes the first survey.
func (s *Surveys) Period() int {
	return s.period
}

// FinalStep returns the output step of the last survey.
func (s *Surveys) FinalStep() int64 {
	return s.steps[len(s.steps)-1]
}

// Advance closes the current survey period and moves on to the next one.
func (s *Surveys) Advance() {
	if s.period > 0 {
		s.closePeriod()
	}

	s.values = make(map[string]float64)

	if s.period < len(s.steps) {
		s.current = s.steps[s.period]
	} else {
		s.current = sim.OutputStepNever
	}

	s.period++
}

func (s *Surveys) closePeriod() {
	runID := ""
	if s.runID != nil {
		runID = s.runID()
	}

	for _, m := range s.measures {
		s.finished = append(s.finished, Entry{
			RunID:      runID,
			Survey:     s.period,
			OutputStep: s.steps[s.period-1],
			Measure:    m.Name,
			OutID:      m.OutID,
			Value:      s.values[m.Name],
		})
	}
}

// Enabled tells whether a measure is captured.
func (s *Surveys) Enabled(measure string) bool {
	return s.enabled[measure]
}

// Report adds a value to a measure of the current survey period. Values of
// measures that are not enabled are dropped.
func (s *Surveys) Report(measure string, value float64) {
	if !s.enabled[measure] {
		return
	}

	s.values[measure] += value
}

// Results returns the rows of all completed surveys.
func (s *Surveys) Results() []Entry {
	return s.finished
}

// WriteSummary sends the completed surveys to the recorder and flushes it.
func (s *Surveys) WriteSummary() error {
	if s.recorder == nil {
		return nil
	}

	s.recorder.CreateTable(TableName, Entry{})

	for _, e := range s.finished {
		s.recorder.InsertData(TableName, e)
	}

	s.recorder.Flush()

	return nil
}
