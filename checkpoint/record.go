package checkpoint

import (
	"time"

	"github.com/sarchlab/hostsim/datarecording"
	"github.com/sarchlab/hostsim/sim"
)

// HookPosCheckpointWritten triggers after the marker points at a new slot.
// The item is a *Record.
var HookPosCheckpointWritten = &sim.HookPos{Name: "CheckpointWritten"}

// HookPosCheckpointRestored triggers after a checkpoint has been read. The
// item is a *Record.
var HookPosCheckpointRestored = &sim.HookPos{Name: "CheckpointRestored"}

// A Record describes one committed write or one completed read.
type Record struct {
	Slot          int
	Path          string
	Compressed    bool
	Bytes         int64
	Duration      time.Duration
	SimulatedTime int64
	Restored      bool
}

// LogTableName is the table RecordingHook writes into.
const LogTableName = "checkpoint_log"

// LogEntry is one row of the checkpoint log.
type LogEntry struct {
	RunID         string
	Event         string
	Slot          int
	Path          string
	Compressed    bool
	Bytes         int64
	DurationSec   float64
	SimulatedTime int64
}

// RecordingHook stores every checkpoint write and restore in a data recorder.
type RecordingHook struct {
	recorder datarecording.DataRecorder
	runID    func() string
}

// NewRecordingHook creates the log table and returns the hook. The run ID is
// looked up for every row, as a resumed run learns its ID from the checkpoint.
func NewRecordingHook(
	recorder datarecording.DataRecorder,
	runID func() string,
) *RecordingHook {
	recorder.CreateTable(LogTableName, LogEntry{})

	return &RecordingHook{recorder: recorder, runID: runID}
}

// Func records the checkpoint event.
func (h *RecordingHook) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosCheckpointWritten &&
		ctx.Pos != HookPosCheckpointRestored {
		return
	}

	r, ok := ctx.Item.(*Record)
	if !ok {
		return
	}

	event := "write"
	if r.Restored {
		event = "restore"
	}

	h.recorder.InsertData(LogTableName, LogEntry{
		RunID:         h.runID(),
		Event:         event,
		Slot:          r.Slot,
		Path:          r.Path,
		Compressed:    r.Compressed,
		Bytes:         r.Bytes,
		DurationSec:   r.Duration.Seconds(),
		SimulatedTime: r.SimulatedTime,
	})
}
