// Package monitoring reports the progress of a running simulation, decides
// when it is time to checkpoint, and serves both over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/hostsim/checkpoint"
	"github.com/sarchlab/hostsim/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// progressBarTotal is the resolution of the run's progress bar.
const progressBarTotal = 1000

// ClockSnapshot is a copy of the simulation clock taken after a step.
type ClockSnapshot struct {
	SimulatedTime int64
	OutputStep    int64
	PhaseEnd      int64
	TotalDuration int64
	Phase         string
}

// CheckpointStatus describes the checkpoint state of the run.
type CheckpointStatus struct {
	Requested     bool      `json:"requested"`
	Count         int       `json:"count"`
	LastSlot      int       `json:"last_slot"`
	LastTime      time.Time `json:"last_time"`
	SimulatedTime int64     `json:"simulated_time"`
	Bytes         int64     `json:"bytes"`
}

// Monitor is the progress sink of a simulation. It asks for a checkpoint when
// the checkpoint interval has elapsed or when one was requested over HTTP.
type Monitor struct {
	portNumber int
	interval   time.Duration
	now        func() time.Time

	checkpointRequested atomic.Bool

	lock           sync.Mutex
	lastCheckpoint time.Time
	checkpoints    CheckpointStatus
	clock          ClockSnapshot
	phase          sim.Phase
	runBar         *ProgressBar
	phaseBar       *ProgressBar
	phaseStart     int64
	progressBars   []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	m := &Monitor{now: time.Now}
	m.lastCheckpoint = m.now()
	m.checkpoints.LastSlot = -1

	return m
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// WithCheckpointInterval sets the wall-clock time between two checkpoints. A
// zero interval only checkpoints on request.
func (m *Monitor) WithCheckpointInterval(d time.Duration) *Monitor {
	m.interval = d
	return m
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := newProgressBar(name, total)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.lock.Lock()
	defer m.lock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars

	if m.runBar == pb {
		m.runBar = nil
	}

	if m.phaseBar == pb {
		m.phaseBar = nil
	}
}

// ReportProgress updates the progress bar of the run.
func (m *Monitor) ReportProgress(fraction float64) {
	m.lock.Lock()
	if m.runBar == nil {
		m.runBar = newProgressBar("Simulation", progressBarTotal)
		m.progressBars = append(m.progressBars, m.runBar)
	}
	bar := m.runBar
	m.lock.Unlock()

	bar.SetFraction(fraction)
}

// IsCheckpointDue tells whether the simulation should checkpoint now.
func (m *Monitor) IsCheckpointDue() bool {
	if m.checkpointRequested.Load() {
		return true
	}

	if m.interval <= 0 {
		return false
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	return m.now().Sub(m.lastCheckpoint) >= m.interval
}

// CheckpointCompleted restarts the checkpoint interval.
func (m *Monitor) CheckpointCompleted(slot int) {
	m.checkpointRequested.Store(false)

	m.lock.Lock()
	defer m.lock.Unlock()

	m.lastCheckpoint = m.now()
	m.checkpoints.LastSlot = slot
	m.checkpoints.LastTime = m.lastCheckpoint
	m.checkpoints.Count++
}

// RequestCheckpoint makes the next IsCheckpointDue return true.
func (m *Monitor) RequestCheckpoint() {
	m.checkpointRequested.Store(true)
}

// Func records the simulation clock and the checkpoint records. It is
// registered on both the simulation and the checkpoint store.
func (m *Monitor) Func(ctx sim.HookCtx) {
	switch ctx.Pos {
	case sim.HookPosAfterStep:
		clock, ok := ctx.Item.(sim.ClockReader)
		if !ok {
			return
		}

		phase, _ := ctx.Detail.(sim.Phase)

		m.lock.Lock()
		m.phase = phase
		m.clock = ClockSnapshot{
			SimulatedTime: clock.SimulatedTime(),
			OutputStep:    clock.OutputStep(),
			PhaseEnd:      clock.PhaseEnd(),
			TotalDuration: clock.TotalDuration(),
			Phase:         phase.String(),
		}

		bar := m.phaseBar
		if bar != nil && m.phaseStart < 0 {
			m.phaseStart = clock.SimulatedTime() - 1
		}
		start := m.phaseStart
		m.lock.Unlock()

		if bar != nil && clock.PhaseEnd() > start {
			bar.SetFraction(float64(clock.SimulatedTime()-start) /
				float64(clock.PhaseEnd()-start))
		}
	case sim.HookPosPhaseEntered:
		phase, ok := ctx.Item.(sim.Phase)
		if !ok {
			return
		}

		m.enterPhase(phase)
	case checkpoint.HookPosCheckpointWritten:
		record, ok := ctx.Item.(*checkpoint.Record)
		if !ok {
			return
		}

		m.lock.Lock()
		m.checkpoints.SimulatedTime = record.SimulatedTime
		m.checkpoints.Bytes = record.Bytes
		m.lock.Unlock()
	}
}

// enterPhase replaces the bar of the previous phase with one for the new
// phase. The bar starts at the first step taken in the phase.
func (m *Monitor) enterPhase(phase sim.Phase) {
	m.lock.Lock()
	m.phase = phase
	m.clock.Phase = phase.String()
	previous := m.phaseBar
	m.phaseStart = -1
	m.lock.Unlock()

	if previous != nil {
		m.CompleteProgressBar(previous)
	}

	if phase == sim.PhaseDone {
		return
	}

	bar := m.CreateProgressBar(phase.String(), progressBarTotal)

	m.lock.Lock()
	m.phaseBar = bar
	m.lock.Unlock()
}

// Clock returns the clock as of the last completed step.
func (m *Monitor) Clock() ClockSnapshot {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.clock
}

// Handler returns the HTTP API of the monitor.
func (m *Monitor) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/progress", m.listProgressBars).Methods(http.MethodGet)
	r.HandleFunc("/api/clock", m.serializeClock).Methods(http.MethodGet)
	r.HandleFunc("/api/checkpoint", m.checkpointStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/checkpoint", m.requestCheckpoint).
		Methods(http.MethodPost)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)
	r.HandleFunc("/api/profile", m.collectProfile).Methods(http.MethodGet)

	return r
}

// StartServer starts the monitor as a web server and returns its address.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = fmt.Sprintf(":%d", m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("monitoring: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	m.server = &http.Server{
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			log.Printf("monitoring: %v", err)
		}
	}()

	return url, nil
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	bars := append([]*ProgressBar(nil), m.progressBars...)
	m.lock.Unlock()

	rsp := make([]map[string]any, 0, len(bars))
	for _, b := range bars {
		b.Lock()
		rsp = append(rsp, map[string]any{
			"id":         b.ID,
			"name":       b.Name,
			"start_time": b.StartTime,
			"total":      b.Total,
			"finished":   b.Finished,
		})
		b.Unlock()
	}

	writeJSON(w, rsp)
}

func (m *Monitor) serializeClock(w http.ResponseWriter, _ *http.Request) {
	snapshot := m.Clock()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(snapshot)
	serializer.SetMaxDepth(1)

	err := serializer.Serialize(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Monitor) checkpointStatus(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	status := m.checkpoints
	m.lock.Unlock()

	status.Requested = m.checkpointRequested.Load()

	writeJSON(w, status)
}

func (m *Monitor) requestCheckpoint(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	phase := m.phase
	m.lock.Unlock()

	if phase >= sim.PhaseMain {
		http.Error(w, "no checkpoint is taken in phase "+phase.String(),
			http.StatusConflict)
		return
	}

	m.RequestCheckpoint()
	w.WriteHeader(http.StatusAccepted)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memory, err := p.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(data)
	if err != nil {
		log.Printf("monitoring: %v", err)
	}
}
