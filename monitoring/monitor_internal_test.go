package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/sarchlab/hostsim/checkpoint"
	"github.com/sarchlab/hostsim/sim"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Monitor", func() {
	var (
		m   *Monitor
		now time.Time
	)

	BeforeEach(func() {
		now = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		m = NewMonitor().WithCheckpointInterval(time.Minute)
		m.now = func() time.Time { return now }
		m.lastCheckpoint = now
	})

	step := func(clock *sim.Clock, phase sim.Phase) {
		clock.Advance()
		m.Func(sim.HookCtx{
			Pos:    sim.HookPosAfterStep,
			Item:   sim.ClockReader(clock),
			Detail: phase,
		})
	}

	It("should ask for a checkpoint when the interval elapsed", func() {
		Expect(m.IsCheckpointDue()).To(BeFalse())

		now = now.Add(time.Minute)
		Expect(m.IsCheckpointDue()).To(BeTrue())

		m.CheckpointCompleted(0)
		Expect(m.IsCheckpointDue()).To(BeFalse())

		now = now.Add(59 * time.Second)
		Expect(m.IsCheckpointDue()).To(BeFalse())
	})

	It("should only checkpoint on request without an interval", func() {
		m.WithCheckpointInterval(0)
		now = now.Add(time.Hour)

		Expect(m.IsCheckpointDue()).To(BeFalse())

		m.RequestCheckpoint()
		Expect(m.IsCheckpointDue()).To(BeTrue())

		m.CheckpointCompleted(1)
		Expect(m.IsCheckpointDue()).To(BeFalse())
	})

	It("should track the run progress", func() {
		m.ReportProgress(0.25)
		m.ReportProgress(0.5)

		Expect(m.progressBars).To(HaveLen(1))
		Expect(m.runBar.Fraction()).To(BeNumerically("~", 0.5, 1e-9))

		m.ReportProgress(2)
		Expect(m.runBar.Finished).To(Equal(uint64(progressBarTotal)))

		m.CompleteProgressBar(m.runBar)
		Expect(m.progressBars).To(BeEmpty())
	})

	It("should keep one progress bar per phase", func() {
		enter := func(phase sim.Phase) {
			m.Func(sim.HookCtx{Pos: sim.HookPosPhaseEntered, Item: phase})
		}

		clock := sim.NewClock()
		clock.StartInitialization(10, 20)

		enter(sim.PhaseInitializing)
		Expect(m.progressBars).To(HaveLen(1))
		Expect(m.progressBars[0].Name).To(Equal("initializing"))

		for i := 0; i < 5; i++ {
			step(clock, sim.PhaseInitializing)
		}
		Expect(m.phaseBar.Fraction()).To(BeNumerically("~", 0.5, 1e-9))

		enter(sim.PhaseWarmingUp)
		Expect(m.progressBars).To(HaveLen(1))
		Expect(m.progressBars[0].Name).To(Equal("warming-up"))

		step(clock, sim.PhaseWarmingUp)
		Expect(m.phaseBar.Fraction()).To(BeNumerically("~", 0.2, 1e-9))

		enter(sim.PhaseDone)
		Expect(m.progressBars).To(BeEmpty())
		Expect(m.phaseBar).To(BeNil())
	})

	It("should keep a snapshot of the clock", func() {
		clock := sim.NewClock()
		clock.StartInitialization(10, 20)

		step(clock, sim.PhaseInitializing)
		step(clock, sim.PhaseInitializing)

		Expect(m.Clock()).To(Equal(ClockSnapshot{
			SimulatedTime: 2,
			OutputStep:    sim.OutputStepNever,
			PhaseEnd:      10,
			TotalDuration: 20,
			Phase:         "initializing",
		}))
	})

	Context("when serving HTTP", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = httptest.NewServer(m.Handler())
		})

		AfterEach(func() {
			server.Close()
		})

		It("should list progress bars", func() {
			m.CreateProgressBar("Surveys", 4)

			rsp, err := http.Get(server.URL + "/api/progress")
			Expect(err).NotTo(HaveOccurred())
			defer rsp.Body.Close()

			var bars []map[string]any
			Expect(json.NewDecoder(rsp.Body).Decode(&bars)).To(Succeed())
			Expect(bars).To(HaveLen(1))
			Expect(bars[0]["name"]).To(Equal("Surveys"))
			Expect(bars[0]["total"]).To(BeNumerically("==", 4))
		})

		It("should serve the clock", func() {
			clock := sim.NewClock()
			clock.StartInitialization(10, 20)
			step(clock, sim.PhaseInitializing)

			rsp, err := http.Get(server.URL + "/api/clock")
			Expect(err).NotTo(HaveOccurred())
			defer rsp.Body.Close()

			Expect(rsp.StatusCode).To(Equal(http.StatusOK))
		})

		It("should accept checkpoint requests before the main phase", func() {
			rsp, err := http.Post(server.URL+"/api/checkpoint", "", nil)
			Expect(err).NotTo(HaveOccurred())
			rsp.Body.Close()

			Expect(rsp.StatusCode).To(Equal(http.StatusAccepted))
			Expect(m.IsCheckpointDue()).To(BeTrue())
		})

		It("should reject checkpoint requests in the main phase", func() {
			m.Func(sim.HookCtx{
				Pos:  sim.HookPosPhaseEntered,
				Item: sim.PhaseMain,
			})

			rsp, err := http.Post(server.URL+"/api/checkpoint", "", nil)
			Expect(err).NotTo(HaveOccurred())
			rsp.Body.Close()

			Expect(rsp.StatusCode).To(Equal(http.StatusConflict))
			Expect(m.IsCheckpointDue()).To(BeFalse())
		})

		It("should report the last checkpoint", func() {
			m.Func(sim.HookCtx{
				Pos: checkpoint.HookPosCheckpointWritten,
				Item: &checkpoint.Record{
					Slot:          1,
					Bytes:         128,
					SimulatedTime: 80,
				},
			})
			m.CheckpointCompleted(1)

			rsp, err := http.Get(server.URL + "/api/checkpoint")
			Expect(err).NotTo(HaveOccurred())
			defer rsp.Body.Close()

			var status CheckpointStatus
			Expect(json.NewDecoder(rsp.Body).Decode(&status)).To(Succeed())
			Expect(status.Count).To(Equal(1))
			Expect(status.LastSlot).To(Equal(1))
			Expect(status.SimulatedTime).To(Equal(int64(80)))
			Expect(status.Bytes).To(Equal(int64(128)))
			Expect(status.Requested).To(BeFalse())
		})

		It("should report resource usage", func() {
			rsp, err := http.Get(server.URL + "/api/resource")
			Expect(err).NotTo(HaveOccurred())
			defer rsp.Body.Close()

			var res resourceRsp
			Expect(json.NewDecoder(rsp.Body).Decode(&res)).To(Succeed())
			Expect(res.MemorySize).To(BeNumerically(">", 0))
		})
	})
})
