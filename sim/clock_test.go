package sim

import (
	"bufio"
	"bytes"
	"math"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Clock", func() {
	var clock *Clock

	BeforeEach(func() {
		clock = NewClock()
	})

	It("should start before the main phase", func() {
		Expect(clock.SimulatedTime()).To(Equal(int64(0)))
		Expect(clock.OutputStep()).To(Equal(OutputStepNever))
		Expect(clock.InMainPhase()).To(BeFalse())
	})

	It("should not count output steps before the main phase", func() {
		clock.StartInitialization(10, 20)

		clock.Advance()
		clock.Advance()

		Expect(clock.SimulatedTime()).To(Equal(int64(2)))
		Expect(clock.OutputStep()).To(Equal(OutputStepNever))
	})

	It("should count output steps from zero in the main phase", func() {
		clock.StartInitialization(2, 5)
		clock.Advance()
		clock.Advance()

		clock.EnterMain()
		Expect(clock.OutputStep()).To(Equal(int64(0)))
		Expect(clock.PhaseEnd()).To(Equal(int64(5)))

		clock.Advance()
		Expect(clock.SimulatedTime()).To(Equal(int64(3)))
		Expect(clock.OutputStep()).To(Equal(int64(1)))
	})

	It("should refuse to enter the main phase twice", func() {
		clock.StartInitialization(0, 5)
		clock.EnterMain()

		Expect(func() { clock.EnterMain() }).To(Panic())
	})

	It("should extend both bounds together", func() {
		clock.StartInitialization(100, 161)

		clock.ExtendBound(20)

		Expect(clock.PhaseEnd()).To(Equal(int64(120)))
		Expect(clock.TotalDuration()).To(Equal(int64(181)))
	})

	It("should panic on negative extension", func() {
		clock.StartInitialization(100, 161)

		Expect(func() { clock.ExtendBound(-1) }).To(Panic())
	})

	It("should panic on overflow", func() {
		clock.StartInitialization(10, math.MaxInt64-5)

		Expect(func() { clock.ExtendBound(10) }).To(Panic())
	})

	It("should move the phase end by one lifespan for warm-up", func() {
		clock.StartInitialization(100, 161)

		clock.EnterWarmUp(50)

		Expect(clock.PhaseEnd()).To(Equal(int64(150)))
		Expect(func() { clock.EnterWarmUp(50) }).To(Panic())
	})

	It("should clamp the progress fraction", func() {
		Expect(clock.ProgressFraction()).To(Equal(0.0))

		clock.StartInitialization(4, 8)
		clock.Advance()
		clock.Advance()

		Expect(clock.ProgressFraction()).To(Equal(0.25))
	})

	It("should restore what it wrote", func() {
		clock.StartInitialization(100, 161)
		for i := 0; i < 42; i++ {
			clock.Advance()
		}

		buf := new(bytes.Buffer)
		Expect(clock.WriteState(buf)).To(Succeed())
		Expect(buf.String()).To(Equal("42\n-1\n100\n161\n"))

		restored := NewClock()
		Expect(restored.ReadState(bufio.NewReader(buf))).To(Succeed())
		Expect(restored).To(Equal(clock))
	})

	It("should reject scalars that break the ordering", func() {
		r := bufio.NewReader(strings.NewReader("130\n-1\n120\n161\n"))

		Expect(NewClock().ReadState(r)).To(MatchError(
			ContainSubstring("inconsistent")))
	})
})

var _ = Describe("Phase", func() {
	It("should round trip names", func() {
		for _, p := range []Phase{
			PhaseInitializing, PhaseWarmingUp, PhaseMain, PhaseDone,
		} {
			parsed, err := ParsePhase(p.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed).To(Equal(p))
		}
	})

	It("should reject unknown names", func() {
		_, err := ParsePhase("cooldown")
		Expect(err).To(HaveOccurred())
	})
})
