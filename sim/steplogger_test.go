package sim

import (
	"bytes"
	"log"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("StepLogger", func() {
	var (
		buf    *bytes.Buffer
		hooks  *HookableBase
		clock  *Clock
		logger *StepLogger
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		hooks = NewHookableBase()
		clock = NewClock()
		clock.StartInitialization(3, 10)
		logger = NewStepLogger(log.New(buf, "", 0))
	})

	It("should log steps and phases", func() {
		hooks.AcceptHook(logger)
		clock.Advance()

		hooks.InvokeHook(HookCtx{Pos: HookPosPhaseEntered, Item: PhaseWarmingUp})
		hooks.InvokeHook(HookCtx{
			Pos:    HookPosAfterStep,
			Item:   clock,
			Detail: PhaseWarmingUp,
		})

		Expect(buf.String()).To(Equal(
			"entering phase warming-up\n" +
				"1/10, output step -1, phase end 3, warming-up\n"))
	})

	It("should skip steps when only phase changes are wanted", func() {
		hooks.AcceptHook(logger.PhaseChangesOnly())

		hooks.InvokeHook(HookCtx{Pos: HookPosAfterStep, Item: clock})

		Expect(buf.Len()).To(BeZero())
	})
})
