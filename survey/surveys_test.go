package survey_test

import (
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/hostsim/sim"
	"github.com/sarchlab/hostsim/survey"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Surveys", func() {
	var (
		mockCtrl *gomock.Controller
		surveys  *survey.Surveys
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())

		var err error
		surveys, err = survey.New([]int64{10, 5, 5}, []string{"nInfect", "nHost"})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should sort and de-duplicate steps", func() {
		Expect(surveys.FinalStep()).To(Equal(int64(10)))
		Expect(surveys.CurrentStep()).To(Equal(sim.OutputStepNever))

		surveys.Advance()
		Expect(surveys.CurrentStep()).To(Equal(int64(5)))

		surveys.Advance()
		Expect(surveys.CurrentStep()).To(Equal(int64(10)))

		surveys.Advance()
		Expect(surveys.CurrentStep()).To(Equal(sim.OutputStepNever))
	})

	It("should reject bad input", func() {
		_, err := survey.New(nil, nil)
		Expect(err).To(HaveOccurred())

		_, err = survey.New([]int64{0}, nil)
		Expect(err).To(HaveOccurred())

		_, err = survey.New([]int64{1}, []string{"nBogus"})
		Expect(err).To(MatchError(ContainSubstring("nBogus")))
	})

	It("should discard the values reported before the first survey", func() {
		surveys.Report("nHost", 99)
		surveys.Advance()

		Expect(surveys.Results()).To(BeEmpty())
	})

	It("should close one row per measure in output id order", func() {
		surveys.Advance()
		surveys.Report("nHost", 100)
		surveys.Report("nInfect", 7)
		surveys.Report("nInfect", 1)
		surveys.Report("sumAge", 5000)
		surveys.Advance()

		Expect(surveys.Results()).To(Equal([]survey.Entry{
			{Survey: 1, OutputStep: 5, Measure: "nHost", OutID: 0, Value: 100},
			{Survey: 1, OutputStep: 5, Measure: "nInfect", OutID: 1, Value: 8},
		}))
	})

	It("should not need a recorder to write the summary", func() {
		surveys.Advance()
		surveys.Advance()

		Expect(surveys.WriteSummary()).To(Succeed())
		Expect(surveys.Results()).To(HaveLen(2))
	})

	It("should write the summary to the recorder", func() {
		recorder := NewMockDataRecorder(mockCtrl)
		surveys.WithRecorder(recorder, func() string { return "run" })

		surveys.Advance()
		surveys.Report("nHost", 3)
		surveys.Advance()

		gomock.InOrder(
			recorder.EXPECT().CreateTable(survey.TableName, survey.Entry{}),
			recorder.EXPECT().InsertData(survey.TableName, survey.Entry{
				RunID: "run", Survey: 1, OutputStep: 5,
				Measure: "nHost", OutID: 0, Value: 3,
			}),
			recorder.EXPECT().InsertData(survey.TableName, survey.Entry{
				RunID: "run", Survey: 1, OutputStep: 5,
				Measure: "nInfect", OutID: 1, Value: 0,
			}),
			recorder.EXPECT().Flush(),
		)

		Expect(surveys.WriteSummary()).To(Succeed())
	})
})

var _ = Describe("Measures", func() {
	It("should list every measure by output id", func() {
		names := survey.AllMeasureNames()

		Expect(names[0]).To(Equal("nHost"))
		Expect(names[len(names)-1]).To(Equal("sumAge"))
	})
})
