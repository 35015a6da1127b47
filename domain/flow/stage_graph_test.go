package flow_test

import (
	"leadflow/bizerror"
	"leadflow/domain/flow"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StageGraph", func() {
	var graph *flow.StageGraph

	BeforeEach(func() {
		//             new        contacted    qualified    lost
		// new          -          V            X            V
		// contacted    V          -            V            V
		// qualified    X          X            -            X (terminal)
		// lost         X          X            X            - (terminal)
		graph = flow.NewStageGraph([]flow.Stage{
			{UID: "new", Name: "New", Order: 1, IsActive: true,
				AllowedNextStages: flow.StageUIDs{"contacted", "lost"}},
			{UID: "contacted", Name: "Contacted", Order: 2, IsActive: true,
				AllowedNextStages: flow.StageUIDs{"new", "qualified", "lost"}},
			{UID: "qualified", Name: "Qualified", Order: 3, IsActive: true},
			{UID: "lost", Name: "Lost", Order: 4, IsActive: true},
			{UID: "parked", Name: "Parked", Order: 0, IsActive: false},
		})
	})

	Describe("InitialStage", func() {
		It("should resolve the explicit stage when given", func() {
			stage, err := graph.InitialStage("contacted")
			Expect(err).To(BeNil())
			Expect(stage.UID).To(Equal("contacted"))
		})

		It("should reject an unknown explicit stage", func() {
			_, err := graph.InitialStage("nosuch")
			Expect(err).To(Equal(bizerror.ErrUnknownStage))
		})

		It("should reject an inactive explicit stage", func() {
			_, err := graph.InitialStage("parked")
			Expect(err).To(Equal(bizerror.ErrStageInactive))
		})

		It("should fall back to the lowest ordered active stage", func() {
			stage, err := graph.InitialStage("")
			Expect(err).To(BeNil())
			Expect(stage.UID).To(Equal("new"))
		})

		It("should fail when no active stage exists", func() {
			empty := flow.NewStageGraph([]flow.Stage{{UID: "parked", IsActive: false}})
			_, err := empty.InitialStage("")
			Expect(err).To(Equal(bizerror.ErrNoInitialStage))
		})
	})

	Describe("TransitionAllowed", func() {
		It("should follow the allowed-next sets only", func() {
			Expect(graph.TransitionAllowed("new", "contacted")).To(BeTrue())
			Expect(graph.TransitionAllowed("new", "qualified")).To(BeFalse())
			Expect(graph.TransitionAllowed("contacted", "new")).To(BeTrue())
			Expect(graph.TransitionAllowed("qualified", "new")).To(BeFalse())
		})

		It("should reject edges to or from unknown stages", func() {
			Expect(graph.TransitionAllowed("new", "nosuch")).To(BeFalse())
			Expect(graph.TransitionAllowed("nosuch", "new")).To(BeFalse())
		})
	})

	Describe("IsTerminal", func() {
		It("should report stages without outgoing edges as terminal", func() {
			Expect(graph.IsTerminal("qualified")).To(BeTrue())
			Expect(graph.IsTerminal("lost")).To(BeTrue())
			Expect(graph.IsTerminal("new")).To(BeFalse())
		})
	})

	Describe("ActiveStagesOrdered", func() {
		It("should order active stages by (order, uid) and drop inactive ones", func() {
			ordered := graph.ActiveStagesOrdered()
			uids := make([]string, 0, len(ordered))
			for _, s := range ordered {
				uids = append(uids, s.UID)
			}
			Expect(uids).To(Equal([]string{"new", "contacted", "qualified", "lost"}))
		})

		It("should break order ties by uid", func() {
			tied := flow.NewStageGraph([]flow.Stage{
				{UID: "b", Order: 1, IsActive: true},
				{UID: "a", Order: 1, IsActive: true},
			})
			ordered := tied.ActiveStagesOrdered()
			Expect(ordered[0].UID).To(Equal("a"))
			Expect(ordered[1].UID).To(Equal("b"))
		})
	})
})
