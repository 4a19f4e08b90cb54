package pricing

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRegistry(t *testing.T) {
	Convey("model registry", t, func() {
		r := NewRegistry()

		Convey("lists the built-in models", func() {
			models := r.ListAvailable()
			So(models, ShouldHaveLength, 3)
			So(models[0].ID, ShouldEqual, Claude35Sonnet)
			for _, m := range models {
				So(m.Provider, ShouldEqual, "anthropic")
				So(m.Capabilities.ContextWindow, ShouldEqual, 200_000)
			}
		})

		Convey("gets a model by id", func() {
			m, ok := r.Get(Claude3Haiku)
			So(ok, ShouldBeTrue)
			So(m.Name, ShouldEqual, "Claude 3 Haiku")

			_, ok = r.Get("invalid-model")
			So(ok, ShouldBeFalse)
		})

		Convey("filters by capability", func() {
			So(r.WithCapability(CapabilityVision), ShouldHaveLength, 3)
			So(r.WithCapability(CapabilityLargeContext), ShouldHaveLength, 3)

			fc := r.WithCapability(CapabilityFunctionCalling)
			So(fc, ShouldHaveLength, 2)
			for _, m := range fc {
				So(m.ID, ShouldNotEqual, Claude3Haiku)
			}

			low := r.WithCapability(CapabilityLowCost)
			So(low, ShouldHaveLength, 1)
			So(low[0].ID, ShouldEqual, Claude3Haiku)
		})

		Convey("hides unavailable models", func() {
			r.MarkUnavailable(Claude3Opus)
			r.MarkUnavailable("unknown")
			So(r.ListAvailable(), ShouldHaveLength, 2)

			m, ok := r.Get(Claude3Opus)
			So(ok, ShouldBeTrue)
			So(m.Available, ShouldBeFalse)
		})

		Convey("registers new models", func() {
			r.Register(ModelInfo{ID: "custom.model-v1:0", Name: "Custom", Available: true})
			So(r.ListAvailable(), ShouldHaveLength, 4)
		})
	})
}

func TestRecommendForTask(t *testing.T) {
	Convey("task recommendation", t, func() {
		cases := map[TaskType]string{
			TaskCodeGeneration:    Claude35Sonnet,
			TaskAnalysis:          Claude35Sonnet,
			TaskTranslation:       Claude35Sonnet,
			TaskCreativeWriting:   Claude3Opus,
			TaskReasoning:         Claude3Opus,
			TaskQuestionAnswering: Claude3Haiku,
			TaskSummarization:     Claude3Haiku,
		}
		for task, want := range cases {
			So(RecommendForTask(task), ShouldEqual, want)
		}
	})
}
