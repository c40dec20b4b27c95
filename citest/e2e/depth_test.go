package e2e_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/reasoner/citest/testutil"
	"github.com/opencode-ai/reasoner/pkg/types"
)

var _ = Describe("Depth Limit", Ordered, func() {
	var (
		shallow *testutil.TestServer
		sc      *testutil.TestClient
	)

	BeforeAll(func() {
		var err error
		shallow, err = testutil.StartTestServer(
			testutil.WithLocalURL(mockLLM.URL()),
			testutil.WithEngineConfig(&types.EngineConfig{MaxDepth: 1}),
		)
		Expect(err).NotTo(HaveOccurred())
		sc = shallow.Client()
		_, err = sc.LoadModel(ctx, testutil.ModelFile)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		if shallow != nil {
			shallow.Stop()
		}
	})

	It("should execute a complex root task without splitting", func() {
		session, err := sc.CreateSession(ctx, "")
		Expect(err).NotTo(HaveOccurred())

		mockLLM.Reset()
		events, err := sc.Run(ctx, session.ID, testutil.RunRequest{
			Prompt: "Build a todo API",
			Mode:   "decompose",
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(cardsFor(events, "[>>] D1 WHI")).To(Equal([]string{
			"W: Ship a todo REST API",
			"H: Design the schema then write the handlers",
			"I: YES",
		}))
		Expect(testutil.Cards(events)).NotTo(HaveKey("[>>] D1 Split Plan"))
		Expect(testutil.Transcript(events)).To(Equal("Todo API in one pass."))
		Expect(mockLLM.RequestsMatching("single step task")).To(BeEmpty())
		Expect(mockLLM.RequestsMatching("Return a JSON list of sub-tasks")).To(BeEmpty())
	})
})
