package e2e_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/reasoner/citest/testutil"
	"github.com/opencode-ai/reasoner/internal/engine"
	"github.com/opencode-ai/reasoner/pkg/types"
)

func cardsFor(events []types.Event, target string) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == types.EventCard && ev.TargetString() == target {
			out = append(out, ev.Content)
		}
	}
	return out
}

var _ = Describe("Runs", func() {
	var sessionID string

	BeforeEach(func() {
		session, err := client.CreateSession(ctx, "")
		Expect(err).NotTo(HaveOccurred())
		sessionID = session.ID
	})

	AfterEach(func() {
		client.DeleteSession(ctx, sessionID)
	})

	Describe("Decomposition", func() {
		It("should answer a simple task directly", func() {
			events, err := client.Run(ctx, sessionID, testutil.RunRequest{
				Prompt: "What is 2+2?",
				Mode:   "decompose",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(testutil.Transcript(events)).To(Equal("4"))
			Expect(cardsFor(events, "[>>] D1 WHI")).To(Equal([]string{
				"W: Chat with user", "H: Reply naturally", "I: YES",
			}))
			Expect(testutil.Last(events).Type).To(Equal(types.EventDone))
			Expect(testutil.Last(events).Content).To(Equal(engine.DoneMessage))
		})

		It("should split a complex task and run the sub-tasks in order", func() {
			events, err := client.Run(ctx, sessionID, testutil.RunRequest{
				Prompt: "Build a todo API",
				Mode:   "decompose",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(cardsFor(events, "[>>] D1 WHI")).To(Equal([]string{
				"W: Ship a todo REST API",
				"H: Design the schema then write the handlers",
				"I: NO",
			}))
			Expect(cardsFor(events, "[>>] D1 Split Plan")).To(Equal([]string{
				"Design the schema\nWrite the handlers",
			}))
			Expect(cardsFor(events, "[>>>>] D2 WHI")).To(ContainElement("W: Complete the sub-task"))
			Expect(cardsFor(events, "[>>] D1 Context")).To(Equal([]string{
				"Sub-tasks completed for: Build a todo API",
			}))
			Expect(testutil.Transcript(events)).To(Equal(
				"Schema: todos(id, title, done). Handlers: GET and POST /todos."))
			Expect(testutil.Last(events).Type).To(Equal(types.EventDone))

			history, err := client.History(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(2))
			Expect(history[0]).To(Equal(types.Turn{Role: types.RoleUser, Content: "Build a todo API"}))
			Expect(history[1].Content).To(Equal(testutil.Transcript(events)))
		})

		It("should feed the first sub-task's answer into the second", func() {
			mockLLM.Reset()
			_, err := client.Run(ctx, sessionID, testutil.RunRequest{
				Prompt: "Build a todo API",
				Mode:   "decompose",
			})
			Expect(err).NotTo(HaveOccurred())

			leaves := mockLLM.RequestsMatching("Request: Write the handlers")
			Expect(leaves).To(HaveLen(1))
			Expect(leaves[0].Prompt).To(ContainSubstring("Schema: todos(id, title, done)."))
		})
	})

	Describe("Pipeline", func() {
		It("should run the selected stages before answering", func() {
			events, err := client.Run(ctx, sessionID, testutil.RunRequest{
				Prompt:   "What is 2+2?",
				Mode:     "pipeline",
				Settings: types.Settings{AutoMode: true},
			})
			Expect(err).NotTo(HaveOccurred())

			cards := testutil.Cards(events)
			Expect(cards).To(HaveKeyWithValue(engine.TargetFacts, "Two plus two is integer addition."))
			Expect(cards).To(HaveKeyWithValue(engine.TargetBlueprint, "Add the numbers."))
			Expect(cards).NotTo(HaveKey(engine.TargetVerdict))
			Expect(testutil.Transcript(events)).To(Equal("The answer is 4."))
			Expect(testutil.Last(events).Content).To(Equal(engine.DoneMessage))
		})

		It("should skip unrequested stages outside auto mode", func() {
			events, err := client.Run(ctx, sessionID, testutil.RunRequest{
				Prompt: "What is 2+2?",
			})
			Expect(err).NotTo(HaveOccurred())

			cards := testutil.Cards(events)
			Expect(cards).NotTo(HaveKey(engine.TargetFacts))
			Expect(cards).To(HaveKey(engine.TargetBlueprint))
		})

		It("should recall earlier turns of the session", func() {
			_, err := client.Run(ctx, sessionID, testutil.RunRequest{Prompt: "What is 2+2?"})
			Expect(err).NotTo(HaveOccurred())

			events, err := client.Run(ctx, sessionID, testutil.RunRequest{Prompt: "What did I ask before?"})
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.Transcript(events)).To(Equal("You asked what 2+2 is."))

			history, err := client.History(ctx, sessionID)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(4))
		})
	})

	Describe("Errors", func() {
		It("should report an unknown session in the stream", func() {
			events, err := client.Run(ctx, "missing", testutil.RunRequest{Prompt: "hi"})
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.Last(events).Type).To(Equal(types.EventError))
			Expect(testutil.Last(events).Content).To(Equal("session not found: missing"))
		})

		It("should report an empty prompt in the stream", func() {
			events, err := client.Run(ctx, sessionID, testutil.RunRequest{Prompt: "   "})
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.Last(events).Type).To(Equal(types.EventError))
			Expect(testutil.Last(events).Content).To(Equal("prompt is required"))
		})

		It("should reject an unknown mode", func() {
			_, err := client.Run(ctx, sessionID, testutil.RunRequest{Prompt: "hi", Mode: "sideways"})
			Expect(err).To(MatchError(ContainSubstring("400")))
		})
	})

	Describe("Event Feed", func() {
		var sse *testutil.SSEClient

		BeforeEach(func() {
			sse = testServer.SSEClient()
			Expect(sse.Connect(ctx, "/event?sessionID="+sessionID)).To(Succeed())
			_, err := sse.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			sse.Close()
		})

		It("should announce the run on the session's feed", func() {
			_, err := client.Run(ctx, sessionID, testutil.RunRequest{Prompt: "What is 2+2?", Mode: "decompose"})
			Expect(err).NotTo(HaveOccurred())

			started, err := sse.WaitForEvent("run.started", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(started.SessionID()).To(Equal(sessionID))
			Expect(started.Get("data.mode").String()).To(Equal("decompose"))

			finished, err := sse.WaitForEvent("run.finished", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(finished.Get("data.runID").String()).To(Equal(started.Get("data.runID").String()))
			Expect(finished.Get("data.error").Exists()).To(BeFalse())
		})

		It("should mirror every stream event of the run", func() {
			events, err := client.Run(ctx, sessionID, testutil.RunRequest{Prompt: "What is 2+2?"})
			Expect(err).NotTo(HaveOccurred())

			finished, err := sse.WaitForEvent("run.finished", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(finished.Get("data.events").Int()).To(BeEquivalentTo(len(events)))
			Eventually(func() int { return sse.Count("run.event") }, 5*time.Second).Should(Equal(len(events)))
		})

		It("should keep an idle feed alive", func() {
			Expect(sse.WaitForHeartbeat(5 * time.Second)).To(Succeed())
			Expect(sse.Count("run.event")).To(BeZero())
		})
	})

	Describe("Flat Stream Route", func() {
		It("should stream a run addressed by body id", func() {
			stream, err := client.PostStreaming(ctx, "/stream", map[string]any{
				"prompt": "What is 2+2?",
				"id":     sessionID,
				"mode":   "decompose",
			})
			Expect(err).NotTo(HaveOccurred())
			defer stream.Close()
			Expect(stream.StatusCode).To(Equal(http.StatusOK))
			Expect(stream.Headers.Get("Content-Type")).To(Equal("application/x-ndjson"))

			events, err := stream.ReadAll()
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.Transcript(events)).To(Equal("4"))
		})
	})
})
