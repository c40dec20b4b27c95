package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/reasoner/internal/engine"
	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/pkg/types"
)

func decompose(prompt string) *types.RunRequest {
	return &types.RunRequest{Prompt: prompt, Mode: types.ModeDecompose}
}

// between returns the text after open up to the next close.
func between(s, open, close string) string {
	i := strings.Index(s, open)
	if i < 0 {
		return ""
	}
	s = s[i+len(open):]
	if j := strings.Index(s, close); j >= 0 {
		return s[:j]
	}
	return s
}

// alwaysSplit scripts a model that calls every task complex and splits it in
// two. Leaves answer "done(<task>)".
func alwaysSplit(gw *fakeGateway) {
	gw.On(onRoute, "YES").
		OnFunc(onGoal, func(p string) string { return "goal-" + between(p, "Input: ", "\n") }).
		On(onSteps, "split it").
		On(onSingle, "NO").
		OnFunc(onSplit, func(p string) string {
			task := between(p, "Goal: goal-", "\n")
			return fmt.Sprintf(`["%s.1", "%s.2"]`, task, task)
		}).
		OnFunc(onLeaf, func(p string) string { return "done(" + between(p, "Request: ", "\n") + ")" })
}

// leavesOf lists the leaves of a fully split tree in execution order.
func leavesOf(task string, depth, maxDepth int) []string {
	if depth == maxDepth {
		return []string{task}
	}
	return append(leavesOf(task+".1", depth+1, maxDepth), leavesOf(task+".2", depth+1, maxDepth)...)
}

var _ = Describe("Decomposition mode", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	It("answers a simple question as a single leaf", func() {
		h.gw.On(onRoute, "NO").On(onLeaf, "4")

		rec, err := h.run(decompose("What is 2+2?"))
		Expect(err).NotTo(HaveOccurred())
		expectWellFormed(rec)

		target := "[>>] D1 WHI"
		Expect(rec.Events()).To(Equal([]types.Event{
			types.NewEvent(types.EventStatus, "Initializing Decomposition Protocol..."),
			types.NewEvent(types.EventStatus, "[>>] D1 WHI Analysis..."),
			types.NewCard("W: Chat with user", target),
			types.NewCard("H: Reply naturally", target),
			types.NewCard("I: YES", target),
			types.NewEvent(types.EventStatus, "[>>] D1 Status: CLEAR. Executing..."),
			types.NewEvent(types.EventToken, "4"),
			types.NewEvent(types.EventDone, engine.DoneMessage),
		}))

		Expect(h.gw.CallsMatching(onGoal)).To(BeEmpty())
		Expect(h.history()).To(Equal([]types.Turn{
			{Role: types.RoleUser, Content: "What is 2+2?"},
			{Role: types.RoleAssistant, Content: "4"},
		}))
	})

	It("uses the instruction template with per-step limits", func() {
		h.gw.On(onRoute, "YES").On(onGoal, "goal").On(onSteps, "steps").On(onSingle, "YES").On(onLeaf, "ok")
		_, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())

		route := h.gw.CallsMatching(onRoute)[0]
		Expect(route.MaxTokens).To(Equal(10))
		Expect(route.Stop).To(Equal([]string{"\n"}))
		Expect(route.Temperature).To(Equal(0.1))

		goal := h.gw.CallsMatching(onGoal)[0]
		Expect(goal.MaxTokens).To(Equal(64))
		Expect(goal.Stop).To(Equal([]string{"\n\n", "###"}))

		Expect(h.gw.CallsMatching(onSteps)[0].MaxTokens).To(Equal(128))
		Expect(h.gw.CallsMatching(onSingle)[0].MaxTokens).To(Equal(10))

		leaf := h.gw.CallsMatching(onLeaf)[0]
		Expect(leaf.MaxTokens).To(Equal(2048))
		Expect(leaf.Stop).To(Equal([]string{"###"}))
		Expect(leaf.Temperature).To(Equal(0.7))

		for _, c := range h.gw.Calls() {
			Expect(c.Template).To(Equal(provider.TemplateInstruction))
		}
	})

	It("runs sub-tasks in order and aggregates the parent last", func() {
		h.gw.On(onRoute, "YES").
			On("Input: Design schema\nQuestion", "NO").
			On("Input: Write handlers\nQuestion", "NO").
			On(onGoal, "Build the API").
			On(onSteps, "1. schema 2. handlers").
			On(onSingle, "NO").
			On(onSplit, `Sure: ["Design schema", "Write handlers"]`).
			On("Request: Design schema\n", "schema done").
			On("Request: Write handlers\n", "handlers done")

		rec, err := h.run(decompose("Build a REST API"))
		Expect(err).NotTo(HaveOccurred())
		expectWellFormed(rec)

		plan, ok := rec.Card("[>>] D1 Split Plan")
		Expect(ok).To(BeTrue())
		Expect(plan).To(Equal("Design schema\nWrite handlers"))

		cards := rec.Of(types.EventCard)
		last := cards[len(cards)-1]
		Expect(last.Content).To(Equal("Sub-tasks completed for: Build a REST API"))
		Expect(last.TargetString()).To(Equal("[>>] D1 Context"))

		events := rec.Events()
		schema := indexOf(events, types.EventStatus, "[>>>>] D2 WHI Analysis...")
		aggregate := indexOf(events, types.EventStatus, "[>>] D1 Context Aggregation...")
		Expect(schema).To(BeNumerically(">", 0))
		Expect(aggregate).To(BeNumerically(">", schema))

		Expect(rec.Text()).To(Equal("schema donehandlers done"))
		Expect(h.gw.PromptFor("Request: Write handlers\n")).To(ContainSubstring("\nUser: Design schema\nAI: schema done\n"))
		Expect(h.history()[1].Content).To(Equal("schema donehandlers done"))
	})

	DescribeTable("bounds the recursion by the maximum depth",
		func(maxDepth int) {
			cfg := engine.DefaultConfig()
			cfg.MaxDepth = maxDepth
			h = newHarness(engine.WithConfig(cfg))
			alwaysSplit(h.gw)

			rec, err := h.run(decompose("T"))
			Expect(err).NotTo(HaveOccurred())
			expectWellFormed(rec)

			splits := 1<<(maxDepth-1) - 1
			want := leavesOf("T", 1, maxDepth)
			Expect(want).To(HaveLen(1 << (maxDepth - 1)))

			Expect(h.gw.CallsMatching(onSplit)).To(HaveLen(splits))
			leaves := h.gw.CallsMatching(onLeaf)
			Expect(leaves).To(HaveLen(len(want)))
			for i, leaf := range leaves {
				Expect(between(leaf.Prompt, "Request: ", "\n")).To(Equal(want[i]))
			}

			var contexts []string
			for _, ev := range rec.Of(types.EventCard) {
				if strings.HasSuffix(ev.TargetString(), " Context") {
					contexts = append(contexts, ev.Content)
				}
				Expect(strings.Count(ev.TargetString(), ">>")).To(BeNumerically("<=", maxDepth))
			}
			Expect(contexts).To(HaveLen(splits))
			if splits > 0 {
				Expect(contexts[len(contexts)-1]).To(Equal("Sub-tasks completed for: T"))
			}

			var transcript strings.Builder
			for _, leaf := range want {
				transcript.WriteString("done(" + leaf + ")")
			}
			Expect(rec.Text()).To(Equal(transcript.String()))
		},
		Entry("depth 1", 1),
		Entry("depth 2", 2),
		Entry("depth 3", 3),
	)

	It("aggregates a sub-task after all of its descendants", func() {
		alwaysSplit(h.gw)
		rec, err := h.run(decompose("T"))
		Expect(err).NotTo(HaveOccurred())

		var order []string
		for _, ev := range rec.Events() {
			switch {
			case ev.Type == types.EventCard && strings.HasSuffix(ev.TargetString(), " Context"):
				order = append(order, "ctx:"+strings.TrimPrefix(ev.Content, "Sub-tasks completed for: "))
			case ev.Type == types.EventToken:
				order = append(order, ev.Content)
			}
		}
		Expect(order).To(Equal([]string{
			"done(T.1.1)", "done(T.1.2)", "ctx:T.1",
			"done(T.2.1)", "done(T.2.2)", "ctx:T.2",
			"ctx:T",
		}))
	})

	DescribeTable("treats an unreadable split as a leaf",
		func(answer string) {
			h.gw.On(onRoute, "YES").On(onGoal, "g").On(onSteps, "s").On(onSingle, "NO").
				On(onSplit, answer).On(onLeaf, "leaf")

			rec, err := h.run(decompose("root"))
			Expect(err).NotTo(HaveOccurred())
			_, ok := rec.Card("[>>] D1 Split Plan")
			Expect(ok).To(BeFalse())
			Expect(h.gw.CallsMatching(onLeaf)).To(HaveLen(1))
			Expect(indexOf(rec.Events(), types.EventStatus, "[>>] D1 Status: COMPLEX. Splitting...")).To(BeNumerically(">", 0))
			Expect(rec.Text()).To(Equal("leaf"))
		},
		Entry("prose", "not json"),
		Entry("truncated list", `["a", "b"`),
		Entry("empty list", `[]`),
		Entry("list of objects", `[{"task": "a"}]`),
	)

	It("treats a failed routing call as complex", func() {
		h.gw.Fail(onRoute, errors.New("timeout")).On(onGoal, "").On(onSteps, "").On(onSingle, "YES").On(onLeaf, "x")
		rec, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())

		verdict, ok := rec.Card("[>>] D1 WHI")
		Expect(ok).To(BeTrue())
		Expect(verdict).To(Equal("I: YES"))
		cards := rec.Of(types.EventCard)
		Expect(cards[0].Content).To(Equal("W: Execute task"))
		Expect(cards[1].Content).To(Equal("H: Execute immediately"))
	})

	It("replaces an apologetic goal with the fallback", func() {
		h.gw.On(onRoute, "YES").On(onGoal, "I'm sorry, I can't").On(onSteps, "`do it`").On(onSingle, "YES")
		rec, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())
		cards := rec.Of(types.EventCard)
		Expect(cards[0].Content).To(Equal("W: Execute task"))
		Expect(cards[1].Content).To(Equal("H: do it"))
	})

	It("does not ask for a single-step verdict at the depth bound", func() {
		cfg := engine.DefaultConfig()
		cfg.MaxDepth = 1
		h = newHarness(engine.WithConfig(cfg))
		h.gw.On(onRoute, "YES").On(onGoal, "g").On(onSteps, "s").On(onSingle, "NO")

		_, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())
		Expect(h.gw.CallsMatching(onSingle)).To(BeEmpty())
		Expect(h.gw.CallsMatching(onSplit)).To(BeEmpty())
	})

	It("produces the same events for the same answers", func() {
		alwaysSplit(h.gw)
		first, err := h.run(decompose("T"))
		Expect(err).NotTo(HaveOccurred())

		other, err := h.store.Create(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		second, err := h.run(&types.RunRequest{Prompt: "T", Mode: types.ModeDecompose, SessionID: other.ID})
		Expect(err).NotTo(HaveOccurred())

		Expect(second.Events()).To(Equal(first.Events()))
	})

	It("seeds the context with the last six turns", func() {
		ctx := context.Background()
		for i := 1; i <= 4; i++ {
			Expect(h.store.Append(ctx, h.sess.ID,
				types.Turn{Role: types.RoleUser, Content: fmt.Sprintf("q%d", i)},
				types.Turn{Role: types.RoleAssistant, Content: fmt.Sprintf("a%d", i)},
			)).To(Succeed())
		}
		h.gw.On(onRoute, "YES").On(onGoal, "g").On(onSteps, "s").On(onSingle, "YES")

		_, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())

		prompt := h.gw.PromptFor(onGoal)
		Expect(prompt).To(ContainSubstring("Context: Prior Chat History:\nUser: q2\nAI: a2\nUser: q3\n"))
		Expect(prompt).To(ContainSubstring("AI: a4\n"))
		Expect(prompt).NotTo(ContainSubstring("q1"))
	})

	It("truncates the running context to the configured limit", func() {
		cfg := engine.DefaultConfig()
		cfg.ContextLimit = 16
		h = newHarness(engine.WithConfig(cfg))
		h.gw.On(onRoute, "YES").
			On("Input: first\nQuestion", "NO").
			On("Input: second\nQuestion", "NO").
			On(onGoal, "g").On(onSteps, "s").On(onSingle, "NO").
			On(onSplit, `["first", "second"]`).
			On("Request: first\n", strings.Repeat("long answer ", 10))

		_, err := h.run(decompose("root"))
		Expect(err).NotTo(HaveOccurred())

		seen := between(h.gw.PromptFor("Request: second\n"), "Context: ", "\nRequest:")
		Expect(seen).To(HavePrefix(engine.TruncationMarker))
		Expect([]rune(strings.TrimPrefix(seen, engine.TruncationMarker))).To(HaveLen(16))
	})

	It("reports a leaf failure inline and carries on", func() {
		h.gw.On(onRoute, "NO").On(onLeaf, "half")
		h.gw.streamErr = errors.New("eof")

		rec, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Text()).To(Equal("half\n[Error: eof]"))
		Expect(rec.Events()[len(rec.Events())-1].Type).To(Equal(types.EventDone))
	})

	It("persists the answer as it was streamed, error token included", func() {
		h.gw.On(onRoute, "NO").On(onLeaf, "half")
		h.gw.streamErr = errors.New("eof")

		rec, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())

		history := h.history()
		Expect(history).To(HaveLen(2))
		Expect(history[1].Content).To(Equal(rec.Text()))
		Expect(history[1].Content).To(HaveSuffix("\n[Error: eof]"))
	})

	It("stops on cancellation without a terminal event", func() {
		h.gw.On(onRoute, "NO").On(onLeaf, "never ending story")
		h.gw.hang = true

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		rec, done := h.start(ctx, decompose("task"))

		Eventually(func() []types.Event { return rec.Of(types.EventToken) }).ShouldNot(BeEmpty())
		cancel()

		var err error
		Eventually(done).Should(Receive(&err))
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		for _, ev := range rec.Events() {
			Expect(ev.Type.Terminal()).To(BeFalse())
		}
		Expect(h.history()).To(BeEmpty())
	})

	It("does not start when the context is already cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rec, err := h.runCtx(ctx, decompose("task"))
		Expect(err).To(MatchError(context.Canceled))
		Expect(rec.Of(types.EventDone)).To(BeEmpty())
		Expect(h.gw.Calls()).To(BeEmpty())
	})

	It("rejects an unknown mode", func() {
		rec, err := h.run(&types.RunRequest{Prompt: "x", Mode: "sideways"})
		Expect(err).To(HaveOccurred())
		Expect(rec.Of(types.EventError)).To(HaveLen(1))
	})

	It("publishes the run lifecycle on the bus", func() {
		bus := event.NewBus()
		defer bus.Close()

		var started, finished atomic.Int32
		bus.Subscribe(event.RunStarted, func(event.Event) { started.Add(1) })
		bus.Subscribe(event.RunFinished, func(event.Event) { finished.Add(1) })

		h = newHarness(engine.WithBus(bus))
		h.gw.On(onRoute, "NO").On(onLeaf, "ok")
		_, err := h.run(decompose("task"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(started.Load).Should(BeEquivalentTo(1))
		Eventually(finished.Load).Should(BeEquivalentTo(1))
	})
})
