package engine_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opencode-ai/reasoner/internal/engine"
	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/internal/session"
	"github.com/opencode-ai/reasoner/pkg/types"
)

var _ = Describe("Pipeline mode", func() {
	var h *harness

	BeforeEach(func() {
		h = newHarness()
	})

	pipeline := func(prompt string, settings types.Settings) *types.RunRequest {
		return &types.RunRequest{Prompt: prompt, Mode: types.ModePipeline, Settings: settings}
	}

	Describe("auto selection with facts and debate", func() {
		BeforeEach(func() {
			h.gw.On(onSelect, `Sure! {"facts":true,"debate":true}`).
				On(onFacts, " the API serves JSON ").
				On(onBlueprint, "1. routes 2. handlers").
				On(onSafe, "safe plan").
				On(onRisky, "risky plan").
				On(onVerdict, " pick the safe plan ").
				On(onExecute, "Here is your REST API")
		})

		It("runs facts, blueprint, debate and execution only", func() {
			rec, err := h.run(pipeline("Plan and build a REST API", types.Settings{AutoMode: true}))
			Expect(err).NotTo(HaveOccurred())
			expectWellFormed(rec)

			Expect(targets(rec)).To(Equal([]string{engine.TargetFacts, engine.TargetBlueprint, engine.TargetVerdict}))
			Expect(rec.Of(types.EventLog)[0].Content).To(Equal("Auto-Selected: facts, debate"))
			Expect(rec.Text()).To(Equal("Here is your REST API"))

			Expect(h.gw.CallsMatching(onDeep)).To(BeEmpty())
			Expect(h.gw.CallsMatching(onTopology)).To(BeEmpty())
			Expect(h.gw.CallsMatching(onSimulate)).To(BeEmpty())
			Expect(h.gw.CallsMatching(onAudit)).To(BeEmpty())
			Expect(h.gw.Calls()).To(HaveLen(7))

			last := rec.Events()[len(rec.Events())-1]
			Expect(last.Type).To(Equal(types.EventDone))
			Expect(last.Content).To(Equal(engine.DoneMessage))
		})

		It("feeds facts into the blueprint and the verdict into execution", func() {
			_, err := h.run(pipeline("Plan and build a REST API", types.Settings{AutoMode: true}))
			Expect(err).NotTo(HaveOccurred())

			Expect(h.gw.PromptFor(onBlueprint)).To(ContainSubstring("Facts: the API serves JSON"))
			Expect(h.gw.PromptFor(onVerdict)).To(ContainSubstring("A: safe plan\nB: risky plan"))
			Expect(h.gw.PromptFor(onExecute)).To(ContainSubstring("Plan: pick the safe plan\n"))
		})

		It("uses low temperatures for analysis stages and divergent ones for the debate", func() {
			_, err := h.run(pipeline("Plan and build a REST API", types.Settings{AutoMode: true}))
			Expect(err).NotTo(HaveOccurred())

			Expect(h.gw.CallsMatching(onSelect)[0].Temperature).To(Equal(0.1))
			Expect(h.gw.CallsMatching(onFacts)[0].Temperature).To(Equal(0.1))
			Expect(h.gw.CallsMatching(onBlueprint)[0].Temperature).To(Equal(0.3))
			Expect(h.gw.CallsMatching(onSafe)[0].Temperature).To(Equal(0.2))
			Expect(h.gw.CallsMatching(onRisky)[0].Temperature).To(Equal(0.8))
			Expect(h.gw.CallsMatching(onVerdict)[0].Temperature).To(Equal(0.1))
			Expect(h.gw.CallsMatching(onExecute)[0].Temperature).To(Equal(0.7))
			for _, c := range h.gw.Calls() {
				Expect(c.Template).To(Equal(provider.TemplateChat))
			}
		})

		It("persists the user and assistant turns", func() {
			_, err := h.run(pipeline("Plan and build a REST API", types.Settings{AutoMode: true}))
			Expect(err).NotTo(HaveOccurred())
			Expect(h.history()).To(Equal([]types.Turn{
				{Role: types.RoleUser, Content: "Plan and build a REST API"},
				{Role: types.RoleAssistant, Content: "Here is your REST API"},
			}))
		})
	})

	Describe("selection fallbacks", func() {
		It("uses the default stages when the answer has no JSON", func() {
			h.gw.On(onSelect, "I think facts matter").On(onExecute, "plain answer")
			rec, err := h.run(pipeline("task", types.Settings{AutoMode: true}))
			Expect(err).NotTo(HaveOccurred())

			Expect(h.gw.CallsMatching(onFacts)).To(HaveLen(1))
			Expect(rec.Of(types.EventLog)).To(BeEmpty())
			expectWellFormed(rec)
		})

		It("uses the default stages when selection fails", func() {
			h.gw.Fail(onSelect, errors.New("connection reset")).On(onExecute, "answer")
			rec, err := h.run(pipeline("task", types.Settings{AutoMode: true}))
			Expect(err).NotTo(HaveOccurred())
			Expect(h.gw.CallsMatching(onFacts)).To(HaveLen(1))
			Expect(rec.Events()[len(rec.Events())-1].Type).To(Equal(types.EventDone))
		})

		It("returns manual flags verbatim without a selection call", func() {
			h.gw.On(onExecute, "answer")
			_, err := h.run(pipeline("task", types.Settings{ManualFlags: types.ProtocolFlags{Topology: true}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(h.gw.CallsMatching(onSelect)).To(BeEmpty())
			Expect(h.gw.CallsMatching(onTopology)).To(HaveLen(1))
			Expect(h.gw.CallsMatching(onFacts)).To(BeEmpty())
		})
	})

	Describe("simulation and repair", func() {
		code := "Run this:\n```py\nprint(x)\n```"

		It("appends a repair when the simulated logs show an error", func() {
			h.gw.On(onExecute, code).
				On(onSimulate, "Traceback: NameError x").
				On(onRepair, "x = 1\nprint(x)")
			rec, err := h.run(pipeline("fix it", types.Settings{ManualFlags: types.ProtocolFlags{Simulation: true}}))
			Expect(err).NotTo(HaveOccurred())

			logs, ok := rec.Card(engine.TargetSimLogs)
			Expect(ok).To(BeTrue())
			Expect(logs).To(Equal("Traceback: NameError x"))

			tokens := rec.Of(types.EventToken)
			Expect(tokens[len(tokens)-1].Content).To(Equal("\n\n### Auto-Repair\nx = 1\nprint(x)"))
			Expect(h.history()[1].Content).To(Equal(code + "\n\n### Auto-Repair\nx = 1\nprint(x)"))
			expectWellFormed(rec)
		})

		It("skips repair when the logs are clean", func() {
			h.gw.On(onExecute, code).On(onSimulate, "1")
			rec, err := h.run(pipeline("run it", types.Settings{ManualFlags: types.ProtocolFlags{Simulation: true}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(h.gw.CallsMatching(onRepair)).To(BeEmpty())
			Expect(rec.Text()).To(Equal(code))
		})

		It("skips simulation when the response has no code block", func() {
			h.gw.On(onExecute, "just prose")
			_, err := h.run(pipeline("explain", types.Settings{ManualFlags: types.ProtocolFlags{Simulation: true}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(h.gw.CallsMatching(onSimulate)).To(BeEmpty())
		})
	})

	It("audits the final response including the repair", func() {
		h.gw.On(onExecute, "```\nboom\n```").
			On(onSimulate, "Error: boom").
			On(onRepair, "patched").
			On(onAudit, "looks safe")
		rec, err := h.run(pipeline("code", types.Settings{ManualFlags: types.ProtocolFlags{Simulation: true, Audit: true}}))
		Expect(err).NotTo(HaveOccurred())

		audit, ok := rec.Card(engine.TargetAudit)
		Expect(ok).To(BeTrue())
		Expect(audit).To(Equal("looks safe"))
		Expect(h.gw.CallsMatching(onAudit)[0].Prompt).To(ContainSubstring("### Auto-Repair\npatched"))
	})

	It("emits no audit card when no model is loaded but still finishes", func() {
		h.gw.noModel = true
		rec, err := h.run(pipeline("audit me", types.Settings{ManualFlags: types.ProtocolFlags{Audit: true, Facts: true}}))
		Expect(err).NotTo(HaveOccurred())

		_, ok := rec.Card(engine.TargetAudit)
		Expect(ok).To(BeFalse())
		Expect(rec.Of(types.EventCard)).To(BeEmpty())
		Expect(indexOf(rec.Events(), types.EventStatus, "Audit")).To(BeNumerically(">", 0))
		Expect(rec.Events()[len(rec.Events())-1].Type).To(Equal(types.EventDone))
		Expect(h.history()).To(HaveLen(2))
		expectWellFormed(rec)
	})

	It("uses the request temperature for execution", func() {
		temp := 0.25
		h.gw.On(onExecute, "ok")
		_, err := h.run(pipeline("t", types.Settings{Temperature: &temp}))
		Expect(err).NotTo(HaveOccurred())
		Expect(h.gw.CallsMatching(onExecute)[0].Temperature).To(Equal(0.25))
	})

	It("carries the last four turns labelled User and Assistant", func() {
		ctx := context.Background()
		for i, content := range []string{"q1", "a1", "q2", "a2", "q3", "a3"} {
			role := types.RoleUser
			if i%2 == 1 {
				role = types.RoleAssistant
			}
			Expect(h.store.Append(ctx, h.sess.ID, types.Turn{Role: role, Content: content})).To(Succeed())
		}
		h.gw.On(onExecute, "ok")
		_, err := h.run(pipeline("next", types.Settings{}))
		Expect(err).NotTo(HaveOccurred())

		prompt := h.gw.CallsMatching(onExecute)[0].Prompt
		Expect(prompt).To(ContainSubstring("History: User: q2\nAssistant: a2\nUser: q3\nAssistant: a3\n"))
		Expect(prompt).NotTo(ContainSubstring("q1"))
	})

	It("turns a mid-stream failure into an inline error token", func() {
		h.gw.On(onExecute, "partial answer")
		h.gw.streamErr = errors.New("server crashed")
		rec, err := h.run(pipeline("t", types.Settings{}))
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Text()).To(Equal("partial answer\n[Error: server crashed]"))
		Expect(h.history()[1].Content).To(Equal(rec.Text()))
		expectWellFormed(rec)
	})

	Describe("failures", func() {
		It("reports an unknown session with an error event", func() {
			rec, err := h.run(&types.RunRequest{Prompt: "hi", SessionID: "missing", Mode: types.ModePipeline})
			Expect(err).To(MatchError(session.ErrNotFound))
			events := rec.Events()
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal(types.EventError))
			Expect(h.gw.Calls()).To(BeEmpty())
		})

		It("rejects an empty prompt", func() {
			rec, err := h.run(pipeline("  ", types.Settings{}))
			Expect(err).To(HaveOccurred())
			Expect(rec.Of(types.EventError)).To(HaveLen(1))
		})

		It("stops without done and persists nothing when cancelled", func() {
			h.gw.On(onExecute, "slow tokens forever")
			h.gw.hang = true

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			rec, done := h.start(ctx, pipeline("t", types.Settings{}))

			Eventually(func() []types.Event { return rec.Of(types.EventToken) }).ShouldNot(BeEmpty())
			cancel()

			var err error
			Eventually(done).Should(Receive(&err))
			Expect(err).To(MatchError(context.Canceled))
			Expect(rec.Of(types.EventDone)).To(BeEmpty())
			Expect(rec.Of(types.EventError)).To(BeEmpty())
			Expect(h.history()).To(BeEmpty())
		})
	})
})
