package engine_test

import (
	"context"
	"strings"
	"sync"

	"github.com/opencode-ai/reasoner/internal/provider"
)

type rule struct {
	match string
	reply func(prompt string) string
	err   error
}

// fakeGateway answers prompts by substring rules. The most recently added
// matching rule wins; unmatched prompts get an empty answer.
type fakeGateway struct {
	mu        sync.Mutex
	rules     []rule
	calls     []*provider.Request
	noModel   bool
	streamErr error
	// hang makes streams emit their first chunk and then wait for ctx.
	hang bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{}
}

func (g *fakeGateway) On(match, reply string) *fakeGateway {
	return g.OnFunc(match, func(string) string { return reply })
}

func (g *fakeGateway) OnFunc(match string, reply func(prompt string) string) *fakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rule{match: match, reply: reply})
	return g
}

func (g *fakeGateway) Fail(match string, err error) *fakeGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rules = append(g.rules, rule{match: match, err: err})
	return g
}

func (g *fakeGateway) respond(req *provider.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.noModel {
		return "", provider.ErrNoModel
	}
	for i := len(g.rules) - 1; i >= 0; i-- {
		r := g.rules[i]
		if strings.Contains(req.Prompt, r.match) {
			if r.err != nil {
				return "", r.err
			}
			return r.reply(req.Prompt), nil
		}
	}
	return "", nil
}

func (g *fakeGateway) Complete(ctx context.Context, req *provider.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return g.respond(req)
}

func (g *fakeGateway) Stream(ctx context.Context, req *provider.Request) (*provider.Stream, error) {
	text, err := g.respond(req)
	if err != nil {
		return nil, err
	}
	chunks := strings.SplitAfter(text, " ")

	g.mu.Lock()
	hang, streamErr := g.hang, g.streamErr
	g.mu.Unlock()

	if hang {
		return provider.NewStream(ctx, func(ctx context.Context, emit func(string) bool) error {
			emit(chunks[0])
			<-ctx.Done()
			return ctx.Err()
		}), nil
	}
	var nonEmpty []string
	for _, c := range chunks {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	return provider.StaticStream(ctx, streamErr, nonEmpty...), nil
}

func (g *fakeGateway) Calls() []*provider.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]*provider.Request(nil), g.calls...)
}

// CallsMatching returns the requests whose prompt contains match.
func (g *fakeGateway) CallsMatching(match string) []*provider.Request {
	var out []*provider.Request
	for _, c := range g.Calls() {
		if strings.Contains(c.Prompt, match) {
			out = append(out, c)
		}
	}
	return out
}

// PromptFor returns the prompt of the first call containing match.
func (g *fakeGateway) PromptFor(match string) string {
	calls := g.CallsMatching(match)
	if len(calls) == 0 {
		return ""
	}
	return calls[0].Prompt
}

// Prompt markers of the engine's calls.
const (
	onSelect    = "Identify required protocols"
	onFacts     = "Extract Axioms & Constraints"
	onDeep      = "Deep Analysis:"
	onTopology  = "Dependency Mapping"
	onBlueprint = "Execution Blueprint"
	onSafe      = "Safe Plan:"
	onRisky     = "Risky Plan:"
	onVerdict   = "Select Best:"
	onExecute   = "\nExecute."
	onSimulate  = "Simulate code execution"
	onRepair    = "Fix code using logs"
	onAudit     = "Security Audit:"

	onRoute  = "Is this a complex task requiring a plan?"
	onGoal   = "Task: Identify the specific goal."
	onSteps  = "Task: List brief steps"
	onSingle = "Is this a single step task?"
	onSplit  = "Return a JSON list of sub-tasks"
	onLeaf   = "Task: Write the response now."
)
