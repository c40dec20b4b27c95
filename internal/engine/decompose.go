package engine

import (
	"context"
	"strings"

	"github.com/opencode-ai/reasoner/internal/metrics"
	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/pkg/types"
)

func instruction(prompt string, temp float64, maxTokens int, stop []string) *provider.Request {
	return &provider.Request{
		Prompt:      prompt,
		Temperature: temp,
		MaxTokens:   maxTokens,
		Stop:        stop,
		Template:    provider.TemplateInstruction,
	}
}

// analysis is the goal, steps and single-step verdict of a node.
type analysis struct {
	goal   string
	steps  string
	single bool
}

// runDecomposition drains the work stack and returns the concatenated
// responses of the executed leaves.
func (e *Engine) runDecomposition(ctx context.Context, r *run, sess *types.Session) (string, error) {
	r.status(statusDecomposeInit)

	running := NewRunningContext(e.cfg.ContextLimit)
	if len(sess.History) > 0 {
		running.Append("Prior Chat History:\n")
		running.Append(FormatHistory(sess.History, e.cfg.DecomposeHistory, "AI"))
	}

	var transcript strings.Builder
	stack := NewWorkStack(r.req.Prompt)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		node, ok := stack.Pop()
		if !ok {
			break
		}
		prefix := node.Prefix()

		if node.Kind == NodeResume {
			r.status(prefix + " Context Aggregation...")
			r.card("Sub-tasks completed for: "+node.Task, prefix+" Context")
			continue
		}

		r.status(prefix + " WHI Analysis...")
		a, err := e.analyse(ctx, r, node, running)
		if err != nil {
			return "", err
		}

		if !a.single {
			r.status(prefix + " Status: COMPLEX. Splitting...")
			subTasks, err := e.split(ctx, r, a)
			if err != nil {
				return "", err
			}
			if len(subTasks) > 0 {
				stack.Split(node, subTasks)
				metrics.RecordSplit()
				r.card(strings.Join(subTasks, "\n"), prefix+" Split Plan")
				continue
			}
			r.log.Debug().Int("depth", node.Depth).Msg("split produced no sub-tasks, executing as leaf")
		}

		r.status(prefix + " Status: CLEAR. Executing...")
		metrics.ObserveLeafDepth(node.Depth)
		response, err := r.stream(ctx, instruction(
			promptLeaf(running.String(), node.Task, a.goal, a.steps), e.cfg.Temperature, 2048, []string{"###"}))
		if err != nil {
			return "", err
		}
		running.Record(node.Task, response)
		transcript.WriteString(response)
	}

	return transcript.String(), nil
}

// analyse classifies a node and, for complex ones, extracts its goal and
// steps and decides whether it is a single step. Nodes at the depth bound
// are always single.
func (e *Engine) analyse(ctx context.Context, r *run, node TaskNode, running *RunningContext) (analysis, error) {
	prefix := node.Prefix()
	target := prefix + " WHI"

	answer, ok, err := r.ask(ctx, instruction(promptRoute(node.Task), 0.1, 10, []string{"\n"}))
	if err != nil {
		return analysis{}, err
	}
	isComplex := !ok || !negative(answer)

	if !isComplex {
		a := analysis{goal: simpleGoal, steps: simpleSteps, single: true}
		r.card("W: "+a.goal, target)
		r.card("H: "+a.steps, target)
		r.card("I: YES", target)
		return a, nil
	}

	var a analysis
	text, _, err := r.ask(ctx, instruction(promptGoal(node.Task, running.String()), 0.1, 64, []string{"\n\n", "###"}))
	if err != nil {
		return analysis{}, err
	}
	a.goal = sanitize(text)
	if a.goal == "" || apologetic(a.goal) {
		a.goal = fallbackGoal
	}
	r.card("W: "+a.goal, target)

	text, _, err = r.ask(ctx, instruction(promptSteps(node.Task, a.goal), 0.1, 128, []string{"\n\n", "###"}))
	if err != nil {
		return analysis{}, err
	}
	a.steps = sanitize(text)
	if a.steps == "" {
		a.steps = fallbackSteps
	}
	r.card("H: "+a.steps, target)

	a.single = true
	if node.Depth < e.cfg.MaxDepth {
		answer, ok, err := r.ask(ctx, instruction(promptSingleStep(a.steps), 0.1, 10, nil))
		if err != nil {
			return analysis{}, err
		}
		if ok && negative(answer) {
			a.single = false
		}
	}
	if a.single {
		r.card("I: YES", target)
	} else {
		r.card("I: NO", target)
	}
	return a, nil
}

// split asks for the sub-tasks of a node. A missing or malformed answer
// yields no sub-tasks.
func (e *Engine) split(ctx context.Context, r *run, a analysis) ([]string, error) {
	text, ok, err := r.ask(ctx, instruction(promptSplit(a.goal, a.steps), 0.1, 0, nil))
	if err != nil || !ok {
		return nil, err
	}
	subTasks, err := ExtractStringList(text)
	if err != nil {
		r.log.Debug().Str("answer", text).Msg("unreadable sub-task list")
		return nil, nil
	}
	return subTasks, nil
}
