package engine

import (
	"context"
	"strings"

	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/pkg/types"
)

func chat(prompt string, temp float64) *provider.Request {
	return &provider.Request{Prompt: prompt, Temperature: temp, Template: provider.TemplateChat}
}

// runPipeline runs the fixed stage sequence and returns the assistant
// response. Stages whose call produces nothing are skipped.
func (e *Engine) runPipeline(ctx context.Context, r *run, sess *types.Session) (string, error) {
	task := r.req.Prompt
	r.status(statusPipelineInit)

	flags, err := e.selector.Select(ctx, task, r.req.Settings, r.em)
	if err != nil {
		return "", err
	}
	r.log.Debug().Strs("stages", flags.Enabled()).Msg("protocols selected")

	history := FormatHistory(sess.History, e.cfg.PipelineHistory, "Assistant")

	var facts string
	if flags.Facts {
		r.status(statusFacts)
		text, ok, err := r.ask(ctx, chat(promptFacts(task), 0.1))
		if err != nil {
			return "", err
		}
		if ok {
			facts = strings.TrimSpace(text)
			r.card(facts, TargetFacts)
		}
	}

	if flags.Deep {
		r.status(statusDeep)
		text, ok, err := r.ask(ctx, chat(promptDeep(task, facts), 0.6))
		if err != nil {
			return "", err
		}
		if ok {
			r.card(strings.TrimSpace(text), TargetAnalysis)
		}
	}

	if flags.Topology {
		r.status(statusTopology)
		text, ok, err := r.ask(ctx, chat(promptTopology(task), 0.2))
		if err != nil {
			return "", err
		}
		if ok {
			r.card(strings.TrimSpace(text), TargetTopology)
		}
	}

	r.status(statusBlueprint)
	var blueprint string
	text, ok, err := r.ask(ctx, chat(promptBlueprint(task, facts), 0.3))
	if err != nil {
		return "", err
	}
	if ok {
		blueprint = strings.TrimSpace(text)
		r.card(blueprint, TargetBlueprint)
	}

	plan := blueprint
	if flags.Debate {
		if plan, err = e.debate(ctx, r, blueprint); err != nil {
			return "", err
		}
	}

	r.status(statusExecution)
	temp := e.cfg.Temperature
	if r.req.Settings.Temperature != nil {
		temp = *r.req.Settings.Temperature
	}
	response, err := r.stream(ctx, chat(promptExecute(task, plan, history), temp))
	if err != nil {
		return "", err
	}

	if flags.Simulation && hasCode(response) {
		if response, err = e.simulate(ctx, r, response); err != nil {
			return "", err
		}
	}

	if flags.Audit {
		r.status(statusAudit)
		text, ok, err := r.ask(ctx, chat(promptAudit(response), 0.1))
		if err != nil {
			return "", err
		}
		if ok {
			r.card(strings.TrimSpace(text), TargetAudit)
		}
	}

	r.status(statusFinal)
	return response, nil
}

// debate asks for a conservative and an exploratory plan and lets the model
// pick. The verdict replaces the blueprint verbatim.
func (e *Engine) debate(ctx context.Context, r *run, blueprint string) (string, error) {
	r.status(statusDebate)

	r.note("Drafting safe plan...")
	safe, _, err := r.ask(ctx, chat(promptSafePlan(blueprint), 0.2))
	if err != nil {
		return "", err
	}

	r.note("Drafting risky plan...")
	risky, _, err := r.ask(ctx, chat(promptRiskyPlan(blueprint), 0.8))
	if err != nil {
		return "", err
	}

	r.note("Judging plans...")
	verdict, ok, err := r.ask(ctx, chat(promptVerdict(safe, risky), 0.1))
	if err != nil {
		return "", err
	}
	if !ok {
		return blueprint, nil
	}
	verdict = strings.TrimSpace(verdict)
	r.card(verdict, TargetVerdict)
	return verdict, nil
}

// simulate dry-runs the code in response and appends a repair when the
// simulated logs show a failure.
func (e *Engine) simulate(ctx context.Context, r *run, response string) (string, error) {
	r.status(statusSimulation)
	text, ok, err := r.ask(ctx, chat(promptSimulate(response), 0.1))
	if err != nil || !ok {
		return response, err
	}
	logs := strings.TrimSpace(text)
	r.card(logs, TargetSimLogs)
	if !failedRun(logs) {
		return response, nil
	}

	r.status(statusRepair)
	fix, ok, err := r.ask(ctx, chat(promptRepair(response, logs), 0.1))
	if err != nil || !ok {
		return response, err
	}
	patch := repairHeader + strings.TrimSpace(fix)
	r.token(patch)
	return response + patch, nil
}
