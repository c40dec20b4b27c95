package engine

import (
	"fmt"
	"strings"
)

// Pipeline status labels, in stage order.
const (
	statusPipelineInit = "Initializing Pipeline Protocol..."
	statusSelection    = "Dynamic Protocol Selection..."
	statusFacts        = "Facts Extraction"
	statusDeep         = "Deep Analysis"
	statusTopology     = "Topology Mapping"
	statusBlueprint    = "Blueprint"
	statusDebate       = "Debate"
	statusExecution    = "Execution"
	statusSimulation   = "Simulation"
	statusRepair       = "Repair"
	statusAudit        = "Audit"
	statusFinal        = "Final Gateway"

	statusDecomposeInit = "Initializing Decomposition Protocol..."
)

// Card targets.
const (
	TargetFacts     = "Facts"
	TargetAnalysis  = "Analysis"
	TargetTopology  = "Topology"
	TargetBlueprint = "Blueprint"
	TargetVerdict   = "Verdict"
	TargetSimLogs   = "Sim Logs"
	TargetAudit     = "Audit"
)

// DoneMessage is the content of the final done event.
const DoneMessage = "Ready"

const repairHeader = "\n\n### Auto-Repair\n"

const selectorPrompt = "Task: %s\n" +
	"Identify required protocols. Output JSON boolean.\n" +
	"Keys: facts, deep, topology, plan, debate, simulation, audit.\n" +
	"Example: {\"facts\": true, \"deep\": false}\n" +
	"JSON:"

func promptSelector(task string) string { return fmt.Sprintf(selectorPrompt, task) }

func promptFacts(task string) string { return "Extract Axioms & Constraints:\n" + task }

func promptDeep(task, facts string) string {
	return fmt.Sprintf("Deep Analysis:\n%s\nContext: %s", task, facts)
}

func promptTopology(task string) string { return "Dependency Mapping:\n" + task }

func promptBlueprint(task, facts string) string {
	return fmt.Sprintf("Execution Blueprint:\n%s\nFacts: %s", task, facts)
}

func promptSafePlan(blueprint string) string  { return "Safe Plan:\n" + blueprint }
func promptRiskyPlan(blueprint string) string { return "Risky Plan:\n" + blueprint }

func promptVerdict(a, b string) string {
	return fmt.Sprintf("Select Best:\nA: %s\nB: %s", a, b)
}

func promptExecute(task, plan, history string) string {
	return fmt.Sprintf("Task: %s\nPlan: %s\nHistory: %s\nExecute.", task, plan, history)
}

func promptSimulate(response string) string {
	return "Simulate code execution. Output Logs:\n" + response
}

func promptRepair(code, logs string) string {
	return fmt.Sprintf("Fix code using logs:\nCode: %s\nLogs: %s", code, logs)
}

func promptAudit(response string) string { return "Security Audit:\n" + response }

// Decomposition prompts.

func promptRoute(task string) string {
	return fmt.Sprintf("Input: %s\nQuestion: Is this a complex task requiring a plan? Answer YES or NO.", task)
}

func promptGoal(task, context string) string {
	return fmt.Sprintf("Input: %s\nContext: %s\nTask: Identify the specific goal.", task, context)
}

func promptSteps(task, goal string) string {
	return fmt.Sprintf("Input: %s\nGoal: %s\nTask: List brief steps to achieve this.", task, goal)
}

func promptSingleStep(steps string) string {
	return fmt.Sprintf("Steps: %s\nQuestion: Is this a single step task? YES or NO.", steps)
}

func promptSplit(goal, steps string) string {
	return fmt.Sprintf("Goal: %s\nSteps: %s\nTask: Return a JSON list of sub-tasks. Example: [\"Step1\", \"Step2\"]", goal, steps)
}

func promptLeaf(context, task, goal, steps string) string {
	return fmt.Sprintf("Context: %s\nRequest: %s\nGoal: %s\nPlan: %s\n\nTask: Write the response now.", context, task, goal, steps)
}

// Placeholders for simple tasks and fallbacks for failed extraction.
const (
	simpleGoal    = "Chat with user"
	simpleSteps   = "Reply naturally"
	fallbackGoal  = "Execute task"
	fallbackSteps = "Execute immediately"
)

var boilerplate = []string{"SYSTEM:", "GLOBAL CONTEXT:", "Instruction:", "Context:", "Response:"}

// sanitize strips quoting and prompt echo from an extracted value.
func sanitize(text string) string {
	text = strings.NewReplacer("`", "", "'", "", `"`, "").Replace(text)
	for _, b := range boilerplate {
		text = strings.ReplaceAll(text, b, "")
	}
	return strings.TrimSpace(text)
}

// apologetic reports whether the model declined instead of answering.
func apologetic(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "sorry") || strings.Contains(lower, "understand")
}

// negative reports whether a YES/NO answer clearly says no.
func negative(answer string) bool {
	yes, no := false, false
	for _, word := range strings.FieldsFunc(strings.ToUpper(answer), func(r rune) bool {
		return r < 'A' || r > 'Z'
	}) {
		switch word {
		case "YES":
			yes = true
		case "NO":
			no = true
		}
	}
	return no && !yes
}

// hasCode reports whether a response carries a fenced code block.
func hasCode(response string) bool {
	return strings.Contains(response, "```")
}

// failedRun reports whether simulated logs show an error.
func failedRun(logs string) bool {
	return strings.Contains(logs, "Error") || strings.Contains(logs, "Traceback")
}
