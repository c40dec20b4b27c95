// Package reasoner exposes the orchestration engine as MCP tools.
package reasoner

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/internal/session"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// Engine runs one request and writes its events to the emitter.
type Engine interface {
	Run(ctx context.Context, req *types.RunRequest, em *event.Emitter) error
}

// Sessions is the part of the session store the tools need.
type Sessions interface {
	Create(ctx context.Context, title string) (*types.Session, error)
	List(ctx context.Context) ([]types.SessionInfo, error)
}

// Runner serialises runs per session. *session.Processor implements it.
type Runner interface {
	Process(ctx context.Context, sessionID string, fn session.RunFunc) error
}

// Deps are the services behind the tools.
type Deps struct {
	Engine   Engine
	Sessions Sessions
	// Runner is optional. Without it runs are not serialised.
	Runner Runner
}

type tools struct {
	Deps
}

// NewServer creates an MCP server with the reason and sessions tools.
func NewServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"reasoner",
		Version,
		server.WithToolCapabilities(true),
	)
	t := &tools{Deps: deps}

	reasonTool := mcp.NewTool("reason",
		mcp.WithDescription("Answers a prompt with the reasoning engine. Pipeline mode runs analysis stages before answering, decompose mode splits the task into sub-tasks."),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("The task or question"),
		),
		mcp.WithString("mode",
			mcp.Description("Orchestration mode"),
			mcp.Enum(string(types.ModePipeline), string(types.ModeDecompose)),
		),
		mcp.WithString("session_id",
			mcp.Description("Session to continue. A new session is created when empty."),
		),
		mcp.WithBoolean("auto",
			mcp.Description("Let the model pick the pipeline stages"),
		),
	)
	s.AddTool(reasonTool, t.reason)

	sessionsTool := mcp.NewTool("sessions",
		mcp.WithDescription("Lists the conversation sessions, most recent first"),
	)
	s.AddTool(sessionsTool, t.sessions)

	return s
}

func (t *tools) reason(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	prompt, _ := args["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("prompt argument is required"), nil
	}

	var mode types.Mode
	if modeName, _ := args["mode"].(string); modeName != "" {
		m, ok := types.ParseMode(modeName)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown mode %q", modeName)), nil
		}
		mode = m
	}
	auto, _ := args["auto"].(bool)

	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		sess, err := t.Sessions.Create(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		sessionID = sess.ID
	}

	req := &types.RunRequest{
		Prompt:    prompt,
		SessionID: sessionID,
		Mode:      mode,
		Settings:  types.Settings{AutoMode: auto},
	}
	rec := &event.Recorder{}
	run := func(ctx context.Context, runID string) error {
		req.RunID = runID
		return t.Engine.Run(ctx, req, event.NewEmitter(rec))
	}

	var err error
	if t.Runner != nil {
		err = t.Runner.Process(ctx, sessionID, run)
	} else {
		err = run(ctx, "")
	}
	if fails := rec.Of(types.EventError); len(fails) > 0 {
		return mcp.NewToolResultError(fails[len(fails)-1].Content), nil
	}
	if err != nil {
		return nil, err
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(rec.Text()),
			mcp.NewTextContent(artifacts(sessionID, rec)),
		},
	}, nil
}

// artifacts renders the cards of a run as markdown sections.
func artifacts(sessionID string, rec *event.Recorder) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "session: %s\n", sessionID)
	for _, card := range rec.Of(types.EventCard) {
		fmt.Fprintf(&sb, "\n## %s\n%s\n", card.TargetString(), card.Content)
	}
	return sb.String()
}

func (t *tools) sessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := t.Sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return mcp.NewToolResultText("no sessions"), nil
	}

	var sb strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&sb, "%s\t%s\n", info.ID, info.Title)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
