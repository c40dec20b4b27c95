package commands

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/pkg/types"
)

var (
	runMode        string
	runAuto        bool
	runFlags       []string
	runTemperature float64
	runServer      string
	runSession     string
	runFormat      string
	runDir         string
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Answer a single prompt",
	Long: `Answer a prompt and print the run's events as they arrive.

The prompt runs in-process against the configured model. With --server it
runs on a reasoner server instead, where --session continues an existing
session.

Examples:
  reasoner run "What is 2+2?"
  reasoner run --mode decompose "Write a REST API for a todo list"
  reasoner run --flag facts --flag debate "Compare TCP and QUIC"
  reasoner run --server http://127.0.0.1:5000 --session 01J... "And UDP?"
  reasoner run --format json "Hello" | jq .`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", "", "Orchestration mode (pipeline|decompose)")
	runCmd.Flags().BoolVar(&runAuto, "auto", false, "Let the model pick the pipeline stages")
	runCmd.Flags().StringArrayVarP(&runFlags, "flag", "f", nil, "Enable a pipeline stage ("+strings.Join(types.FlagNames, "|")+")")
	runCmd.Flags().Float64Var(&runTemperature, "temperature", 0, "Temperature of the answering stage")
	runCmd.Flags().StringVar(&runServer, "server", "", "Run on the reasoner server at this URL")
	runCmd.Flags().StringVarP(&runSession, "session", "s", "", "Session ID to continue (requires --server)")
	runCmd.Flags().StringVar(&runFormat, "format", "default", "Output format (default|json)")
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
}

func runOnce(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	if strings.TrimSpace(prompt) == "" {
		return fmt.Errorf("prompt required. Usage: reasoner run \"your prompt\"")
	}
	if runSession != "" && runServer == "" {
		return fmt.Errorf("--session requires --server")
	}

	var mode types.Mode
	if runMode != "" {
		m, ok := types.ParseMode(runMode)
		if !ok {
			return fmt.Errorf("unknown mode %q", runMode)
		}
		mode = m
	}
	settings := types.Settings{AutoMode: runAuto}
	for _, name := range runFlags {
		if !settings.ManualFlags.Set(name, true) {
			return fmt.Errorf("unknown stage %q (want one of %s)", name, strings.Join(types.FlagNames, ", "))
		}
	}
	if cmd.Flags().Changed("temperature") {
		t := runTemperature
		settings.Temperature = &t
	}

	var sink event.Sink
	switch runFormat {
	case "json":
		sink = event.NDJSONSink(cmd.OutOrStdout(), nil)
	case "default", "":
		sink = newPrinter(cmd.OutOrStdout())
	default:
		return fmt.Errorf("unknown format %q", runFormat)
	}
	status := &runStatus{sink: sink}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := &types.RunRequest{Prompt: prompt, SessionID: runSession, Mode: mode, Settings: settings}
	var err error
	if runServer != "" {
		err = runRemote(ctx, strings.TrimRight(runServer, "/"), req, status)
	} else {
		err = runLocal(ctx, req, status)
	}
	if err != nil {
		return err
	}
	if status.failure != "" {
		return errors.New(status.failure)
	}
	return nil
}

func runLocal(ctx context.Context, req *types.RunRequest, sink event.Sink) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.sessions.Create(ctx, "")
	if err != nil {
		return err
	}
	req.SessionID = sess.ID

	err = a.engine.Run(ctx, req, event.NewEmitter(sink))
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("run aborted")
	}
	// failures already reached the sink as an error event
	return nil
}

// runRemote streams a run from a reasoner server.
func runRemote(ctx context.Context, baseURL string, req *types.RunRequest, sink event.Sink) error {
	if req.SessionID == "" {
		var sess types.Session
		if err := postJSON(ctx, baseURL+"/session", map[string]string{}, &sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		req.SessionID = sess.ID
	}

	body, err := json.Marshal(map[string]any{
		"prompt":   req.Prompt,
		"mode":     req.Mode,
		"settings": req.Settings,
	})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/session/"+req.SessionID+"/run", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var ev types.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := sink.Write(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		return fmt.Errorf("run aborted")
	}
	return nil
}

func postJSON(ctx context.Context, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// responseError reads the server's error envelope.
func responseError(resp *http.Response) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
		return fmt.Errorf("%s: %s", resp.Status, env.Error.Message)
	}
	return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
}

// runStatus remembers the error event of a run.
type runStatus struct {
	sink    event.Sink
	failure string
}

func (s *runStatus) Write(ev types.Event) error {
	if ev.Type == types.EventError {
		s.failure = ev.Content
	}
	return s.sink.Write(ev)
}

// printer renders events for a terminal. Tokens are written as they arrive;
// every other event starts on its own line.
type printer struct {
	out     io.Writer
	midLine bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) Write(ev types.Event) error {
	if ev.Type == types.EventToken {
		if ev.Content != "" {
			p.midLine = !strings.HasSuffix(ev.Content, "\n")
		}
		_, err := io.WriteString(p.out, ev.Content)
		return err
	}

	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
	var err error
	switch ev.Type {
	case types.EventStatus:
		_, err = fmt.Fprintf(p.out, "» %s\n", ev.Content)
	case types.EventLog:
		_, err = fmt.Fprintf(p.out, "  %s\n", ev.Content)
	case types.EventCard:
		_, err = fmt.Fprintf(p.out, "┌ %s\n%s\n└\n", ev.TargetString(), indent(ev.Content, "│ "))
	case types.EventDone:
		_, err = fmt.Fprintf(p.out, "✓ %s\n", ev.Content)
	case types.EventError:
		_, err = fmt.Fprintf(p.out, "✗ %s\n", ev.Content)
	}
	return err
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
