package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/opencode-ai/reasoner/internal/config"
	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/internal/logging"
	"github.com/opencode-ai/reasoner/internal/metrics"
	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// Inference issues model calls. *provider.Gateway implements it.
type Inference interface {
	Complete(ctx context.Context, req *provider.Request) (string, error)
	Stream(ctx context.Context, req *provider.Request) (*provider.Stream, error)
}

// Sessions is the part of the session store the engine needs.
type Sessions interface {
	Get(ctx context.Context, id string) (*types.Session, error)
	Append(ctx context.Context, id string, turns ...types.Turn) error
}

// Config tunes the engine.
type Config struct {
	MaxDepth         int
	ContextLimit     int
	PipelineHistory  int
	DecomposeHistory int
	Temperature      float64
	DefaultMode      types.Mode
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxDepth:         config.DefaultMaxDepth,
		ContextLimit:     config.DefaultContextLimit,
		PipelineHistory:  config.DefaultPipelineHistory,
		DecomposeHistory: config.DefaultDecomposeHistory,
		Temperature:      config.DefaultTemperature,
		DefaultMode:      types.ModePipeline,
	}
}

// ConfigFrom fills the defaults with the values set in ec.
func ConfigFrom(ec *types.EngineConfig) Config {
	cfg := DefaultConfig()
	if ec == nil {
		return cfg
	}
	if ec.MaxDepth > 0 {
		cfg.MaxDepth = ec.MaxDepth
	}
	if ec.ContextLimit > 0 {
		cfg.ContextLimit = ec.ContextLimit
	}
	if ec.PipelineHistory > 0 {
		cfg.PipelineHistory = ec.PipelineHistory
	}
	if ec.DecomposeHistory > 0 {
		cfg.DecomposeHistory = ec.DecomposeHistory
	}
	if ec.Temperature != nil {
		cfg.Temperature = *ec.Temperature
	}
	if mode, ok := types.ParseMode(ec.DefaultMode); ok {
		cfg.DefaultMode = mode
	}
	return cfg
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig overrides the defaults.
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithBus publishes run.started and run.finished on bus.
func WithBus(bus *event.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// Engine orchestrates model calls for a request. It holds no per-run state
// and is safe for concurrent use.
type Engine struct {
	gw       Inference
	sessions Sessions
	selector *Selector
	cfg      Config
	bus      *event.Bus
}

// New creates an engine.
func New(gw Inference, sessions Sessions, opts ...Option) *Engine {
	e := &Engine{
		gw:       gw,
		sessions: sessions,
		cfg:      DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.selector = NewSelector(gw)
	return e
}

// Config returns the engine config.
func (e *Engine) Config() Config {
	return e.cfg
}

// Run executes req and writes its events to em. A successful run ends with
// a done event and appends the user and assistant turns to the session.
// An unknown session or an invalid request ends with an error event.
// A cancelled run returns ctx.Err() without a terminal event and persists
// nothing.
func (e *Engine) Run(ctx context.Context, req *types.RunRequest, em *event.Emitter) error {
	mode := req.Mode
	if mode == "" {
		mode = e.cfg.DefaultMode
	}
	runID := req.RunID
	if runID == "" {
		runID = "run_" + ulid.Make().String()
	}

	r := &run{
		engine: e,
		req:    req,
		em:     em,
		log:    logging.ForRun(req.SessionID, runID, string(mode)),
	}

	start := time.Now()
	e.publish(event.RunStarted, event.RunStartedData{SessionID: req.SessionID, RunID: runID, Mode: mode})
	r.log.Info().Int("prompt_len", len(req.Prompt)).Msg("run started")

	err := e.dispatch(ctx, r, mode)

	outcome := metrics.OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = metrics.OutcomeCancelled
	default:
		outcome = metrics.OutcomeError
	}
	metrics.RecordRun(string(mode), outcome)

	finished := event.RunFinishedData{SessionID: req.SessionID, RunID: runID, Events: em.Count()}
	if err != nil {
		finished.Error = err.Error()
	}
	e.publish(event.RunFinished, finished)

	logEvent := r.log.Info()
	if err != nil {
		logEvent = r.log.Warn().Err(err)
	}
	logEvent.Str("outcome", outcome).Int("events", em.Count()).Dur("elapsed", time.Since(start)).Msg("run finished")
	return err
}

func (e *Engine) dispatch(ctx context.Context, r *run, mode types.Mode) error {
	if strings.TrimSpace(r.req.Prompt) == "" {
		err := errors.New("prompt is required")
		r.em.Fail(err.Error())
		return err
	}

	sess, err := e.sessions.Get(ctx, r.req.SessionID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.em.Fail(fmt.Sprintf("session not found: %s", r.req.SessionID))
		return fmt.Errorf("run %s: %w", r.req.SessionID, err)
	}

	var response string
	switch mode {
	case types.ModePipeline:
		response, err = e.runPipeline(ctx, r, sess)
	case types.ModeDecompose:
		response, err = e.runDecomposition(ctx, r, sess)
	default:
		err = fmt.Errorf("unknown mode %q", mode)
		r.em.Fail(err.Error())
		return err
	}
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = e.sessions.Append(ctx, sess.ID,
		types.Turn{Role: types.RoleUser, Content: r.req.Prompt},
		types.Turn{Role: types.RoleAssistant, Content: response},
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.em.Fail(fmt.Sprintf("failed to save history: %v", err))
		return fmt.Errorf("save history: %w", err)
	}

	r.em.Done(DoneMessage)
	return nil
}

func (e *Engine) publish(t event.EventType, data any) {
	if e.bus != nil {
		e.bus.Publish(event.Event{Type: t, Data: data})
	}
}

// run carries the state shared by the stages of one request.
type run struct {
	engine *Engine
	req    *types.RunRequest
	em     *event.Emitter
	log    zerolog.Logger
}

func (r *run) status(s string) { r.emit(r.em.Status(s)) }
func (r *run) note(s string)   { r.emit(r.em.Log(s)) }
func (r *run) token(s string)  { r.emit(r.em.Token(s)) }

func (r *run) card(content, target string) { r.emit(r.em.Card(content, target)) }

// emit logs event write failures. The run carries on so history stays
// consistent with what the model produced.
func (r *run) emit(err error) {
	if err != nil && !errors.Is(err, event.ErrStreamClosed) {
		r.log.Debug().Err(err).Msg("event not delivered")
	}
}

// ask issues a completion. ok is false when the call produced nothing; the
// error is only set when the run is cancelled.
func (r *run) ask(ctx context.Context, req *provider.Request) (text string, ok bool, err error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	text, err = r.engine.gw.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		if errors.Is(err, provider.ErrNoModel) {
			r.log.Debug().Msg("no model loaded, stage skipped")
		} else {
			r.log.Warn().Err(err).Msg("completion failed, stage skipped")
		}
		return "", false, nil
	}
	return text, true, nil
}

// stream forwards a streaming completion as token events and returns the
// streamed text. Generation failures become an inline error token that is
// part of the returned text; the returned error is only set when the run is
// cancelled.
func (r *run) stream(ctx context.Context, req *provider.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s, err := r.engine.gw.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, provider.ErrNoModel) {
			r.log.Debug().Msg("no model loaded, nothing generated")
			return "", nil
		}
		r.log.Warn().Err(err).Msg("stream failed to open")
		msg := fmt.Sprintf("\n[Error: %v]", err)
		r.token(msg)
		return msg, nil
	}
	defer s.Close()

	var sb strings.Builder
	for chunk := range s.Chunks() {
		if err := ctx.Err(); err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk)
		r.token(chunk)
	}
	if err := s.Err(); err != nil {
		if ctx.Err() != nil {
			return sb.String(), ctx.Err()
		}
		r.log.Warn().Err(err).Msg("stream failed")
		msg := fmt.Sprintf("\n[Error: %v]", err)
		sb.WriteString(msg)
		r.token(msg)
	}
	return sb.String(), nil
}
