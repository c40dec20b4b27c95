package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/opencode-ai/reasoner/internal/event"
	"github.com/opencode-ai/reasoner/internal/logging"
	"github.com/opencode-ai/reasoner/internal/provider"
	"github.com/opencode-ai/reasoner/pkg/types"
)

// maxKeyDistance is the largest edit distance at which a model-written key
// still names a stage.
const maxKeyDistance = 2

// DefaultFlags is the stage set used when automatic selection fails.
func DefaultFlags() types.ProtocolFlags {
	return types.ProtocolFlags{Facts: true, Plan: true, Simulation: true}
}

// Selector decides which optional pipeline stages run.
type Selector struct {
	gw  Inference
	log zerolog.Logger
}

// NewSelector creates a selector.
func NewSelector(gw Inference) *Selector {
	return &Selector{gw: gw, log: logging.Component("selector")}
}

// Select returns the caller's flags in manual mode. In auto mode it asks the
// model and falls back to DefaultFlags when the answer is missing or
// unreadable. The error is only set when ctx is cancelled.
func (s *Selector) Select(ctx context.Context, prompt string, settings types.Settings, em *event.Emitter) (types.ProtocolFlags, error) {
	if !settings.AutoMode {
		return settings.ManualFlags, nil
	}
	if err := ctx.Err(); err != nil {
		return types.ProtocolFlags{}, err
	}

	em.Status(statusSelection)
	text, err := s.gw.Complete(ctx, &provider.Request{
		Prompt:      promptSelector(prompt),
		Temperature: 0.1,
		Template:    provider.TemplateChat,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.ProtocolFlags{}, ctx.Err()
		}
		if !errors.Is(err, provider.ErrNoModel) {
			s.log.Warn().Err(err).Msg("protocol selection failed, using defaults")
		}
		return DefaultFlags(), nil
	}

	flags, err := ParseFlags(text)
	if err != nil {
		s.log.Debug().Str("answer", text).Msg("unreadable protocol selection, using defaults")
		return DefaultFlags(), nil
	}

	selected := flags.Enabled()
	if len(selected) == 0 {
		em.Log("Auto-Selected: none")
	} else {
		em.Log("Auto-Selected: " + strings.Join(selected, ", "))
	}
	return flags, nil
}

// ParseFlags reads the first JSON object in text as stage name to boolean.
// Keys are matched case-insensitively and near-misses are accepted. Unknown
// keys are ignored, so an object naming no stage selects none.
func ParseFlags(text string) (types.ProtocolFlags, error) {
	obj, err := ExtractObject(text)
	if err != nil {
		return types.ProtocolFlags{}, err
	}
	if !obj.IsObject() {
		return types.ProtocolFlags{}, ErrExtraction
	}

	var flags types.ProtocolFlags
	obj.ForEach(func(key, value gjson.Result) bool {
		if name, ok := MatchFlag(key.String()); ok {
			flags.Set(name, value.Bool())
		}
		return true
	})
	return flags, nil
}

// MatchFlag maps a key to a stage name, tolerating small typos.
func MatchFlag(key string) (string, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return "", false
	}

	best, bestDist := "", maxKeyDistance+1
	for _, name := range types.FlagNames {
		if key == name {
			return name, true
		}
		if len(key) < 3 {
			continue
		}
		if d := levenshtein.ComputeDistance(key, name); d < bestDist {
			best, bestDist = name, d
		}
	}
	return best, best != ""
}
