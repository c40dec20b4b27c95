package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opencode-ai/reasoner/pkg/types"
)

// TruncationMarker prefixes a context that lost its head.
const TruncationMarker = "...(truncated)\n"

// Truncate keeps the trailing limit characters of s, prefixed with
// TruncationMarker. A limit of zero or less disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return TruncationMarker + string(runes[len(runes)-limit:])
}

// RunningContext accumulates the transcript of one decomposition run.
type RunningContext struct {
	sb    strings.Builder
	limit int
}

// NewRunningContext creates an empty context truncated to limit characters
// when read.
func NewRunningContext(limit int) *RunningContext {
	return &RunningContext{limit: limit}
}

// Append adds raw text.
func (c *RunningContext) Append(s string) {
	c.sb.WriteString(s)
}

// Record adds the exchange of an executed leaf.
func (c *RunningContext) Record(task, response string) {
	fmt.Fprintf(&c.sb, "\nUser: %s\nAI: %s\n", task, response)
}

// String returns the context as sent to the model.
func (c *RunningContext) String() string {
	return Truncate(c.sb.String(), c.limit)
}

// Raw returns the untruncated context.
func (c *RunningContext) Raw() string {
	return c.sb.String()
}

// Len returns the untruncated length in characters.
func (c *RunningContext) Len() int {
	return utf8.RuneCountInString(c.sb.String())
}

// FormatHistory renders the last n turns one per line as "<label>: <content>".
// User turns are labelled "User" and assistant turns assistantLabel.
func FormatHistory(turns []types.Turn, n int, assistantLabel string) string {
	if n <= 0 || len(turns) == 0 {
		return ""
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	var sb strings.Builder
	for _, t := range turns {
		label := "User"
		if t.Role != types.RoleUser {
			label = assistantLabel
		}
		sb.WriteString(label)
		sb.WriteString(": ")
		sb.WriteString(t.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
