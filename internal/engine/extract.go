package engine

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrExtraction is returned when no usable structured value is found in
// model output.
var ErrExtraction = errors.New("no structured value in model output")

// findSpan returns the first balanced span that starts with open, ends with
// the matching close, is valid JSON and passes accept. Brackets inside string
// literals are ignored. Spans that are unbalanced, invalid or rejected are
// skipped. A nil accept takes any valid span.
func findSpan(text string, open, close byte, accept func(gjson.Result) bool) (string, bool) {
	for start := strings.IndexByte(text, open); start >= 0; {
		if end, ok := matchClose(text, start, open, close); ok {
			span := text[start : end+1]
			if gjson.Valid(span) && (accept == nil || accept(gjson.Parse(span))) {
				return span, true
			}
		}
		next := strings.IndexByte(text[start+1:], open)
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func matchClose(text string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// ExtractObject returns the first JSON object embedded in text.
func ExtractObject(text string) (gjson.Result, error) {
	span, ok := findSpan(text, '{', '}', nil)
	if !ok {
		return gjson.Result{}, ErrExtraction
	}
	return gjson.Parse(span), nil
}

// ExtractStringList returns the first JSON array of strings embedded in
// text. Arrays holding anything but strings are skipped. Blank entries are
// dropped.
func ExtractStringList(text string) ([]string, error) {
	span, ok := findSpan(text, '[', ']', onlyStrings)
	if !ok {
		return nil, ErrExtraction
	}

	items := []string{}
	gjson.Parse(span).ForEach(func(_, value gjson.Result) bool {
		if s := strings.TrimSpace(value.String()); s != "" {
			items = append(items, s)
		}
		return true
	})
	return items, nil
}

func onlyStrings(arr gjson.Result) bool {
	ok := true
	arr.ForEach(func(_, value gjson.Result) bool {
		ok = value.Type == gjson.String
		return ok
	})
	return ok
}
