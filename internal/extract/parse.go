package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	jsonFence = "```json"
	fence     = "```"
)

var objectSpan = regexp.MustCompile(`(?s)\{.*\}`)

// ParseError reports a model response that could not be coerced into a Record.
type ParseError struct {
	Reason string
	// Raw is the untouched model response, kept for diagnosis.
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse model response: %s: %v", e.Reason, e.Err)
	}
	return "parse model response: " + e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse isolates the JSON object in a raw model response and normalizes it
// into a Record. The returned error, when non-nil, is always a *ParseError.
func Parse(raw string) (Record, error) {
	payload := Unfence(raw)

	obj, err := decodeObject(payload)
	if err != nil {
		return Record{}, &ParseError{Reason: "response is not a JSON object", Raw: raw, Err: err}
	}
	return fromObject(obj), nil
}

// Unfence returns the text inside the first markdown code fence of s.
// A fence tagged json wins over an untagged one; text without fences is
// returned trimmed.
func Unfence(s string) string {
	if i := strings.Index(s, jsonFence); i >= 0 {
		return between(s, i+len(jsonFence))
	}
	if i := strings.Index(s, fence); i >= 0 {
		return between(s, i+len(fence))
	}
	return strings.TrimSpace(s)
}

func between(s string, start int) string {
	rest := s[start:]
	if end := strings.Index(rest, fence); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// decodeObject tries a strict decode first and falls back to the widest
// brace-delimited span. A value that decodes but is not an object is
// rejected without trying the fallback.
func decodeObject(text string) (map[string]any, error) {
	v, err := decodeStrict(text)
	if err != nil {
		span := objectSpan.FindString(text)
		if span == "" {
			return nil, fmt.Errorf("no JSON object found: %w", err)
		}
		v, err = decodeStrict(span)
		if err != nil {
			return nil, err
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decoded %T, want object", v)
	}
	return obj, nil
}

func decodeStrict(text string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// fromObject maps a decoded object onto a Record, coercing loosely typed
// values the way models commonly emit them.
func fromObject(obj map[string]any) Record {
	var r Record
	r.TLDR = stringValue(obj["tldr"])

	for _, item := range listValue(obj["decisions"]) {
		switch v := item.(type) {
		case map[string]any:
			r.Decisions = append(r.Decisions, Decision{
				Decision: stringValue(v["decision"]),
				Owner:    stringValue(v["owner"]),
				Context:  stringValue(v["context"]),
			})
		default:
			if s := stringValue(v); s != "" {
				r.Decisions = append(r.Decisions, Decision{Decision: s})
			}
		}
	}

	for _, item := range listValue(obj["action_items"]) {
		switch v := item.(type) {
		case map[string]any:
			r.ActionItems = append(r.ActionItems, ActionItem{
				Task:    stringValue(v["task"]),
				Owner:   stringValue(v["owner"]),
				DueDate: stringValue(v["due_date"]),
			})
		default:
			if s := stringValue(v); s != "" {
				r.ActionItems = append(r.ActionItems, ActionItem{Task: s})
			}
		}
	}

	r.Risks = stringList(obj["risks"])
	r.KeyPoints = stringList(obj["key_points"])

	for _, item := range listValue(obj["context_connections"]) {
		switch v := item.(type) {
		case map[string]any:
			r.ContextConnections = append(r.ContextConnections, Connection{
				Connection: stringValue(v["connection"]),
				Reference:  stringValue(v["reference"]),
			})
		default:
			if s := stringValue(v); s != "" {
				r.ContextConnections = append(r.ContextConnections, Connection{Connection: s})
			}
		}
	}

	r.Normalize()
	return r
}

// listValue returns v as a list. A bare non-null scalar becomes a
// one-element list.
func listValue(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	default:
		return []any{t}
	}
}

func stringList(v any) []string {
	items := listValue(v)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := stringValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
