package proposals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Proposal is one untrusted cut candidate as decoded from model output.
// Fields hold whatever JSON value the model produced (nil when absent).
type Proposal struct {
	Start       any
	End         any
	Description any
	Platform    any
}

// ParseError reports model output that held no usable proposal array.
// It is recoverable: callers log it and continue with zero proposals.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("proposals: %s", e.Reason)
}

// Parse extracts the first JSON array of objects embedded in raw. Markdown
// fences, prose and trailing commentary around the array are tolerated. A
// literal empty array yields no proposals and no error.
func Parse(raw string) ([]Proposal, error) {
	t := stripFences(strings.TrimSpace(raw))
	if t == "" {
		return nil, &ParseError{Raw: raw, Reason: "empty model output"}
	}
	if compact(t) == "[]" {
		return nil, nil
	}

	for i := 0; i < len(t); i++ {
		if t[i] != '[' || !opensObject(t[i+1:]) {
			continue
		}
		items, ok := decodeFirst(t[i:])
		if !ok {
			continue
		}
		out := make([]Proposal, 0, len(items))
		for _, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				return nil, &ParseError{Raw: raw, Reason: "array element is not an object"}
			}
			out = append(out, Proposal{
				Start:       obj["start"],
				End:         obj["end"],
				Description: obj["description"],
				Platform:    obj["platform"],
			})
		}
		return out, nil
	}
	return nil, &ParseError{Raw: raw, Reason: "no JSON array of objects found"}
}

// decodeFirst decodes the JSON array starting at s[0]. Anything after the
// array's closing bracket is ignored.
func decodeFirst(s string) ([]any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, false
	}
	return items, true
}

func opensObject(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return strings.HasPrefix(s, "{")
}

func stripFences(t string) string {
	if !strings.HasPrefix(t, "```") {
		return t
	}
	if i := strings.Index(t, "\n"); i >= 0 {
		t = t[i+1:]
	} else {
		return ""
	}
	if j := strings.LastIndex(t, "```"); j >= 0 {
		t = t[:j]
	}
	return strings.TrimSpace(t)
}

func compact(s string) string {
	var b bytes.Buffer
	if err := json.Compact(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
