package grading

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/invopop/jsonschema"
)

// text is a string field that also takes numbers, booleans or null from the
// model. Anything that is not a JSON string keeps its literal form.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	*t = text(lenientString(b))
	return nil
}

func (text) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string"}
}

// stringList is a list of strings that also takes a single string, a scalar,
// or null. Null and empty entries are dropped.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	*l = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	if b[0] != '[' {
		if s := lenientString(b); s != "" {
			*l = stringList{s}
		}
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		if s := lenientString(item); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

func (stringList) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "string"}}
}

// lenientString renders one JSON value as text. NUL bytes are removed because
// Postgres rejects them in TEXT and JSONB columns.
func lenientString(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			return stripNUL(s)
		}
	}
	return stripNUL(string(b))
}

func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
