package grading

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseResult decodes a model reply. It tolerates a surrounding Markdown code
// fence (with or without a json/javascript tag) and, failing a direct decode,
// prose around the outermost {...} object.
func ParseResult(raw string) (Result, error) {
	cleaned := stripCodeFence(raw)

	res, err := decodeObject(cleaned)
	if err == nil {
		return res, nil
	}
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if res, innerErr := decodeObject(cleaned[start : end+1]); innerErr == nil {
			return res, nil
		}
	}
	return Result{}, err
}

func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	cleaned = strings.Trim(cleaned, "`")
	lines := strings.Split(cleaned, "\n")
	if len(lines) > 0 {
		switch strings.ToLower(strings.TrimSpace(lines[0])) {
		case "json", "javascript":
			cleaned = strings.Join(lines[1:], "\n")
		}
	}
	return strings.TrimSpace(cleaned)
}

func decodeObject(s string) (Result, error) {
	if !strings.HasPrefix(s, "{") {
		return Result{}, ErrUnparseable
	}
	var out modelOutput
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	res := out.result()
	res.Parsed = true
	return res, nil
}

// Fallback wraps an unparseable reply so the user still sees what the model said.
func Fallback(raw string) Result {
	return Result{
		Assumptions: []string{
			"The model response was not valid JSON.",
			"Grading could not be parsed, so only the raw output is shown.",
		},
		RubricBreakdown:    []Criterion{},
		OverallScore:       Num(0),
		OverallMax:         Num(0),
		LetterGrade:        "N/A",
		Strengths:          []string{},
		TopFixes:           []string{},
		RewriteSuggestions: []Rewrite{},
		FinalComment:       strings.TrimSpace(stripNUL(raw)),
		Parsed:             false,
	}
}
