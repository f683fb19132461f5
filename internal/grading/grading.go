// Package grading turns a rubric and a piece of student work into a prompt,
// asks a language model to grade it, and normalises whatever comes back into
// a Result that the web pages, API and CLI can render.
package grading

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

// Strictness controls how harshly the model is told to grade.
type Strictness string

const (
	StrictnessEasy   Strictness = "easy"
	StrictnessMedium Strictness = "medium"
	StrictnessHard   Strictness = "hard"
)

// NormalizeStrictness lowercases and trims level; anything unknown is medium.
func NormalizeStrictness(level string) Strictness {
	switch Strictness(strings.ToLower(strings.TrimSpace(level))) {
	case StrictnessEasy:
		return StrictnessEasy
	case StrictnessHard:
		return StrictnessHard
	default:
		return StrictnessMedium
	}
}

var (
	// ErrLLMUnavailable wraps transport failures talking to the model.
	ErrLLMUnavailable = errors.New("grading model unavailable")
	// ErrUnparseable is returned by ParseResult when no JSON object can be recovered.
	ErrUnparseable = errors.New("model output is not a JSON object")
)

// Request is what a teacher or student submits for grading.
type Request struct {
	AssignmentType string `json:"assignment_type" validate:"required,max=200"`
	GradeLevel     string `json:"grade_level" validate:"required,max=200"`
	Rubric         string `json:"rubric" validate:"required_without=RubricID"`
	RubricID       string `json:"rubric_id,omitempty" validate:"omitempty,max=100"`
	StudentWork    string `json:"student_work" validate:"required"`
	Strictness     string `json:"strictness"`
}

// Normalize trims free-text fields, drops NUL bytes and canonicalises strictness.
func (r Request) Normalize() Request {
	clean := func(s string) string { return strings.TrimSpace(stripNUL(s)) }
	r.AssignmentType = clean(r.AssignmentType)
	r.GradeLevel = clean(r.GradeLevel)
	r.Rubric = clean(r.Rubric)
	r.RubricID = clean(r.RubricID)
	r.StudentWork = clean(r.StudentWork)
	r.Strictness = string(NormalizeStrictness(r.Strictness))
	return r
}

// Result is the graded output. Fields up to FinalComment come from the model;
// the rest are computed locally.
type Result struct {
	Assumptions        []string    `json:"assumptions"`
	RubricBreakdown    []Criterion `json:"rubric_breakdown"`
	OverallScore       Number      `json:"overall_score"`
	OverallMax         Number      `json:"overall_max"`
	LetterGrade        string      `json:"letter_grade"`
	Strengths          []string    `json:"strengths"`
	TopFixes           []string    `json:"top_fixes"`
	RewriteSuggestions []Rewrite   `json:"rewrite_suggestions"`
	FinalComment       string      `json:"final_comment"`

	Percent float64 `json:"percent"`
	// Parsed is false when the model reply could not be decoded and Fallback was used.
	Parsed bool   `json:"parsed"`
	Model  string `json:"model,omitempty"`
	Cached bool   `json:"cached"`
}

// Criterion is one rubric line.
type Criterion struct {
	Criterion    string   `json:"criterion"`
	Score        Number   `json:"score"`
	MaxScore     Number   `json:"max_score"`
	Why          string   `json:"why"`
	HowToImprove []string `json:"how_to_improve"`
}

// Rewrite is a suggested improvement to a passage of the student work.
type Rewrite struct {
	OriginalExcerpt string `json:"original_excerpt"`
	ImprovedVersion string `json:"improved_version"`
	Reason          string `json:"reason"`
	// ExcerptFound reports whether OriginalExcerpt actually occurs in the work.
	ExcerptFound bool `json:"excerpt_found"`
}

// Number is a lenient numeric field. Models emit numbers, numeric strings,
// nulls or garbage; anything that is not a finite number is left unset.
type Number struct {
	Value float64
	Valid bool
}

// Num returns a set Number.
func Num(v float64) Number { return Number{Value: v, Valid: true} }

func (n *Number) UnmarshalJSON(b []byte) error {
	*n = Number{}
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return nil
		}
		s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = Num(f)
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'f', -1, 64)), nil
}

// JSONSchema describes Number as a plain JSON number.
func (Number) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "number"}
}

// String renders the value without trailing zeros, or "?" when unset.
func (n Number) String() string {
	if !n.Valid {
		return "?"
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}
