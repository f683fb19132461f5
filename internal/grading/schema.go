package grading

import (
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
)

// modelOutput mirrors the model-facing half of Result. Computed fields are
// left out so the model is never asked to invent them.
// Replies are decoded into it with lenient field types, then copied into a Result.
type modelOutput struct {
	Assumptions     stringList       `json:"assumptions"`
	RubricBreakdown []modelCriterion `json:"rubric_breakdown"`
	OverallScore    Number           `json:"overall_score"`
	OverallMax      Number           `json:"overall_max"`
	LetterGrade     text             `json:"letter_grade"`
	Strengths       stringList       `json:"strengths"`
	TopFixes        stringList       `json:"top_fixes"`
	Rewrites        []modelRewrite   `json:"rewrite_suggestions"`
	FinalComment    text             `json:"final_comment"`
}

type modelCriterion struct {
	Criterion    text       `json:"criterion"`
	Score        Number     `json:"score"`
	MaxScore     Number     `json:"max_score"`
	Why          text       `json:"why"`
	HowToImprove stringList `json:"how_to_improve"`
}

type modelRewrite struct {
	OriginalExcerpt text `json:"original_excerpt" jsonschema:"description=Verbatim passage copied from the student work"`
	ImprovedVersion text `json:"improved_version"`
	Reason          text `json:"reason"`
}

func (m modelOutput) result() Result {
	res := Result{
		Assumptions:  m.Assumptions,
		OverallScore: m.OverallScore,
		OverallMax:   m.OverallMax,
		LetterGrade:  strings.TrimSpace(string(m.LetterGrade)),
		Strengths:    m.Strengths,
		TopFixes:     m.TopFixes,
		FinalComment: string(m.FinalComment),
	}
	if m.RubricBreakdown != nil {
		res.RubricBreakdown = make([]Criterion, 0, len(m.RubricBreakdown))
		for _, c := range m.RubricBreakdown {
			res.RubricBreakdown = append(res.RubricBreakdown, Criterion{
				Criterion:    string(c.Criterion),
				Score:        c.Score,
				MaxScore:     c.MaxScore,
				Why:          string(c.Why),
				HowToImprove: c.HowToImprove,
			})
		}
	}
	if m.Rewrites != nil {
		res.RewriteSuggestions = make([]Rewrite, 0, len(m.Rewrites))
		for _, rw := range m.Rewrites {
			res.RewriteSuggestions = append(res.RewriteSuggestions, Rewrite{
				OriginalExcerpt: string(rw.OriginalExcerpt),
				ImprovedVersion: string(rw.ImprovedVersion),
				Reason:          string(rw.Reason),
			})
		}
	}
	return res
}

var resultSchema = sync.OnceValue(func() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	s := reflector.Reflect(&modelOutput{})
	s.Version = ""
	s.ID = ""
	return s
})

// ResultSchema is the JSON schema handed to the model as its output format.
func ResultSchema() any {
	return resultSchema()
}
