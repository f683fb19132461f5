package grading

import (
	"fmt"
	"strings"
)

const systemPersona = "You are Honest Grader AI, a fair but direct schoolwork grader. " +
	"You follow the rubric exactly, give scores with reasons, and provide actionable fixes. " +
	"You never invent sources or claim you verified facts online. " +
	"If the rubric is unclear, you make reasonable assumptions and state them."

// StrictnessInstructions returns the tone guidance for a strictness level.
func StrictnessInstructions(level string) string {
	switch NormalizeStrictness(level) {
	case StrictnessEasy:
		return "Be supportive but still honest. Assume minor mistakes are common. " +
			"Do not over-penalize small grammar issues unless they hurt clarity."
	case StrictnessHard:
		return "Be strict and direct. Penalize weak evidence, vague claims, sloppy structure, " +
			"and unclear writing. Point out missing requirements explicitly."
	default:
		return "Be balanced and honest. Reward clarity and strong evidence. " +
			"Penalize confusion, missing rubric items, and weak reasoning."
	}
}

// SystemPrompt is the grader persona followed by the strictness guidance.
func SystemPrompt(level string) string {
	return systemPersona + " " + StrictnessInstructions(level)
}

const outputSchema = `{
  "assumptions": ["..."],
  "rubric_breakdown": [
    {
      "criterion": "string",
      "score": number,
      "max_score": number,
      "why": "string",
      "how_to_improve": ["string", "string"]
    }
  ],
  "overall_score": number,
  "overall_max": number,
  "letter_grade": "string",
  "strengths": ["string", "string"],
  "top_fixes": ["string", "string", "string"],
  "rewrite_suggestions": [
    {
      "original_excerpt": "string",
      "improved_version": "string",
      "reason": "string"
    }
  ],
  "final_comment": "string"
}`

const outputRules = `Rules:
- If rubric does not list max scores, assume each criterion is out of 10.
- Use short, specific "why" explanations tied to the student work.
- If something is missing, say exactly what is missing.
- Rewrite suggestions must use excerpts from the student work.`

// UserPrompt lays out the assignment, the authoritative rubric, the work and
// the JSON contract the model must answer with.
func UserPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ASSIGNMENT TYPE: %s\n", req.AssignmentType)
	fmt.Fprintf(&b, "GRADE LEVEL: %s\n", req.GradeLevel)
	fmt.Fprintf(&b, "STRICTNESS MODE: %s\n\n", NormalizeStrictness(req.Strictness))
	b.WriteString("RUBRIC (authoritative):\n")
	b.WriteString(req.Rubric)
	b.WriteString("\n\nSTUDENT WORK TO GRADE:\n")
	b.WriteString(req.StudentWork)
	b.WriteString("\n\nReturn your output as VALID JSON only (no extra text), matching this schema:\n\n")
	b.WriteString(outputSchema)
	b.WriteString("\n\n")
	b.WriteString(outputRules)
	return b.String()
}
