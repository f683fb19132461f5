package grading

import (
	"math"
	"strings"
)

const defaultCriterionMax = 10

// Finalize fills in whatever the model left out: overall totals from the
// breakdown, the percentage, a letter grade, and excerpt checks against work.
func Finalize(r *Result, work string) {
	if !r.OverallScore.Valid || !r.OverallMax.Valid {
		var total, totalMax float64
		for _, c := range r.RubricBreakdown {
			score, maxScore := 0.0, float64(defaultCriterionMax)
			if c.Score.Valid {
				score = c.Score.Value
			}
			if c.MaxScore.Valid {
				maxScore = c.MaxScore.Value
			}
			total += score
			totalMax += maxScore
		}
		if !r.OverallScore.Valid {
			r.OverallScore = Num(total)
		}
		if !r.OverallMax.Valid {
			r.OverallMax = Num(totalMax)
		}
	}

	pct := 0.0
	if r.OverallMax.Value > 0 {
		pct = r.OverallScore.Value / r.OverallMax.Value * 100
	}
	if strings.TrimSpace(r.LetterGrade) == "" {
		r.LetterGrade = LetterGrade(pct)
	}
	r.Percent = math.Round(pct*10) / 10

	normWork := normalizeText(work)
	for i := range r.RewriteSuggestions {
		r.RewriteSuggestions[i].ExcerptFound = excerptIn(normWork, r.RewriteSuggestions[i].OriginalExcerpt)
	}
}

var letterCutoffs = []struct {
	min    float64
	letter string
}{
	{97, "A+"}, {93, "A"}, {90, "A-"},
	{87, "B+"}, {83, "B"}, {80, "B-"},
	{77, "C+"}, {73, "C"}, {70, "C-"},
	{67, "D+"}, {63, "D"}, {60, "D-"},
}

// LetterGrade maps a percentage onto the usual US plus/minus scale.
func LetterGrade(pct float64) string {
	for _, c := range letterCutoffs {
		if pct >= c.min {
			return c.letter
		}
	}
	return "F"
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// excerptIn matches an excerpt against already-normalised work, ignoring the
// quotes and ellipses models like to wrap quotations in.
func excerptIn(normWork, excerpt string) bool {
	e := strings.TrimSpace(excerpt)
	for {
		trimmed := strings.Trim(e, "\"'“”‘’ ")
		trimmed = strings.TrimPrefix(trimmed, "...")
		trimmed = strings.TrimSuffix(trimmed, "...")
		trimmed = strings.TrimPrefix(trimmed, "…")
		trimmed = strings.TrimSuffix(trimmed, "…")
		if trimmed == e {
			break
		}
		e = trimmed
	}
	e = normalizeText(e)
	if e == "" {
		return false
	}
	return strings.Contains(normWork, e)
}
