package grading

import (
	"fmt"
	"strings"
)

// Markdown renders r as a report for terminals and plain-text exports.
func (r Result) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Grade: %s (%s / %s, %.1f%%)\n\n", r.LetterGrade, r.OverallScore, r.OverallMax, r.Percent)
	if !r.Parsed {
		b.WriteString("> The model reply could not be parsed; its raw output is shown below.\n\n")
	}

	if len(r.RubricBreakdown) > 0 {
		b.WriteString("## Rubric breakdown\n\n")
		b.WriteString("| Criterion | Score | Why |\n| --- | --- | --- |\n")
		for _, c := range r.RubricBreakdown {
			fmt.Fprintf(&b, "| %s | %s / %s | %s |\n", cell(c.Criterion), c.Score, c.MaxScore, cell(c.Why))
		}
		b.WriteString("\n")
		for _, c := range r.RubricBreakdown {
			if len(c.HowToImprove) == 0 {
				continue
			}
			fmt.Fprintf(&b, "**%s**: how to improve\n\n", c.Criterion)
			writeList(&b, c.HowToImprove)
		}
	}

	if len(r.TopFixes) > 0 {
		b.WriteString("## Top fixes\n\n")
		for i, f := range r.TopFixes {
			fmt.Fprintf(&b, "%d. %s\n", i+1, f)
		}
		b.WriteString("\n")
	}
	if len(r.Strengths) > 0 {
		b.WriteString("## Strengths\n\n")
		writeList(&b, r.Strengths)
	}

	if len(r.RewriteSuggestions) > 0 {
		b.WriteString("## Rewrite suggestions\n\n")
		for _, rw := range r.RewriteSuggestions {
			fmt.Fprintf(&b, "> %s\n\n", quoteLines(rw.OriginalExcerpt))
			if !rw.ExcerptFound {
				b.WriteString("_(this excerpt does not appear verbatim in the submitted work)_\n\n")
			}
			fmt.Fprintf(&b, "**Improved:** %s\n\n", rw.ImprovedVersion)
			if rw.Reason != "" {
				fmt.Fprintf(&b, "_Why:_ %s\n\n", rw.Reason)
			}
		}
	}

	if len(r.Assumptions) > 0 {
		b.WriteString("## Assumptions\n\n")
		writeList(&b, r.Assumptions)
	}
	if r.FinalComment != "" {
		b.WriteString("## Final comment\n\n")
		b.WriteString(r.FinalComment)
		b.WriteString("\n")
	}
	return b.String()
}

func writeList(b *strings.Builder, items []string) {
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
	b.WriteString("\n")
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}

// quoteLines continues a blockquote across every line of s.
func quoteLines(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\r\n", "\n")
	return strings.ReplaceAll(s, "\n", "\n> ")
}
