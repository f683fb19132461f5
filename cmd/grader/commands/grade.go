package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"honest-grader/internal/extract"
	"honest-grader/internal/grading"
)

type gradeOptions struct {
	rubricFile   string
	rubricPreset string
	workFile     string
	assignment   string
	level        string
	strictness   string
	asJSON       bool
	plain        bool
	width        int
}

func gradeCmd(c *cli) *cobra.Command {
	var opts gradeOptions
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade one piece of work",
		Example: `  grader grade --rubric-preset argumentative-essay --work-file essay.pdf --type "Argumentative essay" --level "10th grade"
  cat answer.txt | grader grade --rubric-file rubric.txt --work-file - --type "Short answer" --level 8 --strictness hard --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGrade(cmd, c, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.rubricFile, "rubric-file", "", "file containing the rubric text")
	f.StringVar(&opts.rubricPreset, "rubric-preset", "", "id of a built-in rubric (see: grader rubrics)")
	f.StringVar(&opts.workFile, "work-file", "", "student work as .txt or .pdf, or - for stdin")
	f.StringVar(&opts.assignment, "type", "", "assignment type, e.g. \"Lab report\"")
	f.StringVar(&opts.level, "level", "", "grade level, e.g. \"9th grade\"")
	f.StringVar(&opts.strictness, "strictness", "medium", "easy, medium or hard")
	f.BoolVar(&opts.asJSON, "json", false, "print the raw result as JSON")
	f.BoolVar(&opts.plain, "plain", false, "print Markdown without terminal styling")
	f.IntVar(&opts.width, "width", 100, "word wrap width for the report")
	cmd.MarkFlagsMutuallyExclusive("rubric-file", "rubric-preset")
	cmd.MarkFlagsOneRequired("rubric-file", "rubric-preset")
	_ = cmd.MarkFlagRequired("work-file")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("level")
	return cmd
}

func runGrade(cmd *cobra.Command, c *cli, opts gradeOptions) error {
	req := grading.Request{
		AssignmentType: opts.assignment,
		GradeLevel:     opts.level,
		RubricID:       opts.rubricPreset,
		Strictness:     opts.strictness,
	}
	if opts.rubricFile != "" {
		b, err := os.ReadFile(opts.rubricFile)
		if err != nil {
			return fmt.Errorf("read rubric: %w", err)
		}
		req.Rubric = string(b)
	}
	work, err := readWork(cmd.InOrStdin(), opts.workFile, c.cfg.MaxUploadSize)
	if err != nil {
		return err
	}
	req.StudentWork = work

	ctx, cancel := context.WithTimeout(cmd.Context(), c.cfg.LLMTimeout+10*time.Second)
	defer cancel()
	res, err := c.core.Grader.Grade(ctx, req)
	if err != nil {
		var verr *grading.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		if errors.Is(err, grading.ErrLLMUnavailable) {
			return fmt.Errorf("%w\nis Ollama running at %s with %q pulled? try: grader ping", err, c.cfg.OllamaHost, c.core.LLM.Model())
		}
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return renderMarkdown(out, res.Markdown(), opts.plain, opts.width)
}

func readWork(stdin io.Reader, path string, maxSize int64) (string, error) {
	if path == "-" {
		return extract.Text(stdin, "stdin.txt", extract.TypeText, maxSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open work file: %w", err)
	}
	defer f.Close()
	text, err := extract.Text(f, filepath.Base(path), "", maxSize)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return text, nil
}

func renderMarkdown(w io.Writer, md string, plain bool, width int) error {
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return err
	}
	styled, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, strings.TrimLeft(styled, "\n"))
	return err
}
