// Package web renders the HTML form and result pages.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"honest-grader/internal/grading"
	"honest-grader/internal/rubric"
	"honest-grader/internal/store"
)

//go:embed templates/*.html static/*
var files embed.FS

// Page names accepted by Render.
const (
	PageIndex  = "index.html"
	PageResult = "result.html"
	PageError  = "error.html"
)

var fieldLabels = map[string]string{
	"assignment_type": "Assignment type",
	"grade_level":     "Grade level",
	"rubric":          "Rubric",
	"rubric_id":       "Rubric preset",
	"student_work":    "Student work",
	"work_file":       "Uploaded file",
	"strictness":      "Strictness",
}

var funcs = template.FuncMap{
	"num":   func(n grading.Number) string { return n.String() },
	"pct":   formatPercent,
	"label": label,
}

// Base is embedded by every page.
type Base struct {
	Model string
}

// FormPage is the grading form.
type FormPage struct {
	Base
	Values       grading.Request
	Errors       map[string]string
	Presets      []rubric.Preset
	Strictness   []string
	AsyncEnabled bool
	Recent       []store.Summary
}

// NewFormPage prefills defaults.
func NewFormPage(model string, presets []rubric.Preset) FormPage {
	return FormPage{
		Base:    Base{Model: model},
		Values:  grading.Request{Strictness: string(grading.StrictnessMedium)},
		Presets: presets,
		Strictness: []string{
			string(grading.StrictnessEasy),
			string(grading.StrictnessMedium),
			string(grading.StrictnessHard),
		},
	}
}

// ResultPage shows a finished, pending or failed grading.
type ResultPage struct {
	Base
	GradingID string
	Status    store.Status
	Request   grading.Request
	Result    *grading.Result
	Error     string
}

func (p ResultPage) Pending() bool {
	return p.Status == store.StatusPending || p.Status == store.StatusProcessing
}

func (p ResultPage) Failed() bool { return p.Status == store.StatusFailed }

// ErrorPage is shown for failures that have no better place to go.
type ErrorPage struct {
	Base
	Title   string
	Message string
}

// Renderer holds one parsed template set per page.
type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	r := &Renderer{pages: map[string]*template.Template{}}
	for _, page := range []string{PageIndex, PageResult, PageError} {
		t, err := template.New("layout").Funcs(funcs).ParseFS(files, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Render executes page into a buffer first so a template error never leaves a half-written response.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data any) error {
	t, ok := r.pages[page]
	if !ok {
		return fmt.Errorf("unknown page %q", page)
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// Static serves the embedded stylesheet; mount it under /static/.
func Static() http.Handler {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

func formatPercent(v any) string {
	var f float64
	switch p := v.(type) {
	case float64:
		f = p
	case *float64:
		if p == nil {
			return ""
		}
		f = *p
	default:
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}

func label(field string) string {
	if l, ok := fieldLabels[field]; ok {
		return l
	}
	return strings.ReplaceAll(field, "_", " ")
}
