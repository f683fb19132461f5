package main

import (
	"errors"
	"fmt"
	"net/http"

	"honest-grader/internal/app"
	"honest-grader/internal/extract"
	"honest-grader/internal/grading"
	"honest-grader/internal/httputil"
	"honest-grader/internal/store"
	"honest-grader/internal/web"
)

// multipart overhead allowed on top of MAX_UPLOAD_SIZE for the text fields.
const formSlack = 1 << 20

func indexHandler(deps app.Deps, pages *web.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := formPage(deps)
		if deps.Store != nil {
			recent, err := deps.Store.ListGradings(r.Context(), 10)
			if err != nil {
				deps.Log.Warn("failed to list recent gradings", "err", err)
			}
			page.Recent = recent
		}
		render(deps, w, pages, http.StatusOK, web.PageIndex, page)
	}
}

func gradeFormHandler(deps app.Deps, pages *web.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, fieldErrs := readForm(deps, w, r)
		if len(fieldErrs) > 0 {
			renderFormErrors(deps, w, pages, req, fieldErrs)
			return
		}

		res, err := deps.Grader.Grade(r.Context(), req)
		if err != nil {
			failGradePage(deps, w, pages, req, err)
			return
		}

		page := web.ResultPage{
			Base:    web.Base{Model: deps.LLM.Model()},
			Status:  store.StatusCompleted,
			Request: req.Normalize(),
			Result:  &res,
		}
		if deps.Store != nil {
			g, err := persistResult(r.Context(), deps, req, res)
			if err != nil {
				deps.Log.Warn("failed to persist grading", "err", err)
			} else {
				page.GradingID = g.ID.String()
				page.Request = g.Request
			}
		}
		render(deps, w, pages, http.StatusOK, web.PageResult, page)
	}
}

func createGradingFormHandler(deps app.Deps, pages *web.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !asyncEnabled(deps) {
			renderError(deps, w, pages, http.StatusServiceUnavailable, "Background grading is off",
				"Background grading needs a database and a queue. Use the Grade button instead.")
			return
		}
		req, fieldErrs := readForm(deps, w, r)
		if len(fieldErrs) > 0 {
			renderFormErrors(deps, w, pages, req, fieldErrs)
			return
		}
		g, err := enqueueGrading(r.Context(), deps, req)
		if err != nil {
			failGradePage(deps, w, pages, req, err)
			return
		}
		http.Redirect(w, r, "/gradings/"+g.ID.String(), http.StatusSeeOther)
	}
}

func gradingPageHandler(deps app.Deps, pages *web.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, status, err := loadGrading(deps, r)
		if err != nil {
			renderError(deps, w, pages, status, http.StatusText(status), err.Error())
			return
		}
		render(deps, w, pages, http.StatusOK, web.PageResult, web.ResultPage{
			Base:      web.Base{Model: deps.LLM.Model()},
			GradingID: g.ID.String(),
			Status:    g.Status,
			Request:   g.Request,
			Result:    g.Result,
			Error:     g.Error,
		})
	}
}

// readForm builds a request from the submitted form. An uploaded file replaces
// pasted work.
func readForm(deps app.Deps, w http.ResponseWriter, r *http.Request) (grading.Request, map[string]string) {
	maxUpload := deps.Config.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+formSlack)
	if err := r.ParseMultipartForm(maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		deps.Log.Warn("failed to parse form", "err", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || r.ContentLength > maxUpload+formSlack {
			return grading.Request{}, map[string]string{"work_file": fmt.Sprintf("upload is too large (max %d bytes)", maxUpload)}
		}
		return grading.Request{}, map[string]string{"work_file": "could not be read"}
	}

	req := grading.Request{
		AssignmentType: r.FormValue("assignment_type"),
		GradeLevel:     r.FormValue("grade_level"),
		Rubric:         r.FormValue("rubric"),
		RubricID:       r.FormValue("rubric_id"),
		StudentWork:    r.FormValue("student_work"),
		Strictness:     r.FormValue("strictness"),
	}

	file, header, err := r.FormFile("work_file")
	switch {
	case err == nil:
		defer file.Close()
		text, err := extract.Text(file, header.Filename, header.Header.Get("Content-Type"), maxUpload)
		if err != nil {
			deps.Log.Warn("failed to extract upload", "filename", header.Filename, "err", err)
			return req, map[string]string{"work_file": uploadMessage(err)}
		}
		req.StudentWork = text
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		deps.Log.Warn("failed to read upload", "err", err)
		return req, map[string]string{"work_file": "could not be read"}
	}
	return req, nil
}

func uploadMessage(err error) string {
	switch {
	case errors.Is(err, extract.ErrUnsupportedType):
		return "must be a UTF-8 .txt or a .pdf file"
	case errors.Is(err, extract.ErrTooLarge):
		return "is too large"
	case errors.Is(err, extract.ErrNoText):
		return "contains no readable text"
	default:
		return "could not be read"
	}
}

func failGradePage(deps app.Deps, w http.ResponseWriter, pages *web.Renderer, req grading.Request, err error) {
	if fields, ok := httputil.FieldErrors(err); ok {
		renderFormErrors(deps, w, pages, req, fields)
		return
	}
	if errors.Is(err, grading.ErrLLMUnavailable) {
		deps.Log.Error("grading model unavailable", "err", err)
		renderError(deps, w, pages, http.StatusBadGateway, "Grading model unavailable", modelUnavailableMessage(deps))
		return
	}
	deps.Log.Error("grading failed", "err", err)
	renderError(deps, w, pages, http.StatusInternalServerError, "Grading failed", "Something went wrong while grading. Please try again.")
}

func formPage(deps app.Deps) web.FormPage {
	page := web.NewFormPage(deps.LLM.Model(), deps.Rubrics.List())
	page.AsyncEnabled = asyncEnabled(deps)
	return page
}

func renderFormErrors(deps app.Deps, w http.ResponseWriter, pages *web.Renderer, req grading.Request, fields map[string]string) {
	page := formPage(deps)
	page.Values = req
	page.Values.Strictness = string(grading.NormalizeStrictness(req.Strictness))
	page.Errors = fields
	render(deps, w, pages, http.StatusBadRequest, web.PageIndex, page)
}

func renderError(deps app.Deps, w http.ResponseWriter, pages *web.Renderer, status int, title, message string) {
	render(deps, w, pages, status, web.PageError, web.ErrorPage{
		Base:    web.Base{Model: deps.LLM.Model()},
		Title:   title,
		Message: message,
	})
}

func render(deps app.Deps, w http.ResponseWriter, pages *web.Renderer, status int, page string, data any) {
	if err := pages.Render(w, status, page, data); err != nil {
		httputil.Fail(deps.Log, w, "failed to render page", err, http.StatusInternalServerError)
	}
}
