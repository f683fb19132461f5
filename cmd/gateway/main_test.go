package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"honest-grader/internal/app"
	"honest-grader/internal/config"
	"honest-grader/internal/grading"
	"honest-grader/internal/llm"
	"honest-grader/internal/logger"
	"honest-grader/internal/queue"
	"honest-grader/internal/rubric"
	"honest-grader/internal/store"
	"honest-grader/internal/web"
)

const modelReply = `{
  "assumptions": [],
  "rubric_breakdown": [{"criterion": "Thesis", "score": 8, "max_score": 10, "why": "Clear claim", "how_to_improve": ["Narrow it"]}],
  "overall_score": 8,
  "overall_max": 10,
  "letter_grade": "",
  "strengths": ["Confident voice"],
  "top_fixes": ["Add evidence for paragraph two"],
  "rewrite_suggestions": [],
  "final_comment": "Solid draft."
}`

func newTestDeps(t *testing.T, l *llm.MockClient, st store.Store, q queue.Queue) app.Deps {
	t.Helper()
	l.On("Model").Return("llama3.1:8b").Maybe()
	lib, err := rubric.Load("")
	require.NoError(t, err)
	svc, err := grading.NewService(grading.ServiceConfig{LLM: l, Rubrics: lib, Temperature: 0.2})
	require.NoError(t, err)
	return app.Deps{
		Config: config.Config{
			MaxUploadSize: 1024 * 1024, // 1MB for tests
			OllamaHost:    "http://localhost:11434",
			LLMTimeout:    time.Second,
		},
		Log:     logger.Discard(),
		LLM:     l,
		Grader:  svc,
		Rubrics: lib,
		Store:   st,
		Queue:   q,
	}
}

func newTestServer(t *testing.T, deps app.Deps) http.Handler {
	t.Helper()
	pages, err := web.New()
	require.NoError(t, err)
	return newRouter(deps, pages)
}

func validRequest() grading.Request {
	return grading.Request{
		AssignmentType: "Argumentative essay",
		GradeLevel:     "10th grade",
		Rubric:         "Thesis (10)",
		StudentWork:    "School should start later because teenagers need sleep.",
		Strictness:     "medium",
	}
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGradeAPI(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		setup      func(*llm.MockClient)
		wantStatus int
		check      func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name: "graded",
			body: validRequest(),
			setup: func(l *llm.MockClient) {
				l.On("Chat", mock.Anything, mock.AnythingOfType("llm.ChatRequest")).
					Return(llm.ChatResponse{Content: modelReply, Model: "llama3.1:8b"}, nil).Once()
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var res grading.Result
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
				assert.Equal(t, "B-", res.LetterGrade)
				assert.Equal(t, 80.0, res.Percent)
				assert.True(t, res.Parsed)
				assert.Equal(t, []string{"Add evidence for paragraph two"}, res.TopFixes)
			},
		},
		{
			name:       "missing fields",
			body:       grading.Request{AssignmentType: "Essay"},
			setup:      func(*llm.MockClient) {},
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var body map[string]any
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				fields := body["fields"].(map[string]any)
				assert.Contains(t, fields, "grade_level")
				assert.Contains(t, fields, "student_work")
				assert.Contains(t, fields, "rubric")
			},
		},
		{
			name:       "invalid json",
			body:       "not an object",
			setup:      func(*llm.MockClient) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "model unreachable",
			body: validRequest(),
			setup: func(l *llm.MockClient) {
				l.On("Chat", mock.Anything, mock.Anything).
					Return(llm.ChatResponse{}, errors.New("connection refused")).Once()
			},
			wantStatus: http.StatusBadGateway,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, rec.Body.String(), "is Ollama running")
			},
		},
		{
			name: "non json reply falls back",
			body: validRequest(),
			setup: func(l *llm.MockClient) {
				l.On("Chat", mock.Anything, mock.Anything).
					Return(llm.ChatResponse{Content: "I think this is a B.", Model: "llama3.1:8b"}, nil).Once()
			},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				var res grading.Result
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
				assert.False(t, res.Parsed)
				assert.Equal(t, "N/A", res.LetterGrade)
				assert.Equal(t, "I think this is a B.", res.FinalComment)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := new(llm.MockClient)
			tt.setup(l)
			h := newTestServer(t, newTestDeps(t, l, nil, nil))

			rec := postJSON(t, h, "/api/grade", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.check != nil {
				tt.check(t, rec)
			}
			l.AssertExpectations(t)
		})
	}
}

func TestGradeAPIPersistsWhenStoreEnabled(t *testing.T) {
	l := new(llm.MockClient)
	l.On("Chat", mock.Anything, mock.Anything).
		Return(llm.ChatResponse{Content: modelReply, Model: "llama3.1:8b"}, nil).Once()
	st := new(store.MockStore)
	id := uuid.New()
	st.On("CreateGrading", mock.Anything, mock.AnythingOfType("grading.Request")).
		Return(store.Grading{ID: id, Status: store.StatusPending}, nil).Once()
	st.On("SaveResult", mock.Anything, id, mock.AnythingOfType("grading.Result")).Return(nil).Once()

	h := newTestServer(t, newTestDeps(t, l, st, nil))
	rec := postJSON(t, h, "/api/grade", validRequest())

	assert.Equal(t, http.StatusOK, rec.Code)
	st.AssertExpectations(t)
}

func TestCreateGradingAPI(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		body       any
		withAsync  bool
		setup      func(*store.MockStore, *queue.MockQueue)
		wantStatus int
	}{
		{
			name:       "disabled without store and queue",
			body:       validRequest(),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:      "accepted",
			body:      validRequest(),
			withAsync: true,
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateGrading", mock.Anything, mock.AnythingOfType("grading.Request")).
					Return(store.Grading{ID: id, Status: store.StatusPending}, nil).Once()
				q.On("Enqueue", mock.Anything, mock.MatchedBy(func(task queue.Task) bool {
					var p queue.GradePayload
					return task.Type == queue.TaskTypeGrade && json.Unmarshal(task.Payload, &p) == nil && p.GradingID == id
				})).Return(nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "validation happens before anything is stored",
			body:       grading.Request{},
			withAsync:  true,
			setup:      func(*store.MockStore, *queue.MockQueue) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:      "enqueue failure marks grading failed",
			body:      validRequest(),
			withAsync: true,
			setup: func(s *store.MockStore, q *queue.MockQueue) {
				s.On("CreateGrading", mock.Anything, mock.Anything).
					Return(store.Grading{ID: id, Status: store.StatusPending}, nil).Once()
				q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("nats down")).Times(3)
				s.On("UpdateGradingStatus", mock.Anything, id, store.StatusFailed, "failed to enqueue grading").Return(nil).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := new(llm.MockClient)
			var deps app.Deps
			st := new(store.MockStore)
			q := new(queue.MockQueue)
			if tt.withAsync {
				tt.setup(st, q)
				deps = newTestDeps(t, l, st, q)
			} else {
				deps = newTestDeps(t, l, nil, nil)
			}
			h := newTestServer(t, deps)

			rec := postJSON(t, h, "/api/gradings", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus == http.StatusAccepted {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, id.String(), body["grading_id"])
				assert.Equal(t, string(store.StatusPending), body["status"])
			}
			st.AssertExpectations(t)
			q.AssertExpectations(t)
			l.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
		})
	}
}

func TestGetGradingAPI(t *testing.T) {
	id := uuid.New()
	res := grading.Result{LetterGrade: "A", Percent: 95, Parsed: true}

	tests := []struct {
		name       string
		path       string
		setup      func(*store.MockStore)
		wantStatus int
	}{
		{
			name: "found",
			path: "/api/gradings/" + id.String(),
			setup: func(s *store.MockStore) {
				s.On("GetGrading", mock.Anything, id).
					Return(store.Grading{ID: id, Status: store.StatusCompleted, Result: &res}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "not found",
			path: "/api/gradings/" + id.String(),
			setup: func(s *store.MockStore) {
				s.On("GetGrading", mock.Anything, id).Return(store.Grading{}, store.ErrGradingNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invalid id",
			path:       "/api/gradings/not-a-uuid",
			setup:      func(*store.MockStore) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "html page",
			path: "/gradings/" + id.String(),
			setup: func(s *store.MockStore) {
				s.On("GetGrading", mock.Anything, id).
					Return(store.Grading{ID: id, Status: store.StatusCompleted, Result: &res}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "html page not found",
			path: "/gradings/" + id.String(),
			setup: func(s *store.MockStore) {
				s.On("GetGrading", mock.Anything, id).Return(store.Grading{}, store.ErrGradingNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := new(store.MockStore)
			tt.setup(st)
			h := newTestServer(t, newTestDeps(t, new(llm.MockClient), st, nil))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			st.AssertExpectations(t)
		})
	}
}

func TestGetGradingDisabled(t *testing.T) {
	h := newTestServer(t, newTestDeps(t, new(llm.MockClient), nil, nil))
	for _, path := range []string{"/api/gradings", "/api/gradings/" + uuid.NewString()} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

func TestListGradingsAPI(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantStatus int
	}{
		{"default limit", "", 20, http.StatusOK},
		{"explicit limit", "?limit=5", 5, http.StatusOK},
		{"limit is capped", "?limit=500", 100, http.StatusOK},
		{"bad limit", "?limit=abc", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := new(store.MockStore)
			if tt.wantStatus == http.StatusOK {
				st.On("ListGradings", mock.Anything, tt.wantLimit).
					Return([]store.Summary{{ID: uuid.New(), Status: store.StatusCompleted}}, nil).Once()
			}
			h := newTestServer(t, newTestDeps(t, new(llm.MockClient), st, nil))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/gradings"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			st.AssertExpectations(t)
		})
	}
}

func TestRubricsAPI(t *testing.T) {
	h := newTestServer(t, newTestDeps(t, new(llm.MockClient), nil, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rubrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Rubrics []rubric.Preset `json:"rubrics"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.NotEmpty(t, body.Rubrics)
}

func TestIndexPage(t *testing.T) {
	h := newTestServer(t, newTestDeps(t, new(llm.MockClient), nil, nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="student_work"`)
	assert.Contains(t, rec.Body.String(), "llama3.1:8b")
}

func TestGradeForm(t *testing.T) {
	form := url.Values{
		"assignment_type": {"Argumentative essay"},
		"grade_level":     {"10th grade"},
		"rubric":          {"Thesis (10)"},
		"student_work":    {"School should start later."},
	}

	t.Run("graded", func(t *testing.T) {
		l := new(llm.MockClient)
		l.On("Chat", mock.Anything, mock.Anything).
			Return(llm.ChatResponse{Content: modelReply, Model: "llama3.1:8b"}, nil).Once()
		h := newTestServer(t, newTestDeps(t, l, nil, nil))

		req := httptest.NewRequest(http.MethodPost, "/grade", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "B-")
		assert.Contains(t, rec.Body.String(), "Add evidence for paragraph two")
	})

	t.Run("validation errors re-render the form", func(t *testing.T) {
		h := newTestServer(t, newTestDeps(t, new(llm.MockClient), nil, nil))
		bad := url.Values{"assignment_type": {"Essay"}, "strictness": {"hard"}}
		req := httptest.NewRequest(http.MethodPost, "/grade", strings.NewReader(bad.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "Student work is required")
		assert.Contains(t, body, `value="Essay"`)
		assert.Contains(t, body, `<option value="hard" selected>hard</option>`)
	})

	t.Run("model unreachable", func(t *testing.T) {
		l := new(llm.MockClient)
		l.On("Chat", mock.Anything, mock.Anything).Return(llm.ChatResponse{}, errors.New("dial tcp: refused")).Once()
		h := newTestServer(t, newTestDeps(t, l, nil, nil))

		req := httptest.NewRequest(http.MethodPost, "/grade", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "Grading model unavailable")
	})
}

func TestGradeFormUpload(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    string
		wantStatus int
		wantBody   string
	}{
		{"text file replaces pasted work", "essay.txt", "Uploaded essay body.", http.StatusOK, "B-"},
		{"unsupported type", "essay.docx", "PK...", http.StatusBadRequest, "must be a UTF-8 .txt or a .pdf file"},
		{"empty file", "essay.txt", "   ", http.StatusBadRequest, "contains no readable text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := new(llm.MockClient)
			if tt.wantStatus == http.StatusOK {
				l.On("Chat", mock.Anything, mock.MatchedBy(func(req llm.ChatRequest) bool {
					return strings.Contains(req.UserPrompt, tt.content)
				})).Return(llm.ChatResponse{Content: modelReply, Model: "llama3.1:8b"}, nil).Once()
			}
			h := newTestServer(t, newTestDeps(t, l, nil, nil))

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			_ = mw.WriteField("assignment_type", "Essay")
			_ = mw.WriteField("grade_level", "9")
			_ = mw.WriteField("rubric_id", "argumentative-essay")
			_ = mw.WriteField("student_work", "pasted text")
			part, err := mw.CreateFormFile("work_file", tt.filename)
			require.NoError(t, err)
			_, _ = part.Write([]byte(tt.content))
			require.NoError(t, mw.Close())

			req := httptest.NewRequest(http.MethodPost, "/grade", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			l.AssertExpectations(t)
		})
	}
}

func TestCreateGradingForm(t *testing.T) {
	id := uuid.New()
	st := new(store.MockStore)
	q := new(queue.MockQueue)
	st.On("CreateGrading", mock.Anything, mock.Anything).Return(store.Grading{ID: id, Status: store.StatusPending}, nil).Once()
	q.On("Enqueue", mock.Anything, mock.Anything).Return(nil).Once()
	h := newTestServer(t, newTestDeps(t, new(llm.MockClient), st, q))

	form := url.Values{
		"assignment_type": {"Essay"},
		"grade_level":     {"9"},
		"rubric":          {"Thesis (10)"},
		"student_work":    {"text"},
	}
	req := httptest.NewRequest(http.MethodPost, "/gradings", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/gradings/"+id.String(), rec.Header().Get("Location"))
	st.AssertExpectations(t)
	q.AssertExpectations(t)
}

func TestHealthAndReadiness(t *testing.T) {
	l := new(llm.MockClient)
	l.On("Ping", mock.Anything).Return(errors.New(`model "llama3.1:8b" not pulled`)).Once()
	h := newTestServer(t, newTestDeps(t, l, nil, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not pulled")
}

func TestRateLimitedGrading(t *testing.T) {
	l := new(llm.MockClient)
	l.On("Chat", mock.Anything, mock.Anything).
		Return(llm.ChatResponse{Content: modelReply, Model: "llama3.1:8b"}, nil).Once()
	deps := newTestDeps(t, l, nil, nil)
	deps.Config.RateLimitRPS = 0.001
	deps.Config.RateLimitBurst = 1
	h := newTestServer(t, deps)

	assert.Equal(t, http.StatusOK, postJSON(t, h, "/api/grade", validRequest()).Code)
	rec := postJSON(t, h, "/api/grade", validRequest())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	l.AssertExpectations(t)
}

func TestGradeFormUnreadableBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantBody string
	}{
		{"malformed multipart", "--xyz\r\nthis is not a part header\r\n", "Uploaded file could not be read"},
		{"oversized body", "--xyz\r\n" + strings.Repeat("a", 3<<20), "upload is too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := new(llm.MockClient)
			h := newTestServer(t, newTestDeps(t, l, nil, nil))

			req := httptest.NewRequest(http.MethodPost, "/grade", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			l.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
		})
	}
}
