package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGrading(t *testing.T) {
	m := New()
	m.ObserveGrading(OutcomeParsed)
	m.ObserveGrading(OutcomeParsed)
	m.ObserveGrading(OutcomeFallback)

	if got := testutil.ToFloat64(m.gradings.WithLabelValues(OutcomeParsed)); got != 2 {
		t.Errorf("parsed count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.gradings.WithLabelValues(OutcomeFallback)); got != 1 {
		t.Errorf("fallback count = %v, want 1", got)
	}
}

func TestObserveLLMTokens(t *testing.T) {
	m := New()
	m.ObserveLLM(3*time.Second, 100, 40)
	m.ObserveLLM(time.Second, 50, 10)

	if got := testutil.ToFloat64(m.tokens.WithLabelValues("prompt")); got != 150 {
		t.Errorf("prompt tokens = %v, want 150", got)
	}
	if got := testutil.ToFloat64(m.tokens.WithLabelValues("completion")); got != 50 {
		t.Errorf("completion tokens = %v, want 50", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveGrading(OutcomeError)
	m.ObserveLLM(time.Second, 1, 1)
	m.ObserveHTTP("GET", "/", "200", time.Millisecond)
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 from nil metrics handler, got %d", w.Code)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveGrading(OutcomeCached)
	m.ObserveHTTP("POST", "/grade", "200", 2*time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`grader_gradings_total{outcome="cached"} 1`,
		`grader_http_request_duration_seconds_count{method="POST",route="/grade",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}
