package intakeapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/linnemanlabs/pulseroute/internal/triage"
	"github.com/linnemanlabs/pulseroute/internal/triage/fifocache"
)

type fakeService struct {
	mu         sync.Mutex
	triageIn   []triage.PatientInput
	clarifyIn  []triage.ClarificationRequest
	triageErr  error
	clarifyErr error
}

func (f *fakeService) Triage(_ context.Context, in triage.PatientInput) (*triage.Record, error) {
	f.mu.Lock()
	f.triageIn = append(f.triageIn, in)
	f.mu.Unlock()
	if f.triageErr != nil {
		return nil, f.triageErr
	}
	return &triage.Record{
		ID:            "01TESTID",
		Patient:       in,
		SeverityScore: 3,
		SeverityLabel: "Moderate",
		CareRoute:     triage.RouteUrgentCare,
		WaitRange:     "20-60",
		Explanation:   "ok",
		Source:        triage.SourceHeuristic,
	}, nil
}

func (f *fakeService) Clarify(_ context.Context, req triage.ClarificationRequest) (*triage.ClarificationResult, error) {
	f.mu.Lock()
	f.clarifyIn = append(f.clarifyIn, req)
	f.mu.Unlock()
	if f.clarifyErr != nil {
		return nil, f.clarifyErr
	}
	return &triage.ClarificationResult{
		SeverityScore: 4,
		SeverityLabel: "High",
		CareRoute:     triage.RouteER,
		WaitRange:     "10-30",
		Explanation:   "ok",
		Source:        triage.SourceHeuristic,
	}, nil
}

func newTestRouter(t *testing.T, svc TriageService) chi.Router {
	t.Helper()
	api := New(nil, svc, nil)
	api.intn = func(int) int { return 0 }
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

//  New / constructor

func TestNew_NilLogger(t *testing.T) {
	t.Parallel()

	api := New(nil, &fakeService{}, nil)
	if api.logger == nil {
		t.Fatal("New(nil, svc, nil) left logger nil; expected Nop logger")
	}
	if api.triageSchema == nil || api.clarifySchema == nil {
		t.Fatal("schemas not compiled")
	}
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	api := New(log.Nop(), &fakeService{}, nil)
	if api.logger == nil {
		t.Fatal("New(logger, svc, nil) left logger nil")
	}
}

func TestNew_NilService_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("New(nil, nil, nil) did not panic; expected panic for nil service")
		}
	}()
	New(nil, nil, nil)
}

// Routing

func TestRegisterRoutes_Methods(t *testing.T) {
	t.Parallel()

	r := newTestRouter(t, &fakeService{})

	tests := []struct {
		method     string
		path       string
		wantStatus int
	}{
		{http.MethodGet, "/api/v1/triage", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/v1/triage", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/v1/clarify", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/v1/clarify", http.StatusMethodNotAllowed},
		{http.MethodGet, "/", http.StatusNotFound},
		{http.MethodGet, "/api/v1", http.StatusNotFound},
		{http.MethodPost, "/api/v2/triage", http.StatusNotFound},
		{http.MethodPost, "/api/triage", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.wantStatus)
			}
		})
	}
}

// Triage

func TestHandleTriage_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"invalid JSON", `{bad`, "invalid payload"},
		{"missing symptoms", `{"name":"Ana"}`, symptomsRequired},
		{"empty symptoms", `{"symptoms":""}`, symptomsRequired},
		{"non-string symptoms", `{"symptoms":42}`, symptomsRequired},
		{"wrong vitals type", `{"symptoms":"cough","vitals":[1,2]}`, "invalid payload"},
		{"array body", `[]`, symptomsRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{}
			rec := post(t, newTestRouter(t, svc), "/api/v1/triage", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if got := decodeError(t, rec); got != tt.wantMsg {
				t.Errorf("error = %q, want %q", got, tt.wantMsg)
			}
			if len(svc.triageIn) != 0 {
				t.Error("service should not be called for rejected payloads")
			}
		})
	}
}

func TestHandleTriage_CoercesInput(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	body := `{"name":"  Ana ","age":"41.6","symptoms":"sprained ankle","vitals":{"hr":88},"history":"asthma"}`
	rec := post(t, newTestRouter(t, svc), "/api/v1/triage", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	in := svc.triageIn[0]
	if in.Name != "Ana" {
		t.Errorf("name = %q, want Ana", in.Name)
	}
	if in.Age == nil || *in.Age != 42 {
		t.Errorf("age = %v, want 42", in.Age)
	}
	if in.History != "asthma" {
		t.Errorf("history = %q", in.History)
	}

	var resp struct {
		Triage   triage.Record `json:"triage"`
		Forecast struct {
			PredictedLoadNextHour map[string]int `json:"predictedLoadNextHour"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Triage.ID != "01TESTID" {
		t.Errorf("triage id = %q", resp.Triage.ID)
	}
	want := map[string]int{"er": 8, "urgent_care": 7, "telehealth": 3}
	for route, n := range want {
		if resp.Forecast.PredictedLoadNextHour[route] != n {
			t.Errorf("forecast[%s] = %d, want %d", route, resp.Forecast.PredictedLoadNextHour[route], n)
		}
	}
}

func TestHandleTriage_ServiceErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"validation", fmt.Errorf("%w: age must be non-negative", triage.ErrValidation), http.StatusBadRequest, "age must be non-negative"},
		{"unavailable", fmt.Errorf("%w: %w", triage.ErrServiceUnavailable, triage.ErrGatewayTimeout), http.StatusServiceUnavailable, "Unable to triage right now."},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "Unable to triage right now."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := post(t, newTestRouter(t, &fakeService{triageErr: tt.err}), "/api/v1/triage", `{"symptoms":"cough"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := decodeError(t, rec); got != tt.wantMsg {
				t.Errorf("error = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestParseAge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want *int
	}{
		{float64(30), ptr(30)},
		{float64(29.5), ptr(30)},
		{" 7 ", ptr(7)},
		{float64(-3), ptr(-3)},
		{"", nil},
		{"old", nil},
		{nil, nil},
		{true, nil},
		{float64(1e12), nil},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			t.Parallel()

			got := parseAge(tt.in)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("parseAge(%v) = %d, want nil", tt.in, *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("parseAge(%v) = %v, want %d", tt.in, got, *tt.want)
			}
		})
	}
}

func ptr(v int) *int { return &v }

// Clarify

func TestHandleClarify_CoercesRequest(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	body := `{
		"symptoms": "headache",
		"clarifyingQuestions": ["Sudden onset?", "Worst ever?"],
		"answers": {"0": true, "1": "no", "x": true},
		"baseSeverity": "High",
		"baseRoute": "urgent_care",
		"baseWaitRange": " 20-60 ",
		"patient": {"id": 1234}
	}`
	rec := post(t, newTestRouter(t, svc), "/api/v1/clarify", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	req := svc.clarifyIn[0]
	if req.BaseSeverity != 4 {
		t.Errorf("base severity = %d, want 4", req.BaseSeverity)
	}
	if req.BaseRoute != triage.RouteUrgentCare {
		t.Errorf("base route = %q", req.BaseRoute)
	}
	if req.BaseWaitRange != "20-60" {
		t.Errorf("base wait = %q", req.BaseWaitRange)
	}
	if req.Patient.ID != "1234" {
		t.Errorf("patient id = %q, want 1234", req.Patient.ID)
	}
	if len(req.Answers) != 2 || !req.Answers[0] || req.Answers[1] {
		t.Errorf("answers = %v, want map[0:true 1:false]", req.Answers)
	}

	var resp clarifyResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Triage == nil || resp.Triage.CareRoute != triage.RouteER {
		t.Errorf("triage = %+v", resp.Triage)
	}
}

func TestHandleClarify_NullQuestionKeepsPosition(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	body := `{
		"symptoms": "headache",
		"clarifyingQuestions": ["Sudden onset?", null, 3],
		"answers": {"2": true}
	}`
	rec := post(t, newTestRouter(t, svc), "/api/v1/clarify", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	got := svc.clarifyIn[0].ClarifyingQuestions
	want := []string{"Sudden onset?", "", "3"}
	if len(got) != len(want) {
		t.Fatalf("questions = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("question %d = %q, want %q", i, got[i], want[i])
		}
	}
	if !svc.clarifyIn[0].Answers[2] {
		t.Errorf("answers = %v, want index 2 kept", svc.clarifyIn[0].Answers)
	}
}

func TestHandleClarify_BaseSeverityOutOfRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		body string
		want int
	}{
		{`{"symptoms":"x","baseSeverity":9}`, 5},
		{`{"symptoms":"x","baseSeverity":"garbage"}`, 0},
		{`{"symptoms":"x"}`, 0},
		{`{"symptoms":"x","baseSeverity":-2}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			t.Parallel()

			svc := &fakeService{}
			rec := post(t, newTestRouter(t, svc), "/api/v1/clarify", tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := svc.clarifyIn[0].BaseSeverity; got != tt.want {
				t.Errorf("base severity = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleClarify_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"missing symptoms", `{"answers":{"0":true}}`, symptomsRequired},
		{"answers not object", `{"symptoms":"x","answers":[true]}`, "invalid payload"},
		{"questions not array", `{"symptoms":"x","clarifyingQuestions":"q"}`, "invalid payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := post(t, newTestRouter(t, &fakeService{}), "/api/v1/clarify", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := decodeError(t, rec); got != tt.wantMsg {
				t.Errorf("error = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestHandleClarify_ServiceUnavailable(t *testing.T) {
	t.Parallel()

	svc := &fakeService{clarifyErr: fmt.Errorf("%w: down", triage.ErrServiceUnavailable)}
	rec := post(t, newTestRouter(t, svc), "/api/v1/clarify", `{"symptoms":"x"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decodeError(t, rec); got != "Unable to process clarifying answers." {
		t.Errorf("error = %q", got)
	}
}

func TestTruthy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{float64(1), true},
		{float64(0), false},
		{"yes", true},
		{"Y", true},
		{"no", false},
		{"false", false},
		{"", false},
		{"sometimes", true},
		{nil, false},
	}

	for _, tt := range tests {
		if got := truthy(tt.in); got != tt.want {
			t.Errorf("truthy(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// End to end through the real service with the heuristic engine.

func newLiveRouter(t *testing.T) (chi.Router, *triage.Metrics) {
	t.Helper()
	metrics := triage.NewMetrics(prometheus.NewRegistry())
	cache, err := fifocache.New(triage.DefaultCacheSize, metrics.OnEvict)
	if err != nil {
		t.Fatalf("fifocache.New: %v", err)
	}
	engine := triage.NewEngine(nil, true, log.Nop(), metrics.Hooks())
	svc := triage.NewService(cache, engine, log.Nop(), metrics, nil)

	api := New(log.Nop(), svc, metrics)
	r := chi.NewRouter()
	api.RegisterRoutes(r)
	return r, metrics
}

func TestLive_TriageThenClarifyIsIdempotent(t *testing.T) {
	t.Parallel()

	r, metrics := newLiveRouter(t)

	rec := post(t, r, "/api/v1/triage", `{"symptoms":"fever and vomiting since last night","age":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("triage status = %d: %s", rec.Code, rec.Body.String())
	}
	var tr struct {
		Triage triage.Record `json:"triage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Triage.SeverityScore != 3 || tr.Triage.CareRoute != triage.RouteUrgentCare {
		t.Fatalf("triage = %d/%s, want 3/urgent_care", tr.Triage.SeverityScore, tr.Triage.CareRoute)
	}
	if tr.Triage.Source != triage.SourceHeuristic {
		t.Errorf("source = %q, want heuristic", tr.Triage.Source)
	}

	questions, _ := json.Marshal(tr.Triage.ClarifyingQuestions)
	clarify := func(base int) triage.ClarificationResult {
		body := fmt.Sprintf(`{"symptoms":%q,"clarifyingQuestions":%s,"answers":{"0":true},"baseSeverity":%d,"baseRoute":%q,"baseWaitRange":%q}`,
			"fever and vomiting since last night", questions, base, tr.Triage.CareRoute, tr.Triage.WaitRange)
		rec := post(t, r, "/api/v1/clarify", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("clarify status = %d: %s", rec.Code, rec.Body.String())
		}
		var cr clarifyResponse
		if err := json.NewDecoder(rec.Body).Decode(&cr); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return *cr.Triage
	}

	first := clarify(tr.Triage.SeverityScore)
	if first.SeverityScore != 4 {
		t.Fatalf("first clarify severity = %d, want 4", first.SeverityScore)
	}

	// resubmitting with the adjusted severity must not stack
	second := clarify(first.SeverityScore)
	if second != first {
		t.Errorf("second clarify = %+v, want cached %+v", second, first)
	}

	if got := testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("hit")); got != 1 {
		t.Errorf("cache hits = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.SubmitsTotal.WithLabelValues("clarify", "ok")); got != 2 {
		t.Errorf("clarify submits = %v, want 2", got)
	}
}

func TestLive_WhitespaceSymptoms(t *testing.T) {
	t.Parallel()

	r, _ := newLiveRouter(t)
	rec := post(t, r, "/api/v1/triage", `{"symptoms":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decodeError(t, rec); got != symptomsRequired {
		t.Errorf("error = %q, want %q", got, symptomsRequired)
	}
}
