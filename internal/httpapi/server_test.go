package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ent0n29/dailyquote/internal/config"
	"github.com/ent0n29/dailyquote/internal/content"
	"github.com/ent0n29/dailyquote/internal/generation"
	"github.com/ent0n29/dailyquote/internal/objectstore"
	"github.com/ent0n29/dailyquote/internal/observability"
	"github.com/ent0n29/dailyquote/internal/ratelimit"
)

var testToday = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

type stubGenerator struct {
	mu     sync.Mutex
	calls  []generation.Options
	result generation.Result
	err    error
}

func (g *stubGenerator) Generate(_ context.Context, opts generation.Options) (generation.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, opts)
	return g.result, g.err
}

func (g *stubGenerator) Today() time.Time { return testToday }

func (g *stubGenerator) Calls() []generation.Options {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Options(nil), g.calls...)
}

type testEnv struct {
	gen     *stubGenerator
	records *content.InMemoryStore
	media   *objectstore.MemoryStore
	ts      *httptest.Server
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	if cfg.Env == "" {
		cfg.Env = config.EnvDevelopment
	}
	audioURL := "http://localhost/media/daily-audio/2026-03-15-abc.mp3"
	env := &testEnv{
		gen: &stubGenerator{result: generation.Result{
			Outcome:        generation.OutcomeGenerated,
			Category:       content.CategoryWisdom,
			VoiceGenerated: true,
			AudioURL:       audioURL,
			Record: content.Record{
				ID:          "abc",
				Content:     "Small steps every day build a life you are proud of.",
				Category:    content.CategoryWisdom,
				DateCreated: testToday,
				AudioURL:    &audioURL,
			},
		}},
		records: content.NewInMemoryStore(),
		media:   objectstore.NewMemoryStore("http://localhost"),
	}
	guard := ratelimit.NewGuard(ratelimit.New(ratelimit.NewMemoryStore()), zerolog.Nop(), nil)
	srv := New(cfg, env.gen, env.records, env.media, guard, zerolog.Nop(), nil)
	env.ts = httptest.NewServer(srv.Router())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	var decoded map[string]any
	if strings.HasPrefix(res.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode %s %s body %q: %v", method, path, raw, err)
		}
	}
	return res, decoded
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	res, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	if res.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("healthz = %d %v", res.StatusCode, body)
	}
	res, body = env.do(t, http.MethodGet, "/readyz", "", nil)
	if res.StatusCode != http.StatusOK || body["store_mode"] != "in-memory" {
		t.Fatalf("readyz = %d %v", res.StatusCode, body)
	}
	res, _ = env.do(t, http.MethodGet, "/api/perf/stages", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("perf stages status = %d", res.StatusCode)
	}
}

func TestScheduledTriggerAuthorization(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"wrong secret", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"secret", map[string]string{"Authorization": "Bearer cron-secret"}, http.StatusOK},
		{"scheduler marker", map[string]string{ScheduledTriggerHeader: "true"}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, config.Config{Env: config.EnvProduction, CronSecret: "cron-secret"})
			res, body := env.do(t, http.MethodGet, "/api/cron/generate", "", tc.headers)
			if res.StatusCode != tc.want {
				t.Fatalf("status = %d, want %d (%v)", res.StatusCode, tc.want, body)
			}
			wantCalls := 0
			if tc.want == http.StatusOK {
				wantCalls = 1
			}
			if got := len(env.gen.Calls()); got != wantCalls {
				t.Fatalf("generator calls = %d, want %d", got, wantCalls)
			}
		})
	}
}

func TestScheduledTriggerOpenOutsideProduction(t *testing.T) {
	env := newTestEnv(t, config.Config{CronSecret: "cron-secret"})

	res, body := env.do(t, http.MethodPost, "/api/cron/generate", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if body["success"] != true || body["voiceGenerated"] != true {
		t.Fatalf("body = %v, want success with voice", body)
	}
	if body["audioUrl"] != "http://localhost/media/daily-audio/2026-03-15-abc.mp3" {
		t.Fatalf("audioUrl = %v", body["audioUrl"])
	}
	if body["category"] != "wisdom" {
		t.Fatalf("category = %v", body["category"])
	}
	quote, _ := body["quote"].(map[string]any)
	if quote["date"] != "2026-03-15" || quote["id"] != "abc" {
		t.Fatalf("quote = %v", quote)
	}
	if calls := env.gen.Calls(); len(calls) != 1 || !calls[0].Date.IsZero() || calls[0].Force {
		t.Fatalf("calls = %+v, want one default invocation", calls)
	}
}

func TestManualTriggerValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"category", `{"category":"chaos"}`, "Invalid category"},
		{"date", `{"targetDate":"15-03-2026"}`, "Invalid targetDate"},
		{"calendar", `{"targetDate":"2026-02-30"}`, "Invalid targetDate"},
		{"json", `{"force":"yes"}`, "Invalid JSON body"},
		{"truncated", `{"category":"chaos","force":true`, "Invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, config.Config{})
			res, body := env.do(t, http.MethodPost, "/api/admin/generate", tc.body, nil)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", res.StatusCode)
			}
			msg, _ := body["message"].(string)
			if !strings.Contains(msg, tc.want) || body["success"] != false {
				t.Fatalf("body = %v, want message containing %q", body, tc.want)
			}
			if len(env.gen.Calls()) != 0 {
				t.Fatalf("generator called on invalid input")
			}
		})
	}
}

func TestManualTriggerPassesOptions(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	res, _ := env.do(t, http.MethodPost, "/api/admin/generate", `{"category":"Reflection","force":true,"targetDate":"2026-01-02"}`, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	calls := env.gen.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	got := calls[0]
	if got.Category != content.CategoryReflection || !got.Force || got.Date.Format(content.DateLayout) != "2026-01-02" {
		t.Fatalf("options = %+v", got)
	}
}

func TestManualTriggerEmptyBodyUsesDefaults(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	res, _ := env.do(t, http.MethodPost, "/api/admin/generate", "", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if calls := env.gen.Calls(); len(calls) != 1 || calls[0].Category != "" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestManualTriggerRequiresAdminToken(t *testing.T) {
	env := newTestEnv(t, config.Config{AdminToken: "admin"})

	res, _ := env.do(t, http.MethodPost, "/api/admin/generate", `{}`, map[string]string{"X-Forwarded-For": "10.0.0.1"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.StatusCode)
	}
	res, _ = env.do(t, http.MethodPost, "/api/admin/generate", `{}`, map[string]string{
		"X-Forwarded-For": "10.0.0.2",
		"Authorization":   "Bearer admin",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status with token = %d, want 200", res.StatusCode)
	}
}

func TestGenerateResponseShapes(t *testing.T) {
	rec := content.Record{ID: "r1", Content: "Stay patient with the process.", Category: content.CategoryDiscipline, DateCreated: testToday}

	t.Run("partial", func(t *testing.T) {
		env := newTestEnv(t, config.Config{})
		env.gen.result = generation.Result{
			Outcome:    generation.OutcomePartial,
			Category:   content.CategoryDiscipline,
			Record:     rec,
			VoiceError: "all voice strategies failed: boom",
		}
		res, body := env.do(t, http.MethodPost, "/api/admin/generate", `{}`, nil)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", res.StatusCode)
		}
		if body["success"] != true || body["voiceGenerated"] != false || body["voiceError"] == nil {
			t.Fatalf("body = %v, want partial success", body)
		}
		quote, _ := body["quote"].(map[string]any)
		if quote["audioUrl"] != nil {
			t.Fatalf("quote audioUrl = %v, want null", quote["audioUrl"])
		}
		if _, ok := body["audioUrl"]; ok {
			t.Fatalf("audioUrl present on partial result")
		}
	})

	t.Run("skipped", func(t *testing.T) {
		env := newTestEnv(t, config.Config{})
		env.gen.result = generation.Result{Outcome: generation.OutcomeSkipped, Record: rec, SkipReason: "already_exists"}
		_, body := env.do(t, http.MethodPost, "/api/admin/generate", `{}`, nil)
		if body["success"] != true || body["skipReason"] != "already_exists" {
			t.Fatalf("body = %v", body)
		}
		if _, ok := body["voiceGenerated"]; ok {
			t.Fatalf("voiceGenerated present on skipped result")
		}
		if body["category"] != "discipline" {
			t.Fatalf("category = %v, want record category", body["category"])
		}
	})
}

func TestGenerateFatalErrorDetails(t *testing.T) {
	fatal := &generation.FatalError{Stage: generation.StageGenerateText, Err: errors.New("provider exhausted")}

	env := newTestEnv(t, config.Config{})
	env.gen.err = fatal
	res, body := env.do(t, http.MethodPost, "/api/admin/generate", `{}`, nil)
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", res.StatusCode)
	}
	details, _ := body["details"].(string)
	if body["success"] != false || !strings.Contains(details, "provider exhausted") {
		t.Fatalf("body = %v, want details in development", body)
	}

	prod := newTestEnv(t, config.Config{Env: config.EnvProduction, CronSecret: "s"})
	prod.gen.err = fatal
	_, body = prod.do(t, http.MethodPost, "/api/cron/generate", "", map[string]string{"Authorization": "Bearer s"})
	if _, ok := body["details"]; ok {
		t.Fatalf("details leaked in production: %v", body)
	}
}

func TestManualTriggerRateLimited(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	headers := map[string]string{"X-Forwarded-For": "1.2.3.4"}

	first, _ := env.do(t, http.MethodPost, "/api/admin/generate", `{}`, headers)
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first status = %d, want 200", first.StatusCode)
	}
	if first.Header.Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 0", first.Header.Get("X-RateLimit-Remaining"))
	}
	second, body := env.do(t, http.MethodPost, "/api/admin/generate", `{}`, headers)
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", second.StatusCode)
	}
	if second.Header.Get("Retry-After") == "" || body["retryAfter"] == nil {
		t.Fatalf("missing retry hints: headers=%v body=%v", second.Header, body)
	}
	if len(env.gen.Calls()) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(env.gen.Calls()))
	}

	other, _ := env.do(t, http.MethodPost, "/api/admin/generate", `{}`, map[string]string{"X-Forwarded-For": "5.6.7.8"})
	if other.StatusCode != http.StatusOK {
		t.Fatalf("other client status = %d, want 200", other.StatusCode)
	}
}

func TestReadEndpoints(t *testing.T) {
	env := newTestEnv(t, config.Config{})

	res, _ := env.do(t, http.MethodGet, "/api/quotes/today", "", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("today before seed = %d, want 404", res.StatusCode)
	}

	env.records.Seed(content.Record{ID: "t", Content: "Today counts.", Category: content.CategoryMotivation, DateCreated: testToday})
	env.records.Seed(content.Record{ID: "y", Content: "Yesterday counted.", Category: content.CategoryWisdom, DateCreated: testToday.AddDate(0, 0, -1)})
	env.records.Seed(content.Record{ID: "old", Content: "Long ago.", Category: content.CategoryWisdom, DateCreated: testToday.AddDate(0, 0, -30)})

	res, body := env.do(t, http.MethodGet, "/api/quotes/today", "", nil)
	quote, _ := body["quote"].(map[string]any)
	if res.StatusCode != http.StatusOK || quote["id"] != "t" {
		t.Fatalf("today = %d %v", res.StatusCode, body)
	}

	_, body = env.do(t, http.MethodGet, "/api/quotes/2026-03-14", "", nil)
	quote, _ = body["quote"].(map[string]any)
	if quote["id"] != "y" {
		t.Fatalf("by date = %v", body)
	}

	res, _ = env.do(t, http.MethodGet, "/api/quotes/yesterday", "", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad date status = %d, want 400", res.StatusCode)
	}

	_, body = env.do(t, http.MethodGet, "/api/quotes?days=7", "", nil)
	quotes, _ := body["quotes"].([]any)
	if len(quotes) != 2 || body["from"] != "2026-03-09" {
		t.Fatalf("recent = %v", body)
	}

	res, _ = env.do(t, http.MethodGet, "/api/quotes?days=500", "", nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("days=500 status = %d, want 400", res.StatusCode)
	}
}

func TestMediaServesStoredAudio(t *testing.T) {
	env := newTestEnv(t, config.Config{})
	payload := []byte("ID3-fake-mp3")
	if _, err := env.media.Put(context.Background(), "daily-audio/2026-03-15-abc.mp3", payload, "audio/mpeg"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	res, err := http.Get(env.ts.URL + "/media/daily-audio/2026-03-15-abc.mp3")
	if err != nil {
		t.Fatalf("GET media error = %v", err)
	}
	defer res.Body.Close()
	got, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || string(got) != string(payload) {
		t.Fatalf("media = %d %q", res.StatusCode, got)
	}
	if ct := res.Header.Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("Content-Type = %q, want audio/mpeg", ct)
	}

	missing, _ := env.do(t, http.MethodGet, "/media/daily-audio/none.mp3", "", nil)
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing media status = %d, want 404", missing.StatusCode)
	}
}

func TestPerfStagesFilter(t *testing.T) {
	metrics := observability.NewMetrics("httpapi_test", prometheus.NewRegistry())
	metrics.ObserveStage(generation.StageGenerateText, 1200*time.Millisecond, nil)
	metrics.ObserveStage(generation.StageSynthesizeVoice, 3*time.Second, errors.New("boom"))
	srv := New(config.Config{Env: config.EnvDevelopment}, &stubGenerator{}, content.NewInMemoryStore(), nil, nil, zerolog.Nop(), metrics)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/api/perf/stages?stage=synthesize_voice")
	if err != nil {
		t.Fatalf("GET perf error = %v", err)
	}
	defer res.Body.Close()
	var snap observability.StageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Stages) != 1 || snap.Stages[0].Stage != generation.StageSynthesizeVoice || snap.Stages[0].Failures != 1 {
		t.Fatalf("stages = %+v, want only synthesize_voice with one failure", snap.Stages)
	}
}
