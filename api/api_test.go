package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rahulsharmaah/content-scrapper/api"
	"github.com/rahulsharmaah/content-scrapper/engine"
	"github.com/rahulsharmaah/content-scrapper/job"
	"github.com/rahulsharmaah/content-scrapper/observability"
	qmem "github.com/rahulsharmaah/content-scrapper/queue/memory"
	"github.com/rahulsharmaah/content-scrapper/schedule"
	"github.com/rahulsharmaah/content-scrapper/store/memory"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	reg := prometheus.NewRegistry()
	eng, err := engine.New(
		engine.WithStore(memory.New()),
		engine.WithBroker(qmem.New()),
		engine.WithExtension(observability.NewMetricsExtensionWithRegisterer(reg)),
		engine.WithStrategy(strategy.Func{
			StrategyName: "html",
			Fn: func(context.Context, string, json.RawMessage) (*strategy.Result, error) {
				return &strategy.Result{Title: "t"}, nil
			},
		}),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	srv := httptest.NewServer(api.New(eng, api.WithGatherer(reg)).Handler())
	t.Cleanup(srv.Close)
	return srv, eng
}

func do(t *testing.T, method, url, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestSubmitAndGet(t *testing.T) {
	srv, _ := newServer(t)
	body := `{"target":"https://example.com/page","strategy":"html","params":{"selector":"h1"}}`

	resp, raw := do(t, http.MethodPost, srv.URL+"/v1/jobs", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit status = %d, body %s", resp.StatusCode, raw)
	}
	var first api.SubmitResponse
	if err := json.Unmarshal(raw, &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Deduplicated || first.Job == nil || first.Job.State != job.StatePending {
		t.Errorf("first submit = %+v", first)
	}

	resp, raw = do(t, http.MethodPost, srv.URL+"/v1/jobs", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("duplicate submit status = %d", resp.StatusCode)
	}
	var second api.SubmitResponse
	_ = json.Unmarshal(raw, &second)
	if !second.Deduplicated || second.ID.String() != first.ID.String() {
		t.Errorf("duplicate submit = %+v", second)
	}

	resp, raw = do(t, http.MethodGet, srv.URL+"/v1/jobs/"+first.ID.String(), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got job.Job
	if err := json.Unmarshal(raw, &got); err != nil || got.ID.String() != first.ID.String() {
		t.Errorf("get = %s (%v)", raw, err)
	}
}

func TestErrorStatuses(t *testing.T) {
	srv, eng := newServer(t)
	sub, err := eng.SubmitJob(context.Background(), engine.Request{Target: "https://example.com/", Strategy: "html"})
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if _, err := eng.Cancel(context.Background(), sub.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"malformed body", http.MethodPost, "/v1/jobs", `{`, http.StatusBadRequest},
		{"bad target", http.MethodPost, "/v1/jobs", `{"target":"nope","strategy":"html"}`, http.StatusBadRequest},
		{"unknown strategy", http.MethodPost, "/v1/jobs", `{"target":"https://a.example/","strategy":"pdf"}`, http.StatusBadRequest},
		{"bad job id", http.MethodGet, "/v1/jobs/not-an-id", "", http.StatusBadRequest},
		{"unknown job", http.MethodGet, "/v1/jobs/job_01h455vb4pex5vsknk084sn02q", "", http.StatusNotFound},
		{"cancel terminal", http.MethodPost, "/v1/jobs/" + sub.ID.String() + "/cancel", "", http.StatusConflict},
		{"bad state filter", http.MethodGet, "/v1/jobs?state=done", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := do(t, tt.method, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (body %s)", resp.StatusCode, tt.status, raw)
			}
		})
	}
}

func TestCancelAndReplay(t *testing.T) {
	srv, eng := newServer(t)
	sub, _ := eng.SubmitJob(context.Background(), engine.Request{Target: "https://example.com/r", Strategy: "html"})

	resp, raw := do(t, http.MethodPost, srv.URL+"/v1/jobs/"+sub.ID.String()+"/cancel", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d (%s)", resp.StatusCode, raw)
	}
	var dead job.Job
	_ = json.Unmarshal(raw, &dead)
	if dead.State != job.StateDead {
		t.Errorf("state = %s", dead.State)
	}

	resp, raw = do(t, http.MethodPost, srv.URL+"/v1/jobs/"+sub.ID.String()+"/replay", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("replay status = %d (%s)", resp.StatusCode, raw)
	}
	var replay api.SubmitResponse
	_ = json.Unmarshal(raw, &replay)
	if replay.ID.String() == sub.ID.String() {
		t.Error("replay reused the dead job id")
	}
}

func TestListAndStats(t *testing.T) {
	srv, eng := newServer(t)
	for _, target := range []string{"https://a.example/", "https://b.example/"} {
		if _, err := eng.Submit(context.Background(), engine.Request{Target: target, Strategy: "html"}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	resp, raw := do(t, http.MethodGet, srv.URL+"/v1/jobs?state=pending&limit=1", "")
	var jobs []job.Job
	if err := json.Unmarshal(raw, &jobs); err != nil || resp.StatusCode != http.StatusOK || len(jobs) != 1 {
		t.Fatalf("list = %d %s (%v)", resp.StatusCode, raw, err)
	}

	resp, raw = do(t, http.MethodGet, srv.URL+"/v1/stats", "")
	var stats api.StatsResponse
	if err := json.Unmarshal(raw, &stats); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("stats = %d %s (%v)", resp.StatusCode, raw, err)
	}
	if stats.Jobs[job.StatePending] != 2 {
		t.Errorf("pending = %d, want 2", stats.Jobs[job.StatePending])
	}
	if stats.QueueDepth == nil || *stats.QueueDepth != 2 {
		t.Errorf("queue depth = %v", stats.QueueDepth)
	}
}

func TestScheduleRoutes(t *testing.T) {
	srv, _ := newServer(t)

	resp, raw := do(t, http.MethodPost, srv.URL+"/v1/schedules",
		`{"name":"nightly","spec":"@daily","target":"https://example.com/n","strategy":"html"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", resp.StatusCode, raw)
	}
	var entry schedule.Entry
	_ = json.Unmarshal(raw, &entry)

	resp, _ = do(t, http.MethodPost, srv.URL+"/v1/schedules",
		`{"name":"nightly","spec":"@hourly","target":"https://example.com/n","strategy":"html"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate status = %d", resp.StatusCode)
	}

	resp, raw = do(t, http.MethodPost, srv.URL+"/v1/schedules/"+entry.ID.String()+"/pause", "")
	var paused schedule.Entry
	_ = json.Unmarshal(raw, &paused)
	if resp.StatusCode != http.StatusOK || paused.Enabled {
		t.Errorf("pause = %d %+v", resp.StatusCode, paused)
	}

	resp, _ = do(t, http.MethodDelete, srv.URL+"/v1/schedules/"+entry.ID.String(), "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/v1/schedules/"+entry.ID.String(), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get deleted status = %d", resp.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, eng := newServer(t)
	if _, err := eng.Submit(context.Background(), engine.Request{Target: "https://example.com/m", Strategy: "html"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	resp, raw := do(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `scrapper_jobs_submitted_total{strategy="html"} 1`) {
		t.Errorf("metrics missing submitted counter:\n%s", raw)
	}
}
