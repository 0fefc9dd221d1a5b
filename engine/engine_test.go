package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	scrapper "github.com/rahulsharmaah/content-scrapper"
	"github.com/rahulsharmaah/content-scrapper/engine"
	"github.com/rahulsharmaah/content-scrapper/id"
	"github.com/rahulsharmaah/content-scrapper/job"
	qmem "github.com/rahulsharmaah/content-scrapper/queue/memory"
	"github.com/rahulsharmaah/content-scrapper/store/memory"
	"github.com/rahulsharmaah/content-scrapper/strategy"
)

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

type fetchFunc func(ctx context.Context, call int) (*strategy.Result, error)

type testEnv struct {
	eng    *engine.Engine
	store  *memory.Store
	broker *qmem.Broker
	calls  atomic.Int32
}

func testConfig() scrapper.Config {
	cfg := scrapper.DefaultConfig()
	cfg.Concurrency = 4
	cfg.PollInterval = 5 * time.Millisecond
	cfg.BackoffBase = 5 * time.Millisecond
	cfg.BackoffMax = 20 * time.Millisecond
	cfg.SweepInterval = time.Second
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.InfraRetries = 0
	return cfg
}

func newEnv(t *testing.T, fetch fetchFunc, cfg scrapper.Config, opts ...engine.Option) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  memory.New(),
		broker: qmem.New(qmem.WithVisibilityTimeout(cfg.VisibilityTimeout)),
	}
	if fetch == nil {
		fetch = func(context.Context, int) (*strategy.Result, error) {
			return &strategy.Result{Title: "ok"}, nil
		}
	}
	all := append([]engine.Option{
		engine.WithStore(env.store),
		engine.WithBroker(env.broker),
		engine.WithConfig(cfg),
		engine.WithStrategy(strategy.Func{
			StrategyName: "test",
			Fn: func(ctx context.Context, _ string, _ json.RawMessage) (*strategy.Result, error) {
				return fetch(ctx, int(env.calls.Add(1)))
			},
		}),
	}, opts...)

	eng, err := engine.New(all...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	env.eng = eng
	return env
}

func (env *testEnv) start(t *testing.T) {
	t.Helper()
	if err := env.eng.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = env.eng.Stop(context.Background()) })
}

func (env *testEnv) submit(t *testing.T, req engine.Request) *engine.Submission {
	t.Helper()
	sub, err := env.eng.SubmitJob(context.Background(), req)
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	return sub
}

func (env *testEnv) waitTerminal(t *testing.T, jobID id.JobID) *job.Job {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		j, err := env.eng.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if j.State.IsTerminal() {
			return j
		}
		select {
		case <-deadline:
			t.Fatalf("job %s still %s after 5s", jobID, j.State)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func req(target string) engine.Request {
	return engine.Request{Target: target, Strategy: "test"}
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNew_RequiresBackends(t *testing.T) {
	if _, err := engine.New(engine.WithBroker(qmem.New())); !errors.Is(err, scrapper.ErrNoStore) {
		t.Errorf("no store: %v", err)
	}
	if _, err := engine.New(engine.WithStore(memory.New())); !errors.Is(err, scrapper.ErrNoBroker) {
		t.Errorf("no broker: %v", err)
	}

	bad := scrapper.DefaultConfig()
	bad.FetchTimeout = bad.VisibilityTimeout
	_, err := engine.New(engine.WithStore(memory.New()), engine.WithBroker(qmem.New()), engine.WithConfig(bad))
	if !errors.Is(err, scrapper.ErrInvalidConfig) {
		t.Errorf("bad config: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Submission
// ──────────────────────────────────────────────────

func TestSubmit_Validation(t *testing.T) {
	env := newEnv(t, nil, testConfig())

	tests := []struct {
		name  string
		req   engine.Request
		field string
	}{
		{"missing target", engine.Request{Strategy: "test"}, "target"},
		{"relative target", req("/just/a/path"), "target"},
		{"ftp target", req("ftp://example.com/file"), "target"},
		{"missing strategy", engine.Request{Target: "https://example.com/"}, "strategy"},
		{"unknown strategy", engine.Request{Target: "https://example.com/", Strategy: "browser"}, "strategy"},
		{"params not object", engine.Request{Target: "https://example.com/", Strategy: "test", Params: json.RawMessage(`[1,2]`)}, "params"},
		{"params not json", engine.Request{Target: "https://example.com/", Strategy: "test", Params: json.RawMessage(`{`)}, "params"},
		{"attempts too high", engine.Request{Target: "https://example.com/", Strategy: "test", MaxAttempts: 1000}, "max_attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.eng.Submit(context.Background(), tt.req)
			if !errors.Is(err, scrapper.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
			var ve *scrapper.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("field = %+v, want %q", ve, tt.field)
			}
		})
	}

	n, err := env.eng.Count(context.Background(), job.CountOpts{})
	if err != nil || n != 0 {
		t.Errorf("rejected submissions persisted %d jobs (%v)", n, err)
	}
}

func TestSubmit_PersistsPendingAndEnqueues(t *testing.T) {
	env := newEnv(t, nil, testConfig())

	sub := env.submit(t, engine.Request{
		Target:   "https://Example.com:443/a?b=2&a=1#frag",
		Strategy: "test",
		Params:   json.RawMessage(`{"z": 1, "a": true}`),
	})
	if sub.Deduplicated || sub.Job == nil {
		t.Fatalf("submission = %+v", sub)
	}

	j, err := env.eng.Get(context.Background(), sub.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if j.State != job.StatePending || j.Attempts != 0 || j.MaxAttempts != 3 {
		t.Errorf("job = %s attempts=%d max=%d", j.State, j.Attempts, j.MaxAttempts)
	}
	if j.Target != "https://example.com/a?a=1&b=2" {
		t.Errorf("target = %q", j.Target)
	}
	if string(j.Params) != `{"a":true,"z":1}` {
		t.Errorf("params = %s", j.Params)
	}
	if n, _ := env.broker.Len(context.Background()); n != 1 {
		t.Errorf("queued = %d, want 1", n)
	}
}

func TestSubmit_IdempotentWhileActive(t *testing.T) {
	env := newEnv(t, nil, testConfig())

	first := env.submit(t, engine.Request{
		Target: "https://example.com/x?b=1&a=2", Strategy: "test",
		Params: json.RawMessage(`{"a":1,"b":2}`),
	})
	second := env.submit(t, engine.Request{
		Target: "https://EXAMPLE.com/x?a=2&b=1", Strategy: "test",
		Params: json.RawMessage(`{"b":2,"a":1}`),
	})

	if !second.Deduplicated {
		t.Fatal("second submission was not deduplicated")
	}
	if second.ID.String() != first.ID.String() {
		t.Errorf("ids differ: %s vs %s", first.ID, second.ID)
	}
	if n, _ := env.eng.Count(context.Background(), job.CountOpts{}); n != 1 {
		t.Errorf("jobs = %d, want 1", n)
	}

	other := env.submit(t, engine.Request{Target: "https://example.com/x", Strategy: "test",
		Params: json.RawMessage(`{"a":1,"b":3}`)})
	if other.Deduplicated {
		t.Error("different params must not deduplicate")
	}
}

func TestSubmit_ConcurrentIdenticalCreateOneJob(t *testing.T) {
	env := newEnv(t, nil, testConfig())

	const n = 50
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobID, err := env.eng.Submit(context.Background(), req("https://example.com/race"))
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			ids[i] = jobID.String()
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("submission %d got %s, want %s", i, ids[i], ids[0])
		}
	}
	if count, _ := env.eng.Count(context.Background(), job.CountOpts{}); count != 1 {
		t.Errorf("jobs = %d, want 1", count)
	}
}

func TestSubmit_AfterTerminalCreatesNewJob(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	env.start(t)

	first := env.submit(t, req("https://example.com/again"))
	env.waitTerminal(t, first.ID)

	second := env.submit(t, req("https://example.com/again"))
	if second.Deduplicated || second.ID.String() == first.ID.String() {
		t.Errorf("resubmission after completion reused %s", first.ID)
	}
}

func TestSubmit_CooldownKeepsFinishedJob(t *testing.T) {
	cfg := testConfig()
	cfg.DedupTTL = time.Hour
	env := newEnv(t, nil, cfg)
	env.start(t)

	first := env.submit(t, req("https://example.com/cool"))
	env.waitTerminal(t, first.ID)

	second := env.submit(t, req("https://example.com/cool"))
	if !second.Deduplicated || second.ID.String() != first.ID.String() {
		t.Errorf("cooldown not honoured: %+v", second)
	}
	if second.Job == nil || second.Job.State != job.StateSucceeded {
		t.Errorf("expected the finished job, got %+v", second.Job)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle scenarios
// ──────────────────────────────────────────────────

func TestScenario_SuccessFirstTry(t *testing.T) {
	env := newEnv(t, func(context.Context, int) (*strategy.Result, error) {
		return &strategy.Result{Title: "Example Domain", StatusCode: 200}, nil
	}, testConfig())
	env.start(t)

	jobID, err := env.eng.Submit(context.Background(), req("https://example.com/"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j := env.waitTerminal(t, jobID)

	if j.State != job.StateSucceeded || j.Attempts != 1 {
		t.Fatalf("state = %s attempts = %d", j.State, j.Attempts)
	}
	var res strategy.Result
	if err := json.Unmarshal(j.Result, &res); err != nil || res.Title != "Example Domain" {
		t.Errorf("result = %s (%v)", j.Result, err)
	}
}

func TestScenario_TransientFailureThenSuccess(t *testing.T) {
	env := newEnv(t, func(_ context.Context, call int) (*strategy.Result, error) {
		if call == 1 {
			return nil, strategy.Recoverable("http 503", nil)
		}
		return &strategy.Result{Title: "back"}, nil
	}, testConfig())
	env.start(t)

	jobID, _ := env.eng.Submit(context.Background(), req("https://example.com/flaky"))
	j := env.waitTerminal(t, jobID)

	if j.State != job.StateSucceeded || j.Attempts != 2 {
		t.Fatalf("state = %s attempts = %d, want succeeded/2", j.State, j.Attempts)
	}
	if j.LastError == nil || j.LastError.Message != "http 503" {
		t.Errorf("last_error = %+v", j.LastError)
	}
}

func TestScenario_SucceedsOnLastAttempt(t *testing.T) {
	env := newEnv(t, func(_ context.Context, call int) (*strategy.Result, error) {
		if call <= 2 {
			return nil, strategy.Recoverable("http 503", nil)
		}
		return &strategy.Result{Title: "third time"}, nil
	}, testConfig())
	env.start(t)

	r := req("https://example.com/edge")
	r.MaxAttempts = 3
	jobID, _ := env.eng.Submit(context.Background(), r)
	j := env.waitTerminal(t, jobID)

	if j.State != job.StateSucceeded || j.Attempts != 3 {
		t.Fatalf("state = %s attempts = %d, want succeeded/3", j.State, j.Attempts)
	}
	if env.calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", env.calls.Load())
	}
}

func TestScenario_DuplicateWhileRunning(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	env := newEnv(t, func(context.Context, int) (*strategy.Result, error) {
		started <- struct{}{}
		<-release
		return &strategy.Result{Title: "done"}, nil
	}, testConfig())
	env.start(t)
	t.Cleanup(func() { close(release) })
	ctx := context.Background()

	first := env.submit(t, req("https://example.com/slow"))
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("strategy never started")
	}
	if j, _ := env.eng.Get(ctx, first.ID); j == nil || j.State != job.StateRunning {
		t.Fatalf("first job = %+v, want running", j)
	}

	second := env.submit(t, req("https://example.com/slow"))
	if !second.Deduplicated || second.ID != first.ID {
		t.Fatalf("second = %+v, want dedup onto %s", second, first.ID)
	}
	if second.Job == nil || second.Job.State != job.StateRunning {
		t.Errorf("second job = %+v, want the running job", second.Job)
	}
	if n, _ := env.eng.Count(ctx, job.CountOpts{}); n != 1 {
		t.Errorf("jobs = %d, want 1", n)
	}
}

func TestEngine_RestartResumesWork(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	env.start(t)
	if err := env.eng.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	env.start(t)

	jobID, err := env.eng.Submit(context.Background(), req("https://example.com/restart"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if j := env.waitTerminal(t, jobID); j.State != job.StateSucceeded {
		t.Fatalf("state = %s, want succeeded", j.State)
	}
}

func TestScenario_PermanentFailure(t *testing.T) {
	env := newEnv(t, func(context.Context, int) (*strategy.Result, error) {
		return nil, strategy.NonRecoverable("http 404", nil)
	}, testConfig())
	env.start(t)

	jobID, _ := env.eng.Submit(context.Background(), req("https://example.com/missing"))
	j := env.waitTerminal(t, jobID)

	if j.State != job.StateDead || j.Attempts != 1 {
		t.Fatalf("state = %s attempts = %d, want dead/1", j.State, j.Attempts)
	}
	if j.LastError.Kind != job.KindNonRecoverable {
		t.Errorf("kind = %s", j.LastError.Kind)
	}
}

func TestScenario_RetryBudgetExhausted(t *testing.T) {
	env := newEnv(t, func(context.Context, int) (*strategy.Result, error) {
		return nil, errors.New("connection reset by peer")
	}, testConfig())
	env.start(t)

	jobID, _ := env.eng.Submit(context.Background(), req("https://example.com/down"))
	j := env.waitTerminal(t, jobID)

	if j.State != job.StateDead {
		t.Fatalf("state = %s, want dead", j.State)
	}
	if j.Attempts != j.MaxAttempts || env.calls.Load() != int32(j.MaxAttempts) {
		t.Errorf("attempts = %d calls = %d max = %d", j.Attempts, env.calls.Load(), j.MaxAttempts)
	}
}

func TestScenario_WorkerCrashRecoveredAfterVisibilityTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.VisibilityTimeout = 150 * time.Millisecond
	cfg.FetchTimeout = 100 * time.Millisecond
	env := newEnv(t, nil, cfg)
	ctx := context.Background()

	jobID, err := env.eng.Submit(ctx, req("https://example.com/crash"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// A worker claims the message and the attempt, then dies.
	if _, err := env.broker.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	cur, _ := env.eng.Get(ctx, jobID)
	if _, err := job.Transition(ctx, env.store, cur, job.StateRunning, func(n *job.Job) { n.Attempts++ }); err != nil {
		t.Fatalf("claim: %v", err)
	}

	env.start(t)
	j := env.waitTerminal(t, jobID)

	if j.State != job.StateSucceeded || j.Attempts != 2 {
		t.Fatalf("state = %s attempts = %d, want succeeded/2", j.State, j.Attempts)
	}
	if env.calls.Load() != 1 {
		t.Errorf("strategy calls = %d, want 1", env.calls.Load())
	}
}

// ──────────────────────────────────────────────────
// Queries and operator actions
// ──────────────────────────────────────────────────

func TestGet_UnknownJob(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	_, err := env.eng.Get(context.Background(), id.NewJobID())
	if !errors.Is(err, scrapper.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestListAndStats(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	for _, target := range []string{"https://a.example/", "https://b.example/", "https://c.example/"} {
		env.submit(t, req(target))
	}

	jobs, err := env.eng.List(context.Background(), job.ListOpts{State: job.StatePending, Limit: 2})
	if err != nil || len(jobs) != 2 {
		t.Fatalf("List = %d (%v)", len(jobs), err)
	}
	stats, err := env.eng.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[job.StatePending] != 3 || stats[job.StateSucceeded] != 0 {
		t.Errorf("stats = %v", stats)
	}
}

func TestCancel(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	ctx := context.Background()
	first := env.submit(t, req("https://example.com/stop"))

	dead, err := env.eng.Cancel(ctx, first.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if dead.State != job.StateDead || dead.LastError.Message != engine.CancelReason || dead.FinishedAt == nil {
		t.Errorf("cancelled job = %+v", dead)
	}

	if _, err := env.eng.Cancel(ctx, first.ID); !errors.Is(err, scrapper.ErrJobTerminal) {
		t.Errorf("second cancel: %v, want ErrJobTerminal", err)
	}
	if _, err := env.eng.Cancel(ctx, id.NewJobID()); !errors.Is(err, scrapper.ErrJobNotFound) {
		t.Errorf("cancel unknown: %v", err)
	}

	again := env.submit(t, req("https://example.com/stop"))
	if again.Deduplicated {
		t.Error("fingerprint still held after cancel")
	}
}

func TestCancel_DiscardsQueuedMessage(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	sub := env.submit(t, req("https://example.com/never"))
	if _, err := env.eng.Cancel(context.Background(), sub.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	env.start(t)
	deadline := time.After(5 * time.Second)
	for {
		if n, _ := env.broker.Len(context.Background()); n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("message for cancelled job never acked")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if env.calls.Load() != 0 {
		t.Error("strategy ran for a cancelled job")
	}
}

func TestReplay(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	ctx := context.Background()
	orig := env.submit(t, engine.Request{Target: "https://example.com/r", Strategy: "test", MaxAttempts: 5})

	if _, err := env.eng.Replay(ctx, orig.ID); !errors.Is(err, scrapper.ErrInvalidTransition) {
		t.Errorf("replay pending: %v, want ErrInvalidTransition", err)
	}
	if _, err := env.eng.Cancel(ctx, orig.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	sub, err := env.eng.Replay(ctx, orig.ID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if sub.ID.String() == orig.ID.String() || sub.Job.State != job.StatePending {
		t.Errorf("replay = %+v", sub)
	}
	if sub.Job.MaxAttempts != 5 || sub.Job.Target != orig.Job.Target {
		t.Errorf("replay lost the request: %+v", sub.Job)
	}
}

// ──────────────────────────────────────────────────
// Infrastructure failures
// ──────────────────────────────────────────────────

// flakyStore fails job creation while down is set.
type flakyStore struct {
	*memory.Store
	down atomic.Bool
}

func (s *flakyStore) CreateJob(ctx context.Context, j *job.Job) error {
	if s.down.Load() {
		return errors.New("connection refused")
	}
	return s.Store.CreateJob(ctx, j)
}

func TestSubmit_StoreUnavailableReleasesReservation(t *testing.T) {
	cfg := testConfig()
	cfg.InfraRetries = 1
	fs := &flakyStore{Store: memory.New()}
	eng, err := engine.New(
		engine.WithStore(fs),
		engine.WithBroker(qmem.New()),
		engine.WithConfig(cfg),
		engine.WithStrategy(strategy.Func{StrategyName: "test", Fn: func(context.Context, string, json.RawMessage) (*strategy.Result, error) {
			return &strategy.Result{}, nil
		}}),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	fs.down.Store(true)
	if _, err := eng.Submit(context.Background(), req("https://example.com/db")); !errors.Is(err, scrapper.ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}

	fs.down.Store(false)
	sub, err := eng.SubmitJob(context.Background(), req("https://example.com/db"))
	if err != nil {
		t.Fatalf("SubmitJob: %v", err)
	}
	if sub.Deduplicated {
		t.Error("failed submission left its fingerprint reserved")
	}
}

// ackLostStore commits the first job insert and then reports a failure,
// as when the connection drops before the reply arrives.
type ackLostStore struct {
	*memory.Store
	lost atomic.Bool
}

func (s *ackLostStore) CreateJob(ctx context.Context, j *job.Job) error {
	if err := s.Store.CreateJob(ctx, j); err != nil {
		return err
	}
	if s.lost.CompareAndSwap(false, true) {
		return errors.New("connection reset by peer")
	}
	return nil
}

func TestSubmit_CommittedInsertKeepsFingerprint(t *testing.T) {
	tests := []struct {
		name    string
		retries int
	}{
		{"reply lost", 0},
		{"retry hits duplicate key", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.InfraRetries = tt.retries
			s := &ackLostStore{Store: memory.New()}
			broker := qmem.New()
			eng, err := engine.New(
				engine.WithStore(s),
				engine.WithBroker(broker),
				engine.WithConfig(cfg),
				engine.WithStrategy(strategy.Func{StrategyName: "test", Fn: func(context.Context, string, json.RawMessage) (*strategy.Result, error) {
					return &strategy.Result{}, nil
				}}),
			)
			if err != nil {
				t.Fatalf("engine.New: %v", err)
			}
			ctx := context.Background()

			first, err := eng.SubmitJob(ctx, req("https://example.com/flaky-db"))
			if err != nil {
				t.Fatalf("SubmitJob: %v", err)
			}
			second, err := eng.SubmitJob(ctx, req("https://example.com/flaky-db"))
			if err != nil {
				t.Fatalf("second SubmitJob: %v", err)
			}
			if !second.Deduplicated || second.ID != first.ID {
				t.Errorf("second = %+v, want dedup onto %s", second, first.ID)
			}
			if n, _ := eng.Count(ctx, job.CountOpts{}); n != 1 {
				t.Errorf("jobs = %d, want 1", n)
			}
			if n, _ := broker.Len(ctx); n != 1 {
				t.Errorf("queued = %d, want 1", n)
			}
		})
	}
}

// lossyBroker drops every enqueue.
type lossyBroker struct{ *qmem.Broker }

func (b lossyBroker) Enqueue(context.Context, id.JobID, time.Duration) error {
	return errors.New("broker down")
}

func TestSubmit_EnqueueFailureStillPersists(t *testing.T) {
	s := memory.New()
	cfg := testConfig()
	eng, err := engine.New(
		engine.WithStore(s),
		engine.WithBroker(lossyBroker{qmem.New()}),
		engine.WithConfig(cfg),
		engine.WithStrategy(strategy.Func{StrategyName: "test", Fn: func(context.Context, string, json.RawMessage) (*strategy.Result, error) {
			return &strategy.Result{}, nil
		}}),
	)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	jobID, err := eng.Submit(context.Background(), req("https://example.com/lost"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	j, err := eng.Get(context.Background(), jobID)
	if err != nil || j.State != job.StatePending {
		t.Errorf("job = %+v (%v)", j, err)
	}
}

// ──────────────────────────────────────────────────
// Schedules
// ──────────────────────────────────────────────────

func TestSchedules(t *testing.T) {
	env := newEnv(t, nil, testConfig())
	ctx := context.Background()

	_, err := env.eng.CreateSchedule(ctx, engine.ScheduleRequest{
		Name: "bad", Spec: "every tuesday", Target: "https://example.com/", Strategy: "test",
	})
	if !errors.Is(err, scrapper.ErrValidation) {
		t.Errorf("bad spec: %v", err)
	}

	entry, err := env.eng.CreateSchedule(ctx, engine.ScheduleRequest{
		Name: "daily-news", Spec: "@daily", Target: "https://example.com/news", Strategy: "test",
	})
	if err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}
	if !entry.Enabled || !entry.NextRunAt.After(time.Now()) {
		t.Errorf("entry = %+v", entry)
	}

	_, err = env.eng.CreateSchedule(ctx, engine.ScheduleRequest{
		Name: "daily-news", Spec: "@hourly", Target: "https://example.com/other", Strategy: "test",
	})
	if !errors.Is(err, scrapper.ErrDuplicateSchedule) {
		t.Errorf("duplicate name: %v", err)
	}

	paused, err := env.eng.PauseSchedule(ctx, entry.ID)
	if err != nil || paused.Enabled {
		t.Fatalf("PauseSchedule = %+v (%v)", paused, err)
	}
	if fired := env.eng.Scheduler().Tick(ctx, entry.NextRunAt.Add(time.Minute)); fired != 0 {
		t.Errorf("paused schedule fired %d times", fired)
	}

	resumed, err := env.eng.ResumeSchedule(ctx, entry.ID)
	if err != nil || !resumed.Enabled {
		t.Fatalf("ResumeSchedule = %+v (%v)", resumed, err)
	}
	if fired := env.eng.Scheduler().Tick(ctx, resumed.NextRunAt); fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	got, err := env.eng.GetSchedule(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetSchedule: %v", err)
	}
	if got.LastJobID.IsNil() || got.LastRunAt == nil {
		t.Errorf("fire not recorded: %+v", got)
	}
	j, err := env.eng.Get(ctx, got.LastJobID)
	if err != nil || j.Target != "https://example.com/news" {
		t.Errorf("scheduled job = %+v (%v)", j, err)
	}

	list, _ := env.eng.ListSchedules(ctx)
	if len(list) != 1 {
		t.Errorf("schedules = %d", len(list))
	}
	if err := env.eng.DeleteSchedule(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteSchedule: %v", err)
	}
	if _, err := env.eng.GetSchedule(ctx, entry.ID); !errors.Is(err, scrapper.ErrScheduleNotFound) {
		t.Errorf("deleted schedule: %v", err)
	}
}
