package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hasancaglar07/usercomments-edge/internal/config"
	"github.com/hasancaglar07/usercomments-edge/internal/testutil"
	"github.com/hasancaglar07/usercomments-edge/pkg/edgecache"
	"github.com/hasancaglar07/usercomments-edge/pkg/purge"
	"github.com/hasancaglar07/usercomments-edge/pkg/ratelimit"
)

func testConfig() config.Config {
	return config.Config{
		ListenAddr:      ":0",
		Origin:          "https://reviews.example.com",
		Languages:       []string{"de", "en", "es", "fr", "tr"},
		DefaultLanguage: "en",
		Sorts:           []string{"newest", "popular", "rating"},
		FeedSizes:       []int{5, 10, 20},
		TTLPolicy:       edgecache.DefaultTTLPolicy(),
		VoteRule:        ratelimit.Rule{Capacity: 2, Window: time.Minute},
		CommentRule:     ratelimit.Rule{Capacity: 2, Window: time.Minute},
		PurgeSecret:     "sekrit",
	}
}

type testEnv struct {
	handler    http.Handler
	store      *testutil.MemStore
	data       *testutil.FakeData
	dispatcher *purge.Dispatcher
}

func newTestEnv(t *testing.T, cfg config.Config) *testEnv {
	t.Helper()
	store := testutil.NewMemStore()
	fake := testutil.NewFakeData()
	dispatcher := purge.NewDispatcher(store, zerolog.Nop(), 4)
	srv := New(cfg, store, fake, ratelimit.NewLimiter(0, zerolog.Nop()), dispatcher, nil, zerolog.Nop())
	return &testEnv{handler: srv.Handler(), store: store, data: fake, dispatcher: dispatcher}
}

func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.dispatcher.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
}

func TestReadRoute_MissThenHit(t *testing.T) {
	env := newTestEnv(t, testConfig())

	first := httptest.NewRecorder()
	env.handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/reviews/great-phone?lang=en", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", first.Code)
	}
	if got := first.Header().Get(edgecache.HeaderCacheStatus); got != "MISS" {
		t.Fatalf("x-cache = %q, want MISS", got)
	}
	if !env.store.WaitFor(1, 2*time.Second) {
		t.Fatal("async cache write never landed")
	}

	second := httptest.NewRecorder()
	env.handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/reviews/great-phone?lang=en", nil))
	if got := second.Header().Get(edgecache.HeaderCacheStatus); got != "HIT" {
		t.Fatalf("x-cache = %q, want HIT", got)
	}
	if first.Body.String() != second.Body.String() {
		t.Error("hit body differs from miss body")
	}
}

func TestVote_RateLimitAndInvalidation(t *testing.T) {
	env := newTestEnv(t, testConfig())

	// Seed a cached view the mutation must purge.
	_ = env.store.Set(context.Background(), "/reviews/great-phone?lang=en", &edgecache.Entry{
		Status: http.StatusOK, Header: http.Header{}, Body: []byte("{}"),
		StoredAt: time.Now(), TTL: time.Hour,
	})

	vote := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reviews/1/vote", nil))
		return rec
	}

	for i := 0; i < 2; i++ {
		rec := vote()
		if rec.Code != http.StatusOK {
			t.Fatalf("vote %d status = %d, want 200", i+1, rec.Code)
		}
		if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
			t.Errorf("vote Cache-Control = %q, want no-store", cc)
		}
	}

	rec := vote()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("vote 3 status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30 (capacity 2 per 60s)", got)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Too Many Requests" {
		t.Errorf("error body = %q", body["error"])
	}

	// Rejected requests must not mutate.
	if got := env.data.VoteCount(1); got != 2 {
		t.Errorf("vote count = %d, want 2", got)
	}

	// The accepted votes fanned out purges; the seeded entry is gone.
	env.drain(t)
	if env.store.Has("/reviews/great-phone?lang=en") {
		t.Error("cached review detail survived invalidation")
	}
}

// disconnectingData simulates a client that goes away the moment its mutation
// commits: AddVote cancels the request context, and ReviewTarget honors
// cancellation the way a real database driver does.
type disconnectingData struct {
	*testutil.FakeData
	cancel context.CancelFunc
}

func (d *disconnectingData) AddVote(ctx context.Context, reviewID int64) error {
	err := d.FakeData.AddVote(ctx, reviewID)
	d.cancel()
	return err
}

func (d *disconnectingData) ReviewTarget(ctx context.Context, reviewID int64) (purge.Target, error) {
	if err := ctx.Err(); err != nil {
		return purge.Target{}, err
	}
	return d.FakeData.ReviewTarget(ctx, reviewID)
}

// A client disconnect after the response is written must not cancel the
// invalidation its mutation triggered.
func TestVote_InvalidationSurvivesClientDisconnect(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/reviews/1/vote", nil)
	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	req = req.WithContext(ctx)

	store := testutil.NewMemStore()
	fake := &disconnectingData{FakeData: testutil.NewFakeData(), cancel: cancel}
	dispatcher := purge.NewDispatcher(store, zerolog.Nop(), 4)
	srv := New(testConfig(), store, fake, ratelimit.NewLimiter(0, zerolog.Nop()), dispatcher, nil, zerolog.Nop())

	_ = store.Set(context.Background(), "/reviews/great-phone?lang=en", &edgecache.Entry{
		Status: http.StatusOK, Header: http.Header{}, Body: []byte("{}"),
		StoredAt: time.Now(), TTL: time.Hour,
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("vote status = %d, want 200", rec.Code)
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer drainCancel()
	if err := dispatcher.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if store.Has("/reviews/great-phone?lang=en") {
		t.Error("cached derived view survived the mutation: invalidation was skipped")
	}
}

func TestAddComment_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())

	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reviews/1/comments",
		strings.NewReader(`{"body":"nice"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous comment status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/reviews/1/comments", strings.NewReader(`{"body":"nice"}`))
	req.Header.Set(HeaderAuthenticatedUser, "bob")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("comment status = %d, want 201", rec.Code)
	}

	env.drain(t)
	if len(env.store.Purged()) == 0 {
		t.Error("comment mutation dispatched no purges")
	}
}

func TestPurgeEndpoint(t *testing.T) {
	post := func(env *testEnv, secret, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/internal/purge", strings.NewReader(body))
		if secret != "" {
			req.Header.Set(HeaderPurgeSecret, secret)
		}
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("unconfigured", func(t *testing.T) {
		cfg := testConfig()
		cfg.PurgeSecret = ""
		env := newTestEnv(t, cfg)
		if rec := post(env, "anything", `{"entity":"review","id":1}`); rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		if rec := post(env, "wrong", `{"entity":"review","id":1}`); rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("invalid payload", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		if rec := post(env, "sekrit", `{"entity":"banana","id":1}`); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown entity id", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		if rec := post(env, "sekrit", `{"entity":"review","id":99}`); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t, testConfig())
		rec := post(env, "sekrit", `{"entity":"review","id":1}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var body struct {
			OK     bool     `json:"ok"`
			Purged int      `json:"purged"`
			URLs   []string `json:"urls"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if !body.OK {
			t.Error("ok = false")
		}
		if len(body.URLs) == 0 {
			t.Error("no urls enumerated")
		}
		if body.Purged != len(body.URLs) {
			t.Errorf("purged = %d, want %d (memory store cannot fail)", body.Purged, len(body.URLs))
		}
	})
}

func TestAuthorizedReadBypassesCache(t *testing.T) {
	env := newTestEnv(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/reviews/great-phone?lang=en", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get(edgecache.HeaderCacheStatus); got != "" {
		t.Errorf("x-cache = %q, want absent for authorized request", got)
	}
	time.Sleep(20 * time.Millisecond)
	if env.store.Len() != 0 {
		t.Errorf("store holds %d entries, want 0", env.store.Len())
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testConfig())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
