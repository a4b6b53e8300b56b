package itest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/adapters/httpapi"
	memcachestore "github.com/transitclock/refresher/internal/adapters/memory/cachestore"
	memcredstore "github.com/transitclock/refresher/internal/adapters/memory/credstore"
	"github.com/transitclock/refresher/internal/adapters/memory/viewstore"
	pgcachestore "github.com/transitclock/refresher/internal/adapters/postgres/cachestore"
	pgcredstore "github.com/transitclock/refresher/internal/adapters/postgres/credstore"
	postgres_testutil "github.com/transitclock/refresher/internal/adapters/postgres/testutil"
	"github.com/transitclock/refresher/internal/adapters/sqlite"
	"github.com/transitclock/refresher/internal/adapters/timer"
	"github.com/transitclock/refresher/internal/adapters/upstream"
	"github.com/transitclock/refresher/internal/app/refresh"
	"github.com/transitclock/refresher/internal/platform/clock"
	"github.com/transitclock/refresher/internal/platform/timecodec"
	cachestoreport "github.com/transitclock/refresher/internal/ports/out/cachestore"
	credstoreport "github.com/transitclock/refresher/internal/ports/out/credstore"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendSQLite   backend = "sqlite"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "sqlite":
		return []backend{backendSQLite}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendSQLite, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|sqlite|postgres|all)")
		return nil
	}
}

// fakeTransit is a transit backend serving one leg whose first departure is
// an hour from now.
type fakeTransit struct {
	srv      *httptest.Server
	legCalls atomic.Int32
}

func newFakeTransit(t *testing.T, user, pass string) *fakeTransit {
	t.Helper()
	ft := &fakeTransit{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/trips/force_refresh", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/trips/", func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/api/trips/" {
			ft.legCalls.Add(1)
			_, _ = io.WriteString(w, `{"legs":[{"id":11,"line_short_name":"B","trip_direction":"Vaise","from_stop":"x"}]}`)
			return
		}
		if r.URL.Path != "/api/trips/11/next" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		first := time.Now().Add(time.Hour).UTC().Truncate(time.Minute)
		second := first.Add(20 * time.Minute)
		fmt.Fprintf(w, `{"estimates":[{"departure_time":%q,"arrival_time":%q,"delay":null},{"departure_time":%q,"arrival_time":%q}]}`,
			timecodec.Format(first), timecodec.Format(first.Add(10*time.Minute)),
			timecodec.Format(second), timecodec.Format(second.Add(10*time.Minute)))
	})
	ft.srv = httptest.NewServer(mux)
	t.Cleanup(ft.srv.Close)
	return ft
}

type testServer struct {
	baseURL string
	client  *http.Client
	transit *fakeTransit
	views   *viewstore.Store
	wake    *timer.Scheduler
}

func newTestServer(t *testing.T, b backend) *testServer {
	t.Helper()

	var (
		creds credstoreport.Store
		cache cachestoreport.Store
	)
	switch b {
	case backendPostgres:
		pool := postgres_testutil.OpenMigratedPool(t)
		creds = pgcredstore.NewStore(pool)
		cache = pgcachestore.NewStore(pool)
	case backendSQLite:
		db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "itest.db"), zerolog.Nop())
		if err != nil {
			t.Fatalf("sqlite.Open: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		creds = sqlite.NewCredentialStore(db)
		cache = sqlite.NewCacheStore(db)
	case backendMemory:
		creds = memcredstore.NewStore()
		cache = memcachestore.NewStore()
	default:
		t.Fatalf("unknown backend: %s", b)
	}

	clk := clock.NewSystemClock()
	wake := timer.NewScheduler(clk, zerolog.Nop())
	t.Cleanup(wake.Close)

	fetcher := refresh.NewFetcher(upstream.NewClient(5*time.Second, "transitclock-itest"), zerolog.Nop(), nil)
	svc := refresh.NewService(creds, cache, wake, fetcher, clk, zerolog.Nop())
	views := viewstore.NewStore(clk)
	d := refresh.NewDispatcher(svc, views, zerolog.Nop())
	d.SweepInterval = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx, wake.C())
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	api := httpapi.NewServer(svc, d, views, zerolog.Nop())
	api.Wakeups = wake
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware: httpapi.NewBasicAuthMiddleware("itest", "itest-pass"),
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testServer{
		baseURL: srv.URL,
		client:  srv.Client(),
		transit: newFakeTransit(t, "rider", "pw"),
		views:   views,
		wake:    wake,
	}
}

func (s *testServer) doJSON(t *testing.T, method string, path string, body any) (int, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.baseURL+path, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth("itest", "itest-pass")

	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func mustUnmarshal[T any](t *testing.T, b []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v\nbody=%s", err, string(b))
	}
	return out
}
