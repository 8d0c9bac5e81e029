package cloudscheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standupbot/internal/jobs"
	logx "standupbot/pkg/logx"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// fakeScheduler keeps jobs by name and mimics the v1 status codes.
type fakeScheduler struct {
	mu    sync.Mutex
	jobs  map[string]jobs.Job
	calls []string
}

func (f *fakeScheduler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer tok" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	f.calls = append(f.calls, r.Method+" "+path)

	switch r.Method {
	case http.MethodGet:
		j, ok := f.jobs[path]
		if !ok {
			http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(j)
	case http.MethodPost:
		var j jobs.Job
		if err := json.NewDecoder(r.Body).Decode(&j); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if jobs.Parent(j.Name) != path {
			http.Error(w, "wrong parent", http.StatusBadRequest)
			return
		}
		if _, ok := f.jobs[j.Name]; ok {
			http.Error(w, `{"error":{"code":409}}`, http.StatusConflict)
			return
		}
		f.jobs[j.Name] = j
		_ = json.NewEncoder(w).Encode(j)
	case http.MethodPatch:
		if _, ok := f.jobs[path]; !ok {
			http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
			return
		}
		var j jobs.Job
		_ = json.NewDecoder(r.Body).Decode(&j)
		f.jobs[path] = j
		_ = json.NewEncoder(w).Encode(j)
	case http.MethodDelete:
		if _, ok := f.jobs[path]; !ok {
			http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
			return
		}
		delete(f.jobs, path)
		_, _ = w.Write([]byte("{}"))
	}
}

func newClient(t *testing.T) (*Client, *fakeScheduler) {
	t.Helper()
	fake := &fakeScheduler{jobs: map[string]jobs.Job{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	c := New(Config{Endpoint: srv.URL + "/v1", DefaultTimeZone: "America/Los_Angeles"}, staticToken("tok"), logx.Nop())
	return c, fake
}

func TestClientLifecycle(t *testing.T) {
	ctx := context.Background()
	c, fake := newClient(t)
	name := jobs.Name("p", "us-central1", "", "S1")

	_, err := c.Get(ctx, name)
	require.ErrorIs(t, err, jobs.ErrNotFound)

	job := jobs.Job{Name: name, Schedule: "every mon 9:30", HTTPTarget: &jobs.HTTPTarget{
		URI: "https://bot.example/trigger", HTTPMethod: "POST", Body: jobs.TriggerBody("S1"),
		OIDCToken: &jobs.OIDCToken{ServiceAccountEmail: "bot@p.iam", Audience: "https://bot.example/trigger"},
	}}
	require.NoError(t, c.Create(ctx, job))
	require.ErrorIs(t, c.Create(ctx, job), jobs.ErrAlreadyExists)

	got, err := c.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", got.TimeZone)
	assert.Equal(t, "bot@p.iam", got.HTTPTarget.OIDCToken.ServiceAccountEmail)

	job.Schedule = "every tue 9:30"
	require.NoError(t, c.Update(ctx, job))
	got, err = c.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "every tue 9:30", got.Schedule)

	require.NoError(t, c.Delete(ctx, name))
	require.ErrorIs(t, c.Delete(ctx, name), jobs.ErrNotFound)
	require.ErrorIs(t, c.Update(ctx, job), jobs.ErrNotFound)

	assert.Equal(t, "POST projects/p/locations/us-central1/jobs", fake.calls[1])
}

func TestClientAPIErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	c := New(Config{Endpoint: srv.URL}, staticToken("tok"), logx.Nop())

	_, err := c.Get(context.Background(), "projects/p/locations/l/jobs/x")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.NotErrorIs(t, err, jobs.ErrNotFound)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	assert.Zero(t, New(Config{Endpoint: srv.URL}, staticToken("tok"), logx.Nop()).http.Timeout)

	c := New(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, staticToken("tok"), logx.Nop())
	_, err := c.Get(context.Background(), "projects/p/locations/l/jobs/x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, jobs.ErrNotFound)
}

func TestConvergeAgainstClient(t *testing.T) {
	ctx := context.Background()
	c, fake := newClient(t)
	job := jobs.Job{Name: jobs.Name("p", "us-central1", "", "S2"), Schedule: "every mon 10:00"}

	out, err := jobs.CreateOrReplace(ctx, c, job, "America/Los_Angeles", logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, jobs.Created, out)

	out, err = jobs.CreateOrReplace(ctx, c, job, "America/Los_Angeles", logx.Nop())
	require.NoError(t, err)
	assert.Equal(t, jobs.Unchanged, out)

	for _, call := range fake.calls {
		assert.False(t, strings.HasPrefix(call, "PATCH"), call)
	}
}
