package googlechat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

type tokenFunc func(ctx context.Context) (string, error)

func (f tokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

func TestSendPostsTextWithBearer(t *testing.T) {
	var got chat.Reply
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/spaces/S1/messages", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"name":"spaces/S1/messages/1"}`))
	}))
	defer srv.Close()

	s := New(Config{Endpoint: srv.URL}, tokenFunc(func(context.Context) (string, error) { return "tok", nil }), logx.Nop())
	require.NoError(t, s.Send(context.Background(), "S1", "hello"))
	assert.Equal(t, "hello", got.Text)
}

func TestSendIgnoresErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "permission denied", http.StatusForbidden)
	}))
	defer srv.Close()

	s := New(Config{Endpoint: srv.URL}, tokenFunc(func(context.Context) (string, error) { return "tok", nil }), logx.Nop())
	assert.NoError(t, s.Send(context.Background(), "S1", "hello"))
}

func TestSendTokenFailure(t *testing.T) {
	boom := errors.New("no metadata")
	s := New(Config{Endpoint: "http://127.0.0.1:1"}, tokenFunc(func(context.Context) (string, error) { return "", boom }), logx.Nop())
	assert.ErrorIs(t, s.Send(context.Background(), "S1", "hello"), boom)
}

func TestMention(t *testing.T) {
	s := New(Config{}, nil, logx.Nop())
	assert.Equal(t, "<users/42>", s.Mention("42", "a@example.com"))
}

func TestSendTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tok := tokenFunc(func(context.Context) (string, error) { return "tok", nil })
	assert.Zero(t, New(Config{Endpoint: srv.URL}, tok, logx.Nop()).client.Timeout)

	s := New(Config{Endpoint: srv.URL, Timeout: 50 * time.Millisecond}, tok, logx.Nop())
	assert.Error(t, s.Send(context.Background(), "S1", "hello"))
}
