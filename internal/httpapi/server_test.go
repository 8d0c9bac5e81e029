package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"standupbot/internal/chat"
	logx "standupbot/pkg/logx"
)

type eventFunc func(ctx context.Context, ev chat.Event) (*chat.Reply, error)

func (f eventFunc) HandleEvent(ctx context.Context, ev chat.Event) (*chat.Reply, error) {
	return f(ctx, ev)
}

type standupFunc func(ctx context.Context, roomID string) error

func (f standupFunc) Standup(ctx context.Context, roomID string) error { return f(ctx, roomID) }

func newTestServer(t *testing.T, events EventHandler, standup StandupRunner) *httptest.Server {
	t.Helper()
	var logs bytes.Buffer
	s := New(Config{}, events, standup, logx.NewWriter(&logs, "debug"))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var b bytes.Buffer
	_, _ = b.ReadFrom(resp.Body)
	return resp, b.String()
}

func TestChatReply(t *testing.T) {
	var got chat.Event
	srv := newTestServer(t, eventFunc(func(_ context.Context, ev chat.Event) (*chat.Reply, error) {
		got = ev
		return &chat.Reply{Text: "hi"}, nil
	}), nil)

	resp, body := post(t, srv.URL+"/chat", `{"type":"MESSAGE","message":{"argumentText":"help","space":{"name":"spaces/S1"},"sender":{"name":"users/1"}}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"text":"hi"}`, body)
	assert.Equal(t, "help", got.ArgumentText())
}

func TestChatEmptyReply(t *testing.T) {
	srv := newTestServer(t, eventFunc(func(context.Context, chat.Event) (*chat.Reply, error) {
		return nil, nil
	}), nil)
	resp, body := post(t, srv.URL+"/chat", `{"type":"REMOVED_FROM_SPACE","space":{"name":"spaces/S1"}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestChatErrors(t *testing.T) {
	srv := newTestServer(t, eventFunc(func(context.Context, chat.Event) (*chat.Reply, error) {
		return nil, errors.New("store down")
	}), nil)

	resp, _ := post(t, srv.URL+"/chat", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = post(t, srv.URL+"/chat", `{"type":"ADDED_TO_SPACE"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestTriggerAlwaysOK(t *testing.T) {
	var rooms []string
	srv := newTestServer(t, nil, standupFunc(func(_ context.Context, roomID string) error {
		rooms = append(rooms, roomID)
		return errors.New("chat down")
	}))

	for _, body := range []string{`{"spaceId":"S1"}`, `{}`, `garbage`} {
		resp, text := post(t, srv.URL+"/trigger", body)
		assert.Equal(t, http.StatusOK, resp.StatusCode, body)
		assert.Equal(t, "OK", text)
	}
	assert.Equal(t, []string{"S1"}, rooms)
}

func TestPanicIsRecovered(t *testing.T) {
	srv := newTestServer(t, eventFunc(func(context.Context, chat.Event) (*chat.Reply, error) {
		panic("boom")
	}), nil)
	resp, _ := post(t, srv.URL+"/chat", `{"type":"MESSAGE"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealthzAndMethods(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/chat")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
