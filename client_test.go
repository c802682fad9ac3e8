package agentapi_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentapi "github.com/coder/agentapi-sdk-go"
	"github.com/coder/agentapi-sdk-go/agenttest"
)

// fakeClock drives polling loops without real wall-clock delay.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  int
	onSleep func(sleeps int)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps++
	sleeps := c.sleeps
	hook := c.onSleep
	c.mu.Unlock()
	if hook != nil {
		hook(sleeps)
	}
}

// countingTransport counts requests passing through it.
type countingTransport struct {
	mu    sync.Mutex
	count int
	base  http.RoundTripper
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.count++
	t.mu.Unlock()
	return t.base.RoundTrip(req)
}

func (t *countingTransport) requests() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

func startServer(t *testing.T, opts ...agenttest.ServerOption) (*agenttest.Server, string) {
	t.Helper()
	server := agenttest.NewServer(opts...)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return server, ts.URL
}

func TestSendMessagePersistsUserMessages(t *testing.T) {
	server, url := startServer(t)
	client := agentapi.NewClient(url)
	defer client.Close()

	result, err := client.SendMessage("hello agent", agentapi.MessageKindUser)
	require.NoError(t, err)
	assert.True(t, result.OK)

	history := server.Snapshot()
	require.Len(t, history, 1)
	assert.Equal(t, "hello agent", history[0].Content)
	assert.Equal(t, agentapi.RoleUser, history[0].Role)
}

func TestSendMessageRawNotPersisted(t *testing.T) {
	server, url := startServer(t)
	client := agentapi.NewClient(url)
	defer client.Close()

	result, err := client.SendMessage("\x1b[A", agentapi.MessageKindRaw)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Empty(t, server.Snapshot())
}

func TestMessagesPreservesServerOrder(t *testing.T) {
	server, url := startServer(t)
	client := agentapi.NewClient(url)
	defer client.Close()

	_, err := client.SendMessage("one", agentapi.MessageKindUser)
	require.NoError(t, err)
	server.AddAgentMessage("two")
	_, err = client.SendMessage("three", agentapi.MessageKindUser)
	require.NoError(t, err)

	conv, err := client.Messages()
	require.NoError(t, err)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{conv.Messages[0].ID, conv.Messages[1].ID, conv.Messages[2].ID})
	assert.Equal(t, "three", conv.Last().Content)

	// The cached copy matches the most recent fetch.
	assert.Equal(t, conv, client.Conversation())
}

func TestStatus(t *testing.T) {
	server, url := startServer(t, agenttest.WithAgentType(agentapi.AgentTypeGoose))
	client := agentapi.NewClient(url)
	defer client.Close()

	status, err := client.Status()
	require.NoError(t, err)
	assert.True(t, status.IsIdle())
	assert.Equal(t, agentapi.AgentTypeGoose, status.AgentType)

	server.SetStatus(agentapi.AgentStatusRunning)
	status, err = client.Status()
	require.NoError(t, err)
	assert.True(t, status.IsRunning())
}

func TestChatReturnsNewestMessage(t *testing.T) {
	_, url := startServer(t, agenttest.WithResponder(func(string) string { return "hi" }))
	client := agentapi.NewClient(url)
	defer client.Close()

	reply, err := client.Chat("hello")
	require.NoError(t, err)
	assert.Equal(t, "hi", reply)
}

func TestChatEmptyHistory(t *testing.T) {
	// A server whose history endpoint reports nothing at all.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /message", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"body":{"ok":true}}`))
	})
	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"body":{"messages":[]}}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := agentapi.NewClient(ts.URL)
	defer client.Close()

	reply, err := client.Chat("anyone there?")
	require.NoError(t, err)
	assert.Equal(t, "", reply)
}

func TestUploadRoundTrip(t *testing.T) {
	server, url := startServer(t)
	client := agentapi.NewClient(url)
	defer client.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("agent homework"), 0o600))

	result, err := client.Upload(path)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, "/uploads/notes.txt", result.FilePath)

	stored, ok := server.Upload("notes.txt")
	require.True(t, ok)
	assert.Equal(t, []byte("agent homework"), stored)
}

func TestUploadMissingFileIssuesNoRequest(t *testing.T) {
	_, url := startServer(t)
	transport := &countingTransport{base: http.DefaultTransport}
	client := agentapi.NewClient(url, agentapi.WithHTTPClient(&http.Client{Transport: transport}))
	defer client.Close()

	_, err := client.Upload(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	var notFound *agentapi.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Zero(t, transport.requests(), "no network request may be issued for a missing local file")
}

func TestWaitUntilIdleBecomesIdle(t *testing.T) {
	server, url := startServer(t, agenttest.WithStatus(agentapi.AgentStatusRunning))
	clock := newFakeClock()
	clock.onSleep = func(sleeps int) {
		if sleeps == 3 {
			server.SetStatus(agentapi.AgentStatusStable)
		}
	}
	client := agentapi.NewClient(url, agentapi.WithClock(clock))
	defer client.Close()

	idle, err := client.WaitUntilIdle(time.Minute)
	require.NoError(t, err)
	assert.True(t, idle)
	assert.Equal(t, 3, clock.sleeps)
}

func TestWaitUntilIdleTimesOut(t *testing.T) {
	_, url := startServer(t, agenttest.WithStatus(agentapi.AgentStatusRunning))
	clock := newFakeClock()
	client := agentapi.NewClient(url, agentapi.WithClock(clock))
	defer client.Close()

	idle, err := client.WaitUntilIdle(2 * time.Second)
	require.NoError(t, err)
	assert.False(t, idle)
	// Polls at 500ms granularity never overshoot the timeout by more than
	// one interval.
	assert.Equal(t, 4, clock.sleeps)
}

func TestWaitUntilIdlePropagatesStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer ts.Close()

	client := agentapi.NewClient(ts.URL, agentapi.WithClock(newFakeClock()))
	defer client.Close()

	_, err := client.WaitUntilIdle(time.Second)
	var transportErr *agentapi.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, http.StatusInternalServerError, transportErr.StatusCode)
}

func TestTransportErrorOnConnectionFailure(t *testing.T) {
	// Nothing listens here.
	client := agentapi.NewClient("http://127.0.0.1:1")
	defer client.Close()

	_, err := client.Status()
	var transportErr *agentapi.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Zero(t, transportErr.StatusCode)
	assert.Error(t, transportErr.Unwrap())
}

func TestFormatErrorOnMalformedTimestamp(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"body":{"messages":[{"id":0,"content":"x","role":"user","time":"not-a-time"}]}}`))
	}))
	defer ts.Close()

	client := agentapi.NewClient(ts.URL)
	defer client.Close()

	_, err := client.Messages()
	var formatErr *agentapi.FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Equal(t, "time", formatErr.Field)
}

func TestClosedClient(t *testing.T) {
	_, url := startServer(t)
	client := agentapi.NewClient(url)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close(), "closing twice is fine")

	var closedErr *agentapi.ClosedClientError

	_, err := client.Status()
	assert.ErrorAs(t, err, &closedErr)
	_, err = client.SendMessage("x", agentapi.MessageKindUser)
	assert.ErrorAs(t, err, &closedErr)
	_, err = client.Messages()
	assert.ErrorAs(t, err, &closedErr)
	_, err = client.Upload("x")
	assert.ErrorAs(t, err, &closedErr)
	_, err = client.WaitUntilIdle(time.Second)
	assert.ErrorAs(t, err, &closedErr)
	assert.ErrorAs(t, client.Health(), &closedErr)
}

func TestBearerTokenAttached(t *testing.T) {
	_, url := startServer(t, agenttest.WithAPIKey("sekret"))

	t.Run("matching key", func(t *testing.T) {
		client := agentapi.NewClient(url, agentapi.WithAPIKey("sekret"))
		defer client.Close()
		_, err := client.Status()
		assert.NoError(t, err)
	})

	t.Run("wrong key", func(t *testing.T) {
		client := agentapi.NewClient(url, agentapi.WithAPIKey("nope"))
		defer client.Close()
		_, err := client.Status()
		var transportErr *agentapi.TransportError
		require.ErrorAs(t, err, &transportErr)
		assert.Equal(t, http.StatusUnauthorized, transportErr.StatusCode)
	})
}

func TestHealth(t *testing.T) {
	_, url := startServer(t)
	client := agentapi.NewClient(url)
	defer client.Close()
	assert.NoError(t, client.Health())
}
