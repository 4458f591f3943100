package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterSettingsResponse_ConsumesOneMessage(t *testing.T) {
	var stream bytes.Buffer
	_, err := ClusterSettingsResponse{Settings: map[string]string{"cluster.name": "one"}}.WriteTo(&stream)
	require.NoError(t, err)
	_, err = ClusterSettingsResponse{Settings: map[string]string{"cluster.name": "two"}}.WriteTo(&stream)
	require.NoError(t, err)

	// Hide the ByteReader so the unbuffered path is used.
	r := io.MultiReader(&stream)

	first, err := ReadClusterSettingsResponse(r)
	require.NoError(t, err)
	assert.Equal(t, "one", first.Settings["cluster.name"])

	second, err := ReadClusterSettingsResponse(r)
	require.NoError(t, err)
	assert.Equal(t, "two", second.Settings["cluster.name"])

	_, err = ReadClusterSettingsResponse(r)
	assert.Error(t, err)
}

func TestReadClusterSettingsResponse_Truncated(t *testing.T) {
	var stream bytes.Buffer
	_, err := ClusterSettingsResponse{Settings: map[string]string{"a": "b"}}.WriteTo(&stream)
	require.NoError(t, err)

	truncated := stream.Bytes()[:stream.Len()-2]
	_, err = ReadClusterSettingsResponse(bytes.NewReader(truncated))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read response body")
}

func TestHandler_Dispatch(t *testing.T) {
	var got string
	var failed error
	h := Handler[string]{
		OnSuccess: func(s string) { got = s },
		OnFailure: func(err error) { failed = err },
	}
	assert.Equal(t, ExecutorGeneric, h.ExecutorName())

	h.Dispatch(Success("ok"))
	assert.Equal(t, "ok", got)
	assert.NoError(t, failed)

	boom := errors.New("connection refused")
	h.Dispatch(Failure[string](boom))
	assert.ErrorIs(t, failed, boom)
}

func TestHandler_DispatchRecoversPanic(t *testing.T) {
	h := Handler[int]{OnSuccess: func(int) { panic("handler bug") }}
	assert.NotPanics(t, func() { h.Dispatch(Success(1)) })
}

func TestHandler_HandleDecodeFailure(t *testing.T) {
	var failed error
	h := Handler[ClusterSettingsResponse]{
		OnSuccess: func(ClusterSettingsResponse) { t.Fatal("unexpected success") },
		OnFailure: func(err error) { failed = err },
		Read:      ReadClusterSettingsResponse,
	}

	h.Handle(bytes.NewReader([]byte{0x05, '{'}), nil)
	require.Error(t, failed)
	assert.Contains(t, failed.Error(), "failed to decode response")
}

// recordingSink collects outcomes delivered by the client.
type recordingSink struct {
	mu        sync.Mutex
	responses []ClusterSettingsResponse
	errs      []error
	handler   Handler[ClusterSettingsResponse]
}

func newRecordingSink() *recordingSink {
	s := &recordingSink{}
	s.handler = Handler[ClusterSettingsResponse]{
		OnSuccess: func(r ClusterSettingsResponse) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.responses = append(s.responses, r)
		},
		OnFailure: func(err error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.errs = append(s.errs, err)
		},
		Read: ReadClusterSettingsResponse,
	}
	return s
}

func (s *recordingSink) ExecutorName() string { return s.handler.ExecutorName() }
func (s *recordingSink) Handle(body io.Reader, err error) { s.handler.Handle(body, err) }

func TestClient_Send(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_cluster/settings" {
			http.Error(w, "no such endpoint", http.StatusNotFound)
			return
		}
		_, _ = ClusterSettingsResponse{Settings: map[string]string{"cluster.name": "stage"}}.WriteTo(w)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Workers: 2})
	sink := newRecordingSink()

	require.NoError(t, client.Send(context.Background(), Request{Name: "settings", URL: server.URL + "/_cluster/settings"}, sink))
	require.NoError(t, client.Send(context.Background(), Request{Name: "missing", URL: server.URL + "/nope"}, sink))
	require.NoError(t, client.Close())

	require.Len(t, sink.responses, 1)
	assert.Equal(t, "stage", sink.responses[0].Settings["cluster.name"])
	require.Len(t, sink.errs, 1)
	assert.Contains(t, sink.errs[0].Error(), "status 404")
}

func TestClient_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(ClientConfig{})
	sink := newRecordingSink()

	require.NoError(t, client.Send(context.Background(), Request{URL: url}, sink))
	require.NoError(t, client.Close())

	assert.Empty(t, sink.responses)
	assert.Len(t, sink.errs, 1)
}

func TestClient_SendAfterClose(t *testing.T) {
	client := NewClient(ClientConfig{})
	require.NoError(t, client.Close())

	sink := newRecordingSink()
	err := client.Send(context.Background(), Request{URL: "http://localhost:1"}, sink)
	require.Error(t, err)
	assert.Len(t, sink.errs, 1, "the sink hears about calls that were never scheduled")
}

func TestClient_QueuesBeyondWorkers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = ClusterSettingsResponse{Settings: map[string]string{"path": r.URL.Path}}.WriteTo(w)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{Workers: 2})
	sink := newRecordingSink()

	for i := 0; i < 6; i++ {
		require.NoError(t, client.Send(context.Background(), Request{URL: server.URL + "/_cluster/settings"}, sink))
	}
	require.NoError(t, client.Close())

	assert.Empty(t, sink.errs)
	assert.Len(t, sink.responses, 6)
}
