package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotify_PostsJSONPayload(t *testing.T) {
	var (
		got   Payload
		calls int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(time.Second, zap.NewNop())
	err := n.Notify(context.Background(), srv.URL, Payload{
		RequestID: "req-1",
		Status:    "complete",
		OutputCSV: "https://bucket/csvfile/req-1_output.csv",
		Message:   CompletedMessage,
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "complete", got.Status)
	assert.Equal(t, "https://bucket/csvfile/req-1_output.csv", got.OutputCSV)
	assert.Equal(t, CompletedMessage, got.Message)
}

func TestNotify_Non2xxIsError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(time.Second, zap.NewNop()).Notify(context.Background(), srv.URL, Payload{RequestID: "r"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "no retry")
}

func TestNotify_TimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	start := time.Now()
	err := NewWebhookNotifier(100*time.Millisecond, zap.NewNop()).Notify(context.Background(), srv.URL, Payload{RequestID: "r"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNotify_UnreachableURL(t *testing.T) {
	err := NewWebhookNotifier(time.Second, zap.NewNop()).Notify(context.Background(), "http://127.0.0.1:1/hook", Payload{RequestID: "r"})
	assert.Error(t, err)
}
