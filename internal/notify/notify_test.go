package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-dev/taskflow/internal/task"
)

type fixedToken string

func (f fixedToken) PushPlusToken() string { return string(f) }

func TestNotify_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]int{"code": 200})
	}))
	defer srv.Close()

	c := NewClient(Config{
		Endpoint:       srv.URL,
		RetryBaseDelay: 10 * time.Millisecond,
		RetryAttempts:  3,
	}, zerolog.Nop())

	start := time.Now()
	c.Notify(context.Background(), &task.HistoryRecord{Name: "T", Status: task.StatusCompleted}, fixedToken("tok"))
	elapsed := time.Since(start)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Less(t, elapsed, 2*time.Second)
}

func TestNotify_SkipsWhenNoToken(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	os.Unsetenv("MSG_PUSH_TOKEN")
	c := NewClient(Config{Endpoint: srv.URL}, zerolog.Nop())
	c.Notify(context.Background(), &task.HistoryRecord{Name: "T", Status: task.StatusCompleted}, fixedToken(""))

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestNotify_SkipsWhenSilentMode(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	os.Setenv("MTF_SILENT_MODE", "true")
	defer os.Unsetenv("MTF_SILENT_MODE")

	c := NewClient(Config{Endpoint: srv.URL}, zerolog.Nop())
	c.Notify(context.Background(), &task.HistoryRecord{Name: "T", Status: task.StatusCompleted}, fixedToken("tok"))

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "1h 1m 1s", formatDuration(time.Hour+time.Minute+time.Second))
}
