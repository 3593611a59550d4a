package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastRetry() notify.Option {
	return notify.WithRetry(3, time.Millisecond, 5*time.Millisecond)
}

func TestDispatch_signsAndFilters(t *testing.T) {
	var (
		mu       sync.Mutex
		received []notify.Event
		sigOK    = true
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev notify.Event
		_ = json.Unmarshal(body, &ev)
		mu.Lock()
		received = append(received, ev)
		if r.Header.Get(notify.SignatureHeader) != notify.Sign(body, "s3cret") {
			sigOK = false
		}
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := notify.New([]notify.Endpoint{
		{URL: srv.URL, Secret: "s3cret", Events: []string{notify.EventFlagReviewed}},
	}, zap.NewNop(), fastRetry())

	var outcomes atomic.Int32
	n.SetMetricsRecorder(func(_ string, success bool) {
		if success {
			outcomes.Add(1)
		}
	})

	n.Dispatch(context.Background(), notify.EventFlagCreated, map[string]int64{"flag_id": 1})
	n.Dispatch(context.Background(), notify.EventFlagReviewed, map[string]int64{"flag_id": 1})
	n.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, notify.EventFlagReviewed, received[0].Type)
	assert.True(t, sigOK)
	assert.Equal(t, int32(1), outcomes.Load())
}

func TestDispatch_retriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := notify.New([]notify.Endpoint{{URL: srv.URL}}, zap.NewNop(), fastRetry())
	var ok atomic.Bool
	n.SetMetricsRecorder(func(_ string, success bool) { ok.Store(success) })

	n.Dispatch(context.Background(), notify.EventAutoModBlocked, nil)
	n.Wait()

	assert.Equal(t, int32(3), calls.Load())
	assert.True(t, ok.Load())
}

func TestDispatch_survivesCancelledContext(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	n := notify.New([]notify.Endpoint{{URL: srv.URL}}, zap.NewNop(), fastRetry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.Dispatch(ctx, notify.EventReportFiled, map[string]string{"reason": "scam"})
	n.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestEndpointWants(t *testing.T) {
	assert.True(t, notify.Endpoint{}.Wants(notify.EventFlagCreated))
	assert.True(t, notify.Endpoint{Events: []string{"*"}}.Wants(notify.EventFlagCreated))
	assert.False(t, notify.Endpoint{Events: []string{notify.EventReportFiled}}.Wants(notify.EventFlagCreated))
}
