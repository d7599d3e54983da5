package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"crm-dialer/internal/calls"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLog struct{ got []calls.Activity }

func (r *recordingLog) RecordActivity(ctx context.Context, a calls.Activity) error {
	r.got = append(r.got, a)
	return nil
}

func TestActivityCountsAndForwards(t *testing.T) {
	m := New()
	next := &recordingLog{}

	repo := calls.NewMemoryRepo()
	sync := calls.NewSynchronizer(repo)
	sync.Pending = calls.NewMemoryPending()
	sync.Activity = m.Activity(next)

	ctx := context.Background()
	c, err := sync.Create(ctx, calls.NewCall{ProjectID: "p", To: "+1"})
	require.NoError(t, err)

	require.NoError(t, sync.HandleStatus(ctx, calls.Event{ProviderCallID: "leg-1", Status: calls.StatusRinging, RawStatus: "ringing"}))
	require.NoError(t, sync.Link(ctx, c.CallID, "leg-1"))
	require.NoError(t, sync.HandleRecording(ctx, "leg-1", "https://rec/1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("status", "parked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("recording", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.links))
	assert.Len(t, next.got, 3)

	// A nil next is allowed.
	require.NoError(t, m.Activity(nil).RecordActivity(ctx, calls.Activity{Kind: "status", Outcome: calls.OutcomeApplied}))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.POST("/webhooks/voice/event", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"received": true}) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/webhooks/voice/event", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/webhooks/voice/event", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "unmatched", "404")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "crm_dialer_http_requests_total")
}
