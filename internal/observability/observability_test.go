package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/slack-itop-bridge/internal/config"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.TicketCreated()
	m.TicketCreated()
	m.DuplicateMention()
	m.UpstreamFailure("itop.create")
	m.RecordRequest("/ticketassigned", "POST", 200, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticketsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.duplicateMentions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamFailures.WithLabelValues("itop.create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/ticketassigned", "200")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.TicketCreated()
		m.TicketAssigned()
		m.TicketResolved()
		m.DuplicateMention()
		m.UpstreamFailure("slack")
		m.RecordError("/", "GET", "X")
		m.RecordRequest("/", "GET", 200, time.Second)
	})
}

func TestRequestLoggerAssignsID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), NewMetrics()))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString(RequestID(c)) })

	resp, err := app.Test(httptest.NewRequest("GET", "/ping", nil))
	require.NoError(t, err)
	id := resp.Header.Get(RequestIDHeader)
	assert.NotEmpty(t, id)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Header.Get(RequestIDHeader))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "abc", entries[1].ContextMap()["request_id"])
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "loud"}, "test")
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
