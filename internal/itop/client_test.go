package itop

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/slack-itop-bridge/internal/config"
	"github.com/spec-kit/slack-itop-bridge/internal/domain"
)

type captured struct {
	auth        string
	contentType string
	payload     map[string]any
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(raw))
		require.NoError(t, err)

		got.auth = r.Header.Get("Authorization")
		got.contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.Unmarshal([]byte(form.Get("json_data")), &got.payload))

		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func newClient(endpoint string) *Client {
	return NewClient(config.ITopConfig{
		Endpoint:            endpoint,
		BasicAuthentication: "dXNlcjpwYXNz",
		Organization:        "xxx",
	}, zap.NewNop())
}

func TestCreateTicket(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK,
		`{"code":0,"message":null,"objects":{"UserRequest::42":{"code":0,"key":"42","fields":{"id":"42","friendlyname":"R-000042"}}}}`)

	ref, err := newClient(srv.URL).CreateTicket(context.Background(), domain.TicketRequest{
		Caller:       domain.Caller{FirstName: "Jane", LastName: "Doe"},
		Title:        "Slack issue",
		Description:  "slack &amp; mail down",
		SlackAddress: "https://xxx.slack.com/archives/C1/p1699999999123456",
	})
	require.NoError(t, err)
	assert.Equal(t, "R-000042", ref)

	assert.Equal(t, "Basic dXNlcjpwYXNz", got.auth)
	assert.Contains(t, got.contentType, "application/x-www-form-urlencoded")
	assert.Equal(t, "core/create", got.payload["operation"])
	assert.Equal(t, "UserRequest", got.payload["class"])

	fields := got.payload["fields"].(map[string]any)
	assert.Equal(t, `SELECT Organization WHERE name = "xxx"`, fields["org_id"])
	assert.Equal(t, map[string]any{"name": "Doe", "first_name": "Jane"}, fields["caller_id"])
	assert.Equal(t, "Slack issue", fields["title"])
	assert.Equal(t, "slack &amp; mail down", fields["description"])
	assert.Equal(t, "https://xxx.slack.com/archives/C1/p1699999999123456", fields["slack_address"])
}

func TestCreateTicketHTTPError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusInternalServerError, "boom")

	_, err := newClient(srv.URL).CreateTicket(context.Background(), domain.TicketRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestCreateTicketITopCodeError(t *testing.T) {
	srv, _ := newTestServer(t, http.StatusOK, `{"code":100,"message":"Error: org_id: not found"}`)

	_, err := newClient(srv.URL).CreateTicket(context.Background(), domain.TicketRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 100, apiErr.Code)
}

func TestAppendPublicLog(t *testing.T) {
	srv, got := newTestServer(t, http.StatusOK, `{"code":0,"objects":{}}`)

	require.NoError(t, newClient(srv.URL).AppendPublicLog(context.Background(), "R-000111", "thanks, works now"))

	assert.Equal(t, "core/update", got.payload["operation"])
	assert.Equal(t, map[string]any{"ref": "R-000111"}, got.payload["key"])
	assert.Equal(t, map[string]any{"public_log": "thanks, works now"}, got.payload["fields"])
}
