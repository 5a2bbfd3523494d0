package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/slack-itop-bridge/internal/api/http/handlers"
	"github.com/spec-kit/slack-itop-bridge/internal/chat"
	"github.com/spec-kit/slack-itop-bridge/internal/config"
	"github.com/spec-kit/slack-itop-bridge/internal/itop"
	"github.com/spec-kit/slack-itop-bridge/internal/observability"
	"github.com/spec-kit/slack-itop-bridge/internal/persistence"
	"github.com/spec-kit/slack-itop-bridge/internal/repository"
	"github.com/spec-kit/slack-itop-bridge/internal/service"
	"github.com/spec-kit/slack-itop-bridge/internal/tracker"
)

type slackCall struct {
	method string
	form   map[string]string
}

// fakeSlack answers the Web API methods used on assignment and records calls.
type fakeSlack struct {
	mu    sync.Mutex
	calls []slackCall
}

func (f *fakeSlack) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	call := slackCall{method: strings.TrimPrefix(r.URL.Path, "/"), form: map[string]string{}}
	for k := range r.PostForm {
		call.form[k] = r.PostForm.Get(k)
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch call.method {
	case "conversations.history":
		_, _ = io.WriteString(w, `{"ok":true,"messages":[{"type":"message","user":"UAUTHOR","text":"vpn down","ts":"1699999999.123456"}]}`)
	case "reactions.get":
		_, _ = io.WriteString(w, `{"ok":true,"type":"message","message":{"reactions":[]}}`)
	case "chat.postMessage":
		_, _ = io.WriteString(w, `{"ok":true,"channel":"C1","ts":"1700000000.000001"}`)
	default:
		_, _ = io.WriteString(w, `{"ok":true}`)
	}
}

func (f *fakeSlack) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

func (f *fakeSlack) find(method string) []slackCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []slackCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func TestAssignmentWebhookWithUnknownAssignee(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	slackAPI := &fakeSlack{}
	srv := httptest.NewServer(slackAPI)
	defer srv.Close()
	chatClient := chat.NewSlackClient(slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/")), logger)

	db, err := persistence.NewSQLite(ctx, filepath.Join(t.TempDir(), "user_db.sqlite"), logger)
	require.NoError(t, err)
	defer db.Close()
	members := service.NewMemberService(service.MemberDependencies{
		MemberRepo: repository.NewSQLiteMemberRepository(db.DB),
		Chat:       chatClient,
		Logger:     logger,
	})

	metrics := observability.NewMetrics()
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Chat:         chatClient,
		Tickets:      itop.NewClient(config.ITopConfig{Endpoint: "http://127.0.0.1:1"}, logger),
		Tracker:      tracker.NewFileTracker(filepath.Join(t.TempDir(), "threads.txt"), logger),
		Identity:     members,
		WorkspaceURL: "https://x.slack.com",
		Metrics:      metrics,
		Logger:       logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:   handlers.NewHealthHandler("bridge", "test", nil),
		Webhooks: handlers.NewWebhookHandler(lifecycle, logger),
		Metrics:  metrics,
	})

	body := `{"blocks":[{"type":"section","text":{"type":"mrkdwn","text":"Ticket R-000111 assigned\nLink to Slack: https://x.slack.com/archives/C1/p1699999999123456\nAssigned to: Jane Doe\nCaller: Ada"}}]}`
	req := httptest.NewRequest("POST", "/ticketassigned", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	posts := slackAPI.find("chat.postMessage")
	require.Len(t, posts, 1)
	assert.Equal(t, "C1", posts[0].form["channel"])
	assert.Equal(t, "1699999999.123456", posts[0].form["thread_ts"])
	assert.Equal(t, "Hi <@UAUTHOR>, your ticket is assigned to Jane Doe.", posts[0].form["text"])

	assert.Empty(t, slackAPI.find("conversations.open"))
	assert.Contains(t, slackAPI.methods(), "reactions.add")
	assert.Equal(t, 1, logs.FilterMessage("assignee not in identity store; skipping direct message").Len())
}
