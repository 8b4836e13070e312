package server

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ai-gateway/chat-gateway/internal/credstore"
	"github.com/ai-gateway/chat-gateway/internal/gateway"
	"github.com/ai-gateway/chat-gateway/internal/guardrails"
	"github.com/ai-gateway/chat-gateway/internal/metrics"
	"github.com/ai-gateway/chat-gateway/internal/provider"
	"github.com/ai-gateway/chat-gateway/internal/provider/claudeai"
	"github.com/ai-gateway/chat-gateway/internal/provider/echo"
	"github.com/ai-gateway/chat-gateway/internal/routing"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

// failingProvider wraps echo but fails every message stream halfway.
type failingProvider struct {
	*echo.Provider
}

func (failingProvider) SendMessage(context.Context, string, string, string) (iter.Seq[provider.Event], error) {
	return provider.Events(provider.Completion("Hi"), provider.Failure("boom")), nil
}

type testEnv struct {
	store   *credstore.Memory
	handler http.Handler
}

func newTestEnv(t *testing.T, p provider.Provider) *testEnv {
	t.Helper()
	return newTestEnvFor(t, claudeai.Name, p)
}

// newTestEnvFor serves p as the active provider registered under name.
func newTestEnvFor(t *testing.T, name string, p provider.Provider) *testEnv {
	t.Helper()

	store := credstore.NewMemory()
	require.NoError(t, store.Set(credstore.KeyActiveProvider, name, true))
	require.NoError(t, store.Set(credstore.KeyActiveOrganizationID, "org-1", false))

	router := routing.New()
	router.Register(name, func(string) provider.Provider { return p })

	logger := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true})
	reg := prometheus.NewRegistry()
	gw := gateway.New(gateway.Options{
		Store:         store,
		Router:        router,
		LoginProvider: name,
		Guardrails:    guardrails.New(map[string]string{claudeai.Name: claudeai.SessionKeyPrefix}),
		Logger:        logger,
		Metrics:       metrics.New(reg),
	})
	srv := New(Options{Gateway: gw, Logger: logger, Gatherer: reg})
	return &testEnv{store: store, handler: srv.Handler()}
}

func (e *testEnv) login(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", `{"sessionKey":"sk-ant-test"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r), rec.Body.String())
	return r
}

func TestLogin(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, echo.New())

	rec := env.do(t, http.MethodPost, "/api/auth/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response{Status: "error", Message: "sessionKey is required"}, decode(t, rec))

	rec = env.do(t, http.MethodPost, "/api/auth/login", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/login", `{"sessionKey":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid sessionKey format", decode(t, rec).Message)

	before := time.Now()
	rec = env.do(t, http.MethodPost, "/api/auth/login", `{"sessionKey":"sk-ant-123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	r := decode(t, rec)
	assert.Equal(t, "success", r.Status)
	assert.Equal(t, "Successfully authenticated", r.Message)

	var data struct {
		Provider string `json:"provider"`
		Expires  string `json:"expires"`
	}
	require.NoError(t, json.Unmarshal(r.Data, &data))
	assert.Equal(t, claudeai.Name, data.Provider)
	expires, err := time.Parse(time.RFC3339, data.Expires)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(30*24*time.Hour), expires, 5*time.Second)
	assert.NotContains(t, rec.Body.String(), "sk-ant-123")
}

func TestChatLifecycle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, echo.New())
	env.login(t)

	// Listing works without an active project.
	rec := env.do(t, http.MethodGet, "/api/chats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","data":[]}`, rec.Body.String())

	// Creating needs one.
	rec = env.do(t, http.MethodPost, "/api/chats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec).Message, "No active project set")

	rec = env.do(t, http.MethodPost, "/api/chats/message", `{"message":"hello world","project_id":"proj-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply gateway.NewChatReply
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &reply))
	assert.NotEmpty(t, reply.ChatID)
	assert.Equal(t, "hello world", reply.Message)
	assert.Equal(t, "Echo: hello world", reply.Response)

	require.NoError(t, env.store.Set(credstore.KeyActiveProjectID, "proj-1", false))
	rec = env.do(t, http.MethodPost, "/api/chats/"+reply.ChatID, `{"message":"again"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","data":{"message":"again","response":"Echo: again"}}`, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/chats/"+reply.ChatID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var chat gateway.ChatDetail
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &chat))
	assert.Equal(t, reply.ChatID, chat.UUID)
	require.Len(t, chat.Messages, 4)
	assert.Equal(t, "hello world", chat.Messages[0].Text)
	assert.Equal(t, "Echo: again", chat.Messages[3].Text)

	rec = env.do(t, http.MethodPost, "/api/chats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))
	assert.NotEmpty(t, created["uuid"])

	rec = env.do(t, http.MethodGet, "/api/chats", "")
	var summaries []gateway.ChatSummary
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &summaries))
	require.Len(t, summaries, 2)
	assert.Equal(t, reply.ChatID, summaries[0].UUID)
	require.NotNil(t, summaries[0].ProjectID)
	assert.Equal(t, "proj-1", *summaries[0].ProjectID)
}

func TestMessageValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, echo.New())
	env.login(t)

	rec := env.do(t, http.MethodPost, "/api/chats/message", `{"project_id":"p"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is required", decode(t, rec).Message)

	rec = env.do(t, http.MethodPost, "/api/chats/message", `{"message":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "project_id is required", decode(t, rec).Message)

	rec = env.do(t, http.MethodPost, "/api/chats/abc", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "message is required", decode(t, rec).Message)
}

func TestStreamFailure(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, failingProvider{echo.New()})
	env.login(t)

	rec := env.do(t, http.MethodPost, "/api/chats/message", `{"message":"hi","project_id":"p"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"boom"}`, rec.Body.String())
	assert.False(t, strings.Contains(rec.Body.String(), "Hi"))
}

func TestEchoProviderActive(t *testing.T) {
	t.Parallel()

	env := newTestEnvFor(t, echo.Name, echo.New())

	rec := env.do(t, http.MethodPost, "/api/auth/login", `{"sessionKey":"offline"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login gateway.LoginResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &login))
	assert.Equal(t, echo.Name, login.Provider)

	sk, ok := env.store.SessionKey(echo.Name)
	require.True(t, ok)
	assert.Equal(t, "offline", sk.Key)

	rec = env.do(t, http.MethodGet, "/api/chats", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"status":"success","data":[]}`, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/chats/message", `{"message":"hi","project_id":"p"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var reply gateway.NewChatReply
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &reply))
	assert.Equal(t, "Echo: hi", reply.Response)
}

func TestNotLoggedIn(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, echo.New())
	rec := env.do(t, http.MethodGet, "/api/chats", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	r := decode(t, rec)
	assert.Equal(t, "error", r.Status)
	assert.Contains(t, r.Message, "No session key found")
}

func TestAmbientEndpoints(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, echo.New())
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success"}`, rec.Body.String())

	env.login(t)
	rec = env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chatgw_operations_total")
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, statusFor(&gateway.ValidationError{Message: "x"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(&gateway.ConfigurationError{Message: "x"}))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
