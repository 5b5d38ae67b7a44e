package kernel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linechat/pkg/config"
	"linechat/pkg/dispatch"
	"linechat/pkg/llm"
	"linechat/pkg/llmerrors"
)

type recordingReplier struct {
	texts []string
	mu    sync.Mutex
}

func (r *recordingReplier) Reply(_ context.Context, _, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

// fakeOpenAI serves /v1/chat/completions with the given status and body.
func fakeOpenAI(t *testing.T, status int, body func(req map[string]any) string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(data, &req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body(req)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func completionBody(content string) string {
	return `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-3.5-turbo",` +
		`"choices":[{"index":0,"finish_reason":"stop","logprobs":null,` +
		`"message":{"role":"assistant","content":"` + content + `","refusal":null}}],` +
		`"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.Line.ChannelAccessToken = "token"
	cfg.Line.ChannelSecret = "secret"
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = baseURL
	cfg.Bot.SystemDirective = "You are a helpful assistant."
	return cfg
}

func postMessage(t *testing.T, handler http.Handler, userID, text string) *httptest.ResponseRecorder {
	t.Helper()
	body := `{"destination":"Ubot","events":[{"type":"message","mode":"active","timestamp":1,` +
		`"webhookEventId":"01H","deliveryContext":{"isRedelivery":false},"replyToken":"rt",` +
		`"source":{"type":"user","userId":"` + userID + `"},` +
		`"message":{"type":"text","id":"1","text":"` + text + `","quoteToken":"q"}}]}`
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(body))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("X-Line-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestConversationEndToEnd(t *testing.T) {
	var mu sync.Mutex
	var messageCounts []int
	openai := fakeOpenAI(t, http.StatusOK, func(req map[string]any) string {
		msgs, _ := req["messages"].([]any)
		mu.Lock()
		messageCounts = append(messageCounts, len(msgs))
		mu.Unlock()
		return completionBody("hi there")
	})

	replier := &recordingReplier{}
	k, err := NewKernel(testConfig(openai.URL + "/v1/"))
	require.NoError(t, err)
	handler := k.Handler(replier)

	require.Equal(t, http.StatusOK, postMessage(t, handler, "U1", "hello").Code)
	require.Equal(t, http.StatusOK, postMessage(t, handler, "U1", "again").Code)
	require.Equal(t, http.StatusOK, postMessage(t, handler, "U1", "安靜").Code)
	require.Equal(t, http.StatusOK, postMessage(t, handler, "U1", "ignored").Code)

	assert.Equal(t, []string{"hi there", "hi there", config.Default().Bot.DeactivateReply}, replier.texts)
	// directive + user, then directive + user + assistant + user
	assert.Equal(t, []int{2, 4}, messageCounts)
	assert.False(t, k.Dispatcher.Active())
	assert.Equal(t, 1, k.Dispatcher.Sessions())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "linechat_llm_requests_total")
	assert.Contains(t, rec.Body.String(), `linechat_turns_total{outcome="replied"} 2`)
}

func TestProviderErrorEndToEnd(t *testing.T) {
	openai := fakeOpenAI(t, http.StatusTooManyRequests, func(map[string]any) string {
		return `{"error":{"message":"rate limit exceeded","type":"requests","param":null,"code":"rate_limit_exceeded"}}`
	})

	replier := &recordingReplier{}
	k, err := NewKernel(testConfig(openai.URL + "/v1/"))
	require.NoError(t, err)
	handler := k.Handler(replier)

	require.Equal(t, http.StatusOK, postMessage(t, handler, "U1", "hello").Code)
	require.Len(t, replier.texts, 1)
	assert.True(t, strings.HasPrefix(replier.texts[0], llmerrors.ProviderReplyPrefix), replier.texts[0])
	assert.Contains(t, replier.texts[0], "rate limit exceeded")
}

// slowClient blocks until its context ends.
type slowClient struct{}

func (slowClient) Complete(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
	<-ctx.Done()
	return llm.CompletionResponse{}, ctx.Err()
}

func (slowClient) GetModelName() string { return "slow" }

func TestTimeoutIsSurfacedAsProviderError(t *testing.T) {
	cfg := testConfig("")
	cfg.OpenAI.Timeout = 20 * time.Millisecond
	k, err := NewKernel(cfg, WithBaseClient(slowClient{}))
	require.NoError(t, err)

	reply, ok := k.Dispatcher.Handle(context.Background(), dispatchInbound("U1", "hello"))
	require.True(t, ok)
	assert.Equal(t, "OpenAI API 錯誤: request timed out after 20ms", reply.Text)
}

func TestKernelAppliesConfig(t *testing.T) {
	cfg := testConfig("")
	cfg.Bot.DefaultTalking = false
	cfg.Bot.ContextWindow = 4
	k, err := NewKernel(cfg, WithBaseClient(llm.NewMockClient(nil, nil)))
	require.NoError(t, err)

	assert.False(t, k.Gate.IsActive())
	assert.Equal(t, 4, k.Contexts.Window())
	assert.Equal(t, "You are a helpful assistant.", k.Contexts.Directive())
	assert.Equal(t, "mock", k.LLMClient.GetModelName())
}

func TestKernelRejectsInvalidParams(t *testing.T) {
	cfg := testConfig("")
	cfg.OpenAI.MaxTokens = 0

	k, err := NewKernel(cfg, WithBaseClient(llm.NewMockClient(nil, nil)))
	require.Error(t, err)
	assert.Nil(t, k)
	assert.Contains(t, err.Error(), "invalid completion parameters")
}

func TestScriptedClientThroughMiddleware(t *testing.T) {
	mock := llm.NewMockClient(
		[]llm.CompletionResponse{{}, {Content: "second answer"}},
		[]error{llmerrors.NewProviderError(llmerrors.ReasonServer, 503, "overloaded", nil)},
	)
	cfg := testConfig("")
	cfg.OpenAI.MaxTokens = 256
	cfg.Bot.RecordErrorReplies = true
	k, err := NewKernel(cfg, WithBaseClient(mock))
	require.NoError(t, err)

	reply, ok := k.Dispatcher.Handle(context.Background(), dispatchInbound("U1", "first"))
	require.True(t, ok)
	assert.Equal(t, "OpenAI API 錯誤: overloaded", reply.Text)

	reply, ok = k.Dispatcher.Handle(context.Background(), dispatchInbound("U1", "second"))
	require.True(t, ok)
	assert.Equal(t, "second answer", reply.Text)

	requests := mock.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, 256, requests[1].MaxTokens)
	// directive, first, recorded error reply, second
	require.Len(t, requests[1].Messages, 4)
	assert.Equal(t, llm.NewAssistantMessage("OpenAI API 錯誤: overloaded"), requests[1].Messages[2])
}

func dispatchInbound(userID, text string) dispatch.Inbound {
	return dispatch.Inbound{UserID: userID, Text: text}
}
