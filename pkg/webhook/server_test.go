package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linechat/pkg/dispatch"
)

const testSecret = "test-channel-secret"

type fakeHandler struct {
	reply    func(msg dispatch.Inbound) (dispatch.Reply, bool)
	received []dispatch.Inbound
	mu       sync.Mutex
}

func (f *fakeHandler) Handle(_ context.Context, msg dispatch.Inbound) (dispatch.Reply, bool) {
	f.mu.Lock()
	f.received = append(f.received, msg)
	f.mu.Unlock()
	if f.reply == nil {
		return dispatch.Reply{Text: "re:" + msg.Text}, true
	}
	return f.reply(msg)
}

func (f *fakeHandler) Active() bool  { return true }
func (f *fakeHandler) Sessions() int { return 3 }

type sentReply struct {
	token string
	text  string
}

type fakeReplier struct {
	err  error
	sent []sentReply
	mu   sync.Mutex
}

func (f *fakeReplier) Reply(_ context.Context, replyToken, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentReply{token: replyToken, text: text})
	return nil
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func textEvent(replyToken, source, text string) string {
	return `{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":"01HXYZ",` +
		`"deliveryContext":{"isRedelivery":false},"replyToken":"` + replyToken + `",` +
		`"source":` + source + `,` +
		`"message":{"type":"text","id":"1","text":"` + text + `","quoteToken":"q"}}`
}

func callbackBody(events ...string) string {
	return `{"destination":"Ubot","events":[` + strings.Join(events, ",") + `]}`
}

func newTestServer(handler *fakeHandler, replier *fakeReplier) (*Server, *http.ServeMux) {
	srv := NewServer(testSecret, handler, replier, prometheus.NewRegistry())
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return srv, mux
}

func post(mux *http.ServeMux, path, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("X-Line-Signature", signature)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestRootAndFavicon(t *testing.T) {
	_, mux := newTestServer(&fakeHandler{}, &fakeReplier{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RootBanner, rec.Body.String())

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	_, mux := newTestServer(&fakeHandler{}, &fakeReplier{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["active"])
	assert.Equal(t, 3.0, body["sessions"])
	assert.Contains(t, body, "version")
}

func TestCallbackDispatchesTextMessage(t *testing.T) {
	handler := &fakeHandler{}
	replier := &fakeReplier{}
	_, mux := newTestServer(handler, replier)

	body := callbackBody(textEvent("rt-1", `{"type":"user","userId":"U1"}`, "hello"))
	rec := post(mux, "/webhook", body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	require.Len(t, handler.received, 1)
	assert.Equal(t, dispatch.Inbound{UserID: "U1", Text: "hello", ReplyToken: "rt-1"}, handler.received[0])
	assert.Equal(t, []sentReply{{token: "rt-1", text: "re:hello"}}, replier.sent)
}

func TestCallbackAlias(t *testing.T) {
	handler := &fakeHandler{}
	_, mux := newTestServer(handler, &fakeReplier{})

	body := callbackBody(textEvent("rt-1", `{"type":"user","userId":"U1"}`, "hi"))
	rec := post(mux, "/callback", body, sign(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, handler.received, 1)
}

func TestCallbackInvalidSignature(t *testing.T) {
	handler := &fakeHandler{}
	replier := &fakeReplier{}
	_, mux := newTestServer(handler, replier)

	body := callbackBody(textEvent("rt-1", `{"type":"user","userId":"U1"}`, "hello"))
	rec := post(mux, "/webhook", body, sign(body+"tampered"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, handler.received)
	assert.Empty(t, replier.sent)
}

func TestCallbackMalformedBody(t *testing.T) {
	handler := &fakeHandler{}
	_, mux := newTestServer(handler, &fakeReplier{})

	body := `{"destination":`
	rec := post(mux, "/webhook", body, sign(body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, handler.received)
}

func TestCallbackRejectsGet(t *testing.T) {
	_, mux := newTestServer(&fakeHandler{}, &fakeReplier{})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webhook", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCallbackEmptyEvents(t *testing.T) {
	handler := &fakeHandler{}
	_, mux := newTestServer(handler, &fakeReplier{})

	body := callbackBody()
	rec := post(mux, "/webhook", body, sign(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, handler.received)
}

func TestCallbackIgnoresNonTextEvents(t *testing.T) {
	handler := &fakeHandler{}
	replier := &fakeReplier{}
	srv, mux := newTestServer(handler, replier)

	follow := `{"type":"follow","mode":"active","timestamp":1,"webhookEventId":"01A",` +
		`"deliveryContext":{"isRedelivery":false},"replyToken":"rt-f",` +
		`"source":{"type":"user","userId":"U1"},"follow":{"isUnblocked":false}}`
	sticker := `{"type":"message","mode":"active","timestamp":1,"webhookEventId":"01B",` +
		`"deliveryContext":{"isRedelivery":false},"replyToken":"rt-s",` +
		`"source":{"type":"user","userId":"U1"},` +
		`"message":{"type":"sticker","id":"2","packageId":"1","stickerId":"1","stickerResourceType":"STATIC","quoteToken":"q"}}`
	body := callbackBody(follow, sticker, textEvent("rt-t", `{"type":"user","userId":"U1"}`, "hello"))
	rec := post(mux, "/webhook", body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, handler.received, 1)
	assert.Equal(t, "rt-t", handler.received[0].ReplyToken)
	assert.Equal(t, 2.0, testutil.ToFloat64(srv.eventsTotal.WithLabelValues("ignored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.eventsTotal.WithLabelValues("text")))
}

func TestCallbackSourceKeys(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"user", `{"type":"user","userId":"U1"}`, "U1"},
		{"group with user", `{"type":"group","groupId":"G1","userId":"U2"}`, "U2"},
		{"group without user", `{"type":"group","groupId":"G1"}`, "G1"},
		{"room with user", `{"type":"room","roomId":"R1","userId":"U3"}`, "U3"},
		{"room without user", `{"type":"room","roomId":"R1"}`, "R1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &fakeHandler{}
			_, mux := newTestServer(handler, &fakeReplier{})

			body := callbackBody(textEvent("rt", tt.source, "hello"))
			rec := post(mux, "/webhook", body, sign(body))

			require.Equal(t, http.StatusOK, rec.Code)
			require.Len(t, handler.received, 1)
			assert.Equal(t, tt.want, handler.received[0].UserID)
		})
	}
}

func TestCallbackNoReply(t *testing.T) {
	handler := &fakeHandler{reply: func(dispatch.Inbound) (dispatch.Reply, bool) {
		return dispatch.Reply{}, false
	}}
	replier := &fakeReplier{}
	_, mux := newTestServer(handler, replier)

	body := callbackBody(textEvent("rt-1", `{"type":"user","userId":"U1"}`, "hello"))
	rec := post(mux, "/webhook", body, sign(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, handler.received, 1)
	assert.Empty(t, replier.sent)
}

func TestCallbackReplyFailureIsCounted(t *testing.T) {
	handler := &fakeHandler{}
	replier := &fakeReplier{err: errors.New("unexpected status code: 400, invalid reply token")}
	srv, mux := newTestServer(handler, replier)

	body := callbackBody(
		textEvent("rt-1", `{"type":"user","userId":"U1"}`, "one"),
		textEvent("rt-2", `{"type":"user","userId":"U2"}`, "two"),
	)
	rec := post(mux, "/webhook", body, sign(body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, handler.received, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(srv.replyFailures))
}
