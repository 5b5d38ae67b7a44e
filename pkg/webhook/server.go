// Package webhook serves the LINE webhook and the small set of status routes around it.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"linechat/pkg/dispatch"
	"linechat/pkg/logx"
	"linechat/pkg/version"
)

// RootBanner is the body served on "/".
const RootBanner = "✅ Line AI Bot is running!"

// MessageHandler turns an inbound chat message into an optional reply.
type MessageHandler interface {
	Handle(ctx context.Context, msg dispatch.Inbound) (dispatch.Reply, bool)
	Active() bool
	Sessions() int
}

// Server handles LINE webhook callbacks.
type Server struct {
	handler       MessageHandler
	replier       Replier
	logger        *logx.Logger
	eventsTotal   *prometheus.CounterVec
	replyFailures prometheus.Counter
	channelSecret string
}

// NewServer creates a webhook server. Metrics are registered with reg when it is non-nil.
func NewServer(channelSecret string, handler MessageHandler, replier Replier, reg prometheus.Registerer) *Server {
	factory := promauto.With(reg)
	return &Server{
		handler:       handler,
		replier:       replier,
		channelSecret: channelSecret,
		logger:        logx.NewLogger("webhook"),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linechat_webhook_events_total",
				Help: "Webhook events received, by kind",
			},
			[]string{"kind"},
		),
		replyFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "linechat_reply_failures_total",
				Help: "Replies that could not be delivered to LINE",
			},
		),
	}
}

// RegisterRoutes registers the webhook and status routes with mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/favicon.ico", s.handleFavicon)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/webhook", s.handleCallback)
	mux.HandleFunc("/callback", s.handleCallback)
}

// handleRoot implements GET /.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(RootBanner))
}

// handleFavicon implements /favicon.ico.
func (s *Server) handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := struct {
		Status   string `json:"status"`
		Version  string `json:"version"`
		Sessions int    `json:"sessions"`
		Active   bool   `json:"active"`
	}{
		Status:   "ok",
		Version:  version.Version,
		Sessions: s.handler.Sessions(),
		Active:   s.handler.Active(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// handleCallback implements POST /webhook (and its /callback alias).
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cb, err := webhook.ParseRequest(s.channelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			s.logger.Warn("Rejected webhook call with invalid signature from %s", r.RemoteAddr)
			http.Error(w, "Invalid signature", http.StatusBadRequest)
			return
		}
		s.logger.Error("Failed to parse webhook request: %v", err)
		http.Error(w, "Failed to parse request", http.StatusInternalServerError)
		return
	}

	// Turns outlive a dropped callback connection.
	ctx := context.WithoutCancel(r.Context())
	for _, event := range cb.Events {
		s.handleEvent(ctx, event)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleEvent(ctx context.Context, event webhook.EventInterface) {
	msgEvent, ok := event.(webhook.MessageEvent)
	if !ok {
		s.eventsTotal.WithLabelValues("ignored").Inc()
		s.logger.Debug("Ignoring %s event", event.GetType())
		return
	}

	text, ok := msgEvent.Message.(webhook.TextMessageContent)
	if !ok {
		s.eventsTotal.WithLabelValues("ignored").Inc()
		s.logger.Debug("Ignoring non-text message of type %s", msgEvent.Message.GetType())
		return
	}

	userID := sourceKey(msgEvent.Source)
	if userID == "" {
		s.eventsTotal.WithLabelValues("ignored").Inc()
		s.logger.Warn("Ignoring text message without a usable source id")
		return
	}
	s.eventsTotal.WithLabelValues("text").Inc()

	reply, ok := s.handler.Handle(ctx, dispatch.Inbound{
		UserID:     userID,
		Text:       text.Text,
		ReplyToken: msgEvent.ReplyToken,
	})
	if !ok {
		return
	}

	if err := s.replier.Reply(ctx, msgEvent.ReplyToken, reply.Text); err != nil {
		s.replyFailures.Inc()
		s.logger.Error("Failed to deliver reply to %s: %v", userID, err)
		return
	}
	s.logger.Info("Delivered reply to %s", userID)
}

// sourceKey returns the history key for an event source: the sending user when known,
// otherwise the group or room.
func sourceKey(source webhook.SourceInterface) string {
	switch src := source.(type) {
	case webhook.UserSource:
		return src.UserId
	case webhook.GroupSource:
		if src.UserId != "" {
			return src.UserId
		}
		return src.GroupId
	case webhook.RoomSource:
		if src.UserId != "" {
			return src.UserId
		}
		return src.RoomId
	default:
		return ""
	}
}
