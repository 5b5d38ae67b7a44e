// Package dispatch routes inbound chat messages through the activation gate, the
// per-user context, and the completion client, and produces the reply text.
package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"linechat/pkg/activation"
	"linechat/pkg/contextmgr"
	"linechat/pkg/llm"
	"linechat/pkg/llmerrors"
	"linechat/pkg/logx"
)

// Inbound is one chat message addressed to the bot.
type Inbound struct {
	UserID     string
	Text       string
	ReplyToken string
}

// Reply is the text to send back for an Inbound message.
type Reply struct {
	Text string
}

// Options configures a Dispatcher.
type Options struct {
	// Registerer receives the dispatcher metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	// NewTurnID overrides turn id generation. Defaults to uuid.NewString.
	NewTurnID func() string
	// Params are the sampling parameters sent with every completion request.
	Params llm.Params
	// RecordErrorReplies appends error-surfaced replies to the history as assistant turns.
	RecordErrorReplies bool
}

// Dispatcher handles one inbound message at a time per user. It is safe for concurrent use.
type Dispatcher struct {
	gate               *activation.Gate
	contexts           *contextmgr.Manager
	client             llm.LLMClient
	metrics            *dispatchMetrics
	logger             *logx.Logger
	newTurnID          func() string
	params             llm.Params
	recordErrorReplies bool
}

// NewDispatcher creates a dispatcher over the given gate, context manager and client.
func NewDispatcher(gate *activation.Gate, contexts *contextmgr.Manager, client llm.LLMClient, opts Options) *Dispatcher {
	d := &Dispatcher{
		gate:               gate,
		contexts:           contexts,
		client:             client,
		logger:             logx.NewLogger("dispatch"),
		newTurnID:          opts.NewTurnID,
		params:             opts.Params,
		recordErrorReplies: opts.RecordErrorReplies,
	}
	if d.newTurnID == nil {
		d.newTurnID = uuid.NewString
	}
	d.metrics = newDispatchMetrics(opts.Registerer, d)
	return d
}

// Gate returns the activation gate.
func (d *Dispatcher) Gate() *activation.Gate {
	return d.gate
}

// Active reports whether chat messages are currently answered.
func (d *Dispatcher) Active() bool {
	return d.gate.IsActive()
}

// Sessions returns the number of users with a history.
func (d *Dispatcher) Sessions() int {
	return d.contexts.Store().Len()
}

// Handle processes msg and returns the reply to send. The bool is false when the
// message must go unanswered.
//
// Reserved commands are checked first and never reach the model or the history.
// While inactive every other message is dropped. Otherwise the whole
// prepare/complete/record sequence runs under the user's lock.
func (d *Dispatcher) Handle(ctx context.Context, msg Inbound) (Reply, bool) {
	text := strings.TrimSpace(msg.Text)

	if cmd := d.gate.Match(text); cmd != activation.CommandNone {
		ack, _ := d.gate.Apply(cmd)
		d.logger.Info("User %s sent %s command, active=%t", msg.UserID, cmd, d.gate.IsActive())
		d.metrics.turnsTotal.WithLabelValues(OutcomeCommand).Inc()
		return Reply{Text: ack}, true
	}

	if !d.gate.IsActive() {
		d.logger.Debug("Dropping message from %s: bot is inactive", msg.UserID)
		d.metrics.turnsTotal.WithLabelValues(OutcomeInactive).Inc()
		return Reply{}, false
	}

	if text == "" {
		d.logger.Debug("Dropping empty message from %s", msg.UserID)
		d.metrics.turnsTotal.WithLabelValues(OutcomeEmpty).Inc()
		return Reply{}, false
	}

	return d.converse(ctx, msg.UserID, text), true
}

// converse runs one model turn for userID.
func (d *Dispatcher) converse(ctx context.Context, userID, text string) Reply {
	turnID := d.newTurnID()
	ctx = logx.WithTurnID(ctx, turnID)
	start := time.Now()
	defer func() {
		d.metrics.turnDuration.Observe(time.Since(start).Seconds())
	}()

	turn := d.contexts.Begin(userID)
	defer turn.End()

	messages := turn.Prepare(text)
	logx.Debug(ctx, "dispatch", "user %s context: %s", userID, turn.Summary())

	resp, err := d.client.Complete(ctx, llm.NewCompletionRequest(messages, d.params))
	if err != nil {
		return d.surfaceError(ctx, turn, err)
	}

	turn.Record(resp.Content)
	d.metrics.turnsTotal.WithLabelValues(OutcomeReplied).Inc()
	d.logger.Info("[turn %s] AI reply to %s (%d runes)", turnID, userID, len([]rune(resp.Content)))
	logx.Debug(ctx, "dispatch", "reply: %s", llmerrors.SanitizePrompt(resp.Content, 200))
	return Reply{Text: resp.Content}
}

// surfaceError renders a completion failure into the reply for the current turn.
func (d *Dispatcher) surfaceError(ctx context.Context, turn *contextmgr.Turn, err error) Reply {
	classified := llmerrors.Normalize(err)
	turnID := logx.TurnID(ctx)

	switch classified.Kind {
	case llmerrors.KindProvider:
		d.metrics.turnsTotal.WithLabelValues(OutcomeProviderError).Inc()
		d.logger.Warn("[turn %s] Provider error for %s: %v", turnID, turn.UserID(), classified)
	case llmerrors.KindUnknown:
		d.metrics.turnsTotal.WithLabelValues(OutcomeUnknownError).Inc()
		d.logger.Error("[turn %s] Unexpected error for %s: %v", turnID, turn.UserID(), classified)
	default:
		d.metrics.turnsTotal.WithLabelValues(OutcomeUnknownError).Inc()
		d.logger.Error("[turn %s] Unclassified error kind %s for %s: %v", turnID, classified.Kind, turn.UserID(), classified)
	}

	text := llmerrors.ChatText(classified)
	if d.recordErrorReplies {
		turn.Record(text)
	}
	return Reply{Text: text}
}
