// Package kernel assembles the bot's components from a configuration. Both the server
// binary and the local chat tool build on it.
package kernel

import (
	"net/http"

	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"linechat/pkg/activation"
	"linechat/pkg/config"
	"linechat/pkg/contextmgr"
	"linechat/pkg/dispatch"
	"linechat/pkg/llm"
	"linechat/pkg/llm/middleware/logging"
	"linechat/pkg/llm/middleware/metrics"
	"linechat/pkg/llm/middleware/timeout"
	"linechat/pkg/llm/openaiofficial"
	"linechat/pkg/logx"
	"linechat/pkg/webhook"
)

// Kernel holds the wired components. Fields are read-only after NewKernel.
type Kernel struct {
	Config     *config.Config
	Logger     *logx.Logger
	Registry   *prometheus.Registry
	Contexts   *contextmgr.Manager
	Gate       *activation.Gate
	LLMClient  llm.LLMClient
	Dispatcher *dispatch.Dispatcher
}

// Option customizes NewKernel.
type Option func(*options)

type options struct {
	baseClient     llm.LLMClient
	openAIOptions  []option.RequestOption
	runtimeMetrics bool
}

// WithBaseClient replaces the OpenAI client. The middleware chain is still applied.
func WithBaseClient(client llm.LLMClient) Option {
	return func(o *options) {
		o.baseClient = client
	}
}

// WithRuntimeMetrics registers the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(o *options) {
		o.runtimeMetrics = true
	}
}

// WithOpenAIOptions passes extra request options to the OpenAI client.
func WithOpenAIOptions(opts ...option.RequestOption) Option {
	return func(o *options) {
		o.openAIOptions = append(o.openAIOptions, opts...)
	}
}

// NewKernel wires the store, context manager, activation gate, completion client and
// dispatcher for cfg. Every kernel gets its own metrics registry. It fails when the
// completion parameters are out of range.
func NewKernel(cfg *config.Config, opts ...Option) (*Kernel, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	params := llm.Params{
		MaxTokens:        cfg.OpenAI.MaxTokens,
		Temperature:      cfg.OpenAI.Temperature,
		FrequencyPenalty: cfg.OpenAI.FrequencyPenalty,
		PresencePenalty:  cfg.OpenAI.PresencePenalty,
	}
	if err := params.Validate(); err != nil {
		return nil, logx.Wrap(err, "invalid completion parameters")
	}

	registry := prometheus.NewRegistry()
	if o.runtimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	k := &Kernel{
		Config:   cfg,
		Logger:   logx.NewLogger("kernel"),
		Registry: registry,
		Contexts: contextmgr.NewManager(contextmgr.NewStore(), contextmgr.Options{
			Directive: cfg.Bot.SystemDirective,
			Window:    cfg.Bot.ContextWindow,
		}),
		Gate: activation.NewGate(cfg.Bot.DefaultTalking, activation.Commands{
			Activate:        cfg.Bot.ActivateCommand,
			Deactivate:      cfg.Bot.DeactivateCommand,
			ActivateReply:   cfg.Bot.ActivateReply,
			DeactivateReply: cfg.Bot.DeactivateReply,
		}),
	}

	base := o.baseClient
	if base == nil {
		base = newOpenAIClient(cfg, o.openAIOptions)
	}
	k.LLMClient = k.wrapClient(base)

	k.Dispatcher = dispatch.NewDispatcher(k.Gate, k.Contexts, k.LLMClient, dispatch.Options{
		Registerer:         registry,
		Params:             params,
		RecordErrorReplies: cfg.Bot.RecordErrorReplies,
	})

	k.Logger.Info("Kernel ready: model=%s window=%d directive=%t active=%t",
		k.LLMClient.GetModelName(), k.Contexts.Window(), k.Contexts.Directive() != "", k.Gate.IsActive())
	return k, nil
}

// Handler returns the HTTP handler serving the webhook, the status routes and /metrics.
func (k *Kernel) Handler(replier webhook.Replier) http.Handler {
	mux := http.NewServeMux()
	webhook.NewServer(k.Config.Line.ChannelSecret, k.Dispatcher, replier, k.Registry).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(k.Registry, promhttp.HandlerOpts{Registry: k.Registry}))
	return mux
}

func newOpenAIClient(cfg *config.Config, extra []option.RequestOption) llm.LLMClient {
	var opts []option.RequestOption
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	opts = append(opts, extra...)
	return openaiofficial.NewOfficialClientWithModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model, opts...)
}

// wrapClient applies the logging, metrics and timeout middlewares, outermost first.
func (k *Kernel) wrapClient(base llm.LLMClient) llm.LLMClient {
	logger := logx.NewLogger("llm")
	return llm.Chain(base,
		logging.FailureLoggingMiddleware(logger),
		metrics.Middleware(metrics.NewPrometheusRecorder(k.Registry), metrics.DefaultUsageExtractor, logger),
		timeout.Middleware(k.Config.OpenAI.Timeout),
	)
}
