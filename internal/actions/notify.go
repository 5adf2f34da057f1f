package actions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emilylaguna/memoryd/pkg/schema"
)

// Sink delivers one notification on a named channel.
type Sink interface {
	Deliver(ctx context.Context, message string) error
}

// Notifier routes notifications to channel sinks. Unknown channels are
// an execution failure, not a silent drop.
type Notifier struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

// NewNotifier creates a Notifier with the console sink preinstalled
// and log-backed placeholders for slack and email. The placeholders
// keep those channels working until a real integration replaces them
// via RegisterSink.
func NewNotifier(logger *slog.Logger) *Notifier {
	n := &Notifier{sinks: make(map[string]Sink)}
	n.RegisterSink("console", &consoleSink{logger: logger})
	n.RegisterSink("slack", &placeholderSink{channel: "slack", logger: logger})
	n.RegisterSink("email", &placeholderSink{channel: "email", logger: logger})
	return n
}

// RegisterSink installs or replaces the sink for a channel.
func (n *Notifier) RegisterSink(channel string, s Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks[channel] = s
}

// Channels lists registered channel names.
func (n *Notifier) Channels() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.sinks))
	for ch := range n.sinks {
		out = append(out, ch)
	}
	return out
}

func (n *Notifier) deliver(ctx context.Context, channel, message string) error {
	n.mu.RLock()
	sink, ok := n.sinks[channel]
	n.mu.RUnlock()
	if !ok {
		return schema.NewErrorf(schema.ErrCodeExecution, "notify: no sink registered for channel %q", channel)
	}
	return sink.Deliver(ctx, message)
}

// consoleSink logs the notification. The default channel; always available.
type consoleSink struct {
	logger *slog.Logger
}

func (s *consoleSink) Deliver(ctx context.Context, message string) error {
	s.logger.InfoContext(ctx, "notification", slog.String("message", message))
	return nil
}

// placeholderSink stands in for an external delivery integration and
// logs the message with its channel instead of sending it anywhere.
type placeholderSink struct {
	channel string
	logger  *slog.Logger
}

func (s *placeholderSink) Deliver(ctx context.Context, message string) error {
	s.logger.InfoContext(ctx, "notification",
		slog.String("channel", s.channel),
		slog.String("message", message),
	)
	return nil
}

// --- notify ---

type notifyAction struct {
	notifier *Notifier
}

// NewNotifyAction creates the notify handler over a channel router.
func NewNotifyAction(notifier *Notifier) Handler {
	return &notifyAction{notifier: notifier}
}

func (a *notifyAction) Type() schema.ActionType { return schema.ActionNotify }

func (a *notifyAction) Validate(params map[string]any) error {
	return requireString(a.Type(), params, "message")
}

func (a *notifyAction) Execute(ctx context.Context, params map[string]any, rc RunContext) (map[string]any, error) {
	message := stringParam(params, "message", "")
	channel := stringParam(params, "channel", "console")

	if err := a.notifier.deliver(ctx, channel, message); err != nil {
		return nil, err
	}

	return map[string]any{
		"channel":      channel,
		"delivered_at": time.Now().UTC().Format(time.RFC3339),
	}, nil
}
