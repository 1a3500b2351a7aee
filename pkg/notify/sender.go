package notify

import (
	"context"

	"go.uber.org/zap"
)

// Channel selects the delivery transport for a message.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid returns true when the channel is supported.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// Message is a rendered notification ready for delivery.
type Message struct {
	To      string
	Body    string
	Channel Channel
}

// DeliveryResult reports the outcome of a send attempt.
type DeliveryResult struct {
	Sent  bool
	Error string
}

// Sender delivers messages over SMS or WhatsApp. Implementations must be
// safe for concurrent use; failures are reported in the result, never
// panicked or retried here.
type Sender interface {
	Send(ctx context.Context, msg Message) DeliveryResult
}

// LogSender writes messages to the log instead of delivering them. It is
// the default backend until a real provider is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs the logging stub sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the message and reports success.
func (s *LogSender) Send(_ context.Context, msg Message) DeliveryResult {
	s.logger.Info("notification delivered (stub)",
		zap.String("channel", string(msg.Channel)),
		zap.String("to", msg.To),
		zap.String("body", msg.Body),
	)
	return DeliveryResult{Sent: true}
}
