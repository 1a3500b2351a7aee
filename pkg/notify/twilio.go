package notify

import (
	"context"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// TwilioConfig carries credentials and sender numbers.
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	SMSFrom      string
	WhatsAppFrom string
}

// TwilioSender delivers SMS and WhatsApp messages through the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	cfg    TwilioConfig
	logger *zap.Logger
}

// NewTwilioSender builds a sender from the provided credentials.
func NewTwilioSender(cfg TwilioConfig, logger *zap.Logger) *TwilioSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, cfg: cfg, logger: logger}
}

// Send delivers a single message. WhatsApp recipients get the provider's
// "whatsapp:" address prefix.
func (s *TwilioSender) Send(_ context.Context, msg Message) DeliveryResult {
	params := &twilioApi.CreateMessageParams{}
	params.SetBody(msg.Body)

	switch msg.Channel {
	case ChannelWhatsApp:
		params.SetFrom("whatsapp:" + s.cfg.WhatsAppFrom)
		params.SetTo("whatsapp:" + msg.To)
	default:
		params.SetFrom(s.cfg.SMSFrom)
		params.SetTo(msg.To)
	}

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		s.logger.Warn("twilio delivery failed",
			zap.String("channel", string(msg.Channel)),
			zap.String("to", msg.To),
			zap.Error(err),
		)
		return DeliveryResult{Sent: false, Error: err.Error()}
	}
	return DeliveryResult{Sent: true}
}
