package twilio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redemption-api/internal/config"
	"github.com/go-redemption-api/internal/domain"
	twiliogo "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// MessageCreator is the slice of the Twilio REST API the notifier uses.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Notifier delivers messages over WhatsApp, attaching the QR image as media.
type Notifier struct {
	api  MessageCreator
	from string // "whatsapp:+14155238886"
}

func NewNotifier(cfg *config.Config) (*Notifier, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioWhatsAppFrom == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}
	client := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})
	return &Notifier{api: client.Api, from: cfg.TwilioWhatsAppFrom}, nil
}

func NewNotifierWithAPI(api MessageCreator, from string) *Notifier {
	return &Notifier{api: api, from: from}
}

func (n *Notifier) Send(_ context.Context, msg domain.OutboundMessage) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(n.from)
	params.SetTo("whatsapp:" + msg.Phone)
	params.SetBody(msg.Text)
	if msg.ImageURL != "" {
		params.SetMediaUrl([]string{msg.ImageURL})
	}
	resp, err := n.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio create message: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("whatsapp message sent", "sid", *resp.Sid, "phone", msg.Phone)
	}
	return nil
}
