package push

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// smsAPI is the part of the Twilio REST service the sender uses.
type smsAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioOpts holds configuration options for the Twilio SMS sender.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio SMS sender.
type TwilioOption func(*TwilioOpts)

func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioSender delivers messages as SMS. The destination is a phone number.
type TwilioSender struct {
	api  smsAPI
	from string
}

// NewTwilioSender creates a Twilio SMS sender, falling back to the TWILIO_* environment
// variables for unset options.
func NewTwilioSender(opts ...TwilioOption) (*TwilioSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)
	return &TwilioSender{api: client.Api, from: cfg.FromNumber}, nil
}

// SMSBody renders a message as SMS text.
func SMSBody(msg models.Message) string {
	if msg.Title == "" {
		return msg.Body
	}
	return msg.Title + ": " + msg.Body
}

func (s *TwilioSender) Send(ctx context.Context, msg models.Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoDestination
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(s.from)
	params.SetBody(SMSBody(msg))

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		slog.Error("TwilioSender.Send failed", "userID", msg.UserID(), "error", err)
		return "", fmt.Errorf("failed to send sms for %s: %w", msg.UserID(), err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("TwilioSender.Send succeeded", "userID", msg.UserID(), "sid", sid)
	return sid, nil
}
