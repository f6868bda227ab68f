package push

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// DefaultSendTimeout bounds a single push send.
const DefaultSendTimeout = 10 * time.Second

// fcmClient is the part of *messaging.Client the sender uses.
type fcmClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMOpts holds configuration options for the FCM sender.
type FCMOpts struct {
	CredentialsFile   string
	CredentialsBase64 string
	ProjectID         string
	Timeout           time.Duration
}

// FCMOption defines a configuration option for the FCM sender.
type FCMOption func(*FCMOpts)

// WithCredentialsFile sets the service account key file.
func WithCredentialsFile(path string) FCMOption {
	return func(o *FCMOpts) { o.CredentialsFile = path }
}

// WithCredentialsBase64 sets a base64-encoded service account key. It takes
// precedence over the credentials file.
func WithCredentialsBase64(encoded string) FCMOption {
	return func(o *FCMOpts) { o.CredentialsBase64 = encoded }
}

// WithProjectID sets the Firebase project id.
func WithProjectID(id string) FCMOption {
	return func(o *FCMOpts) { o.ProjectID = id }
}

// WithSendTimeout sets the per-send timeout.
func WithSendTimeout(d time.Duration) FCMOption {
	return func(o *FCMOpts) { o.Timeout = d }
}

// FCMSender delivers messages through Firebase Cloud Messaging.
type FCMSender struct {
	client  fcmClient
	timeout time.Duration
}

// NewFCMSender initializes the Firebase app and messaging client.
func NewFCMSender(ctx context.Context, opts ...FCMOption) (*FCMSender, error) {
	var cfg FCMOpts
	for _, opt := range opts {
		opt(&cfg)
	}

	var clientOpt option.ClientOption
	switch {
	case cfg.CredentialsBase64 != "":
		decoded, err := base64.StdEncoding.DecodeString(cfg.CredentialsBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode base64 firebase credentials: %w", err)
		}
		clientOpt = option.WithCredentialsJSON(decoded)
		slog.Info("FCMSender: initializing from inline credentials")
	case cfg.CredentialsFile != "":
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("firebase credentials file %s: %w", cfg.CredentialsFile, err)
		}
		clientOpt = option.WithCredentialsFile(cfg.CredentialsFile)
		slog.Info("FCMSender: initializing from credentials file", "path", cfg.CredentialsFile)
	default:
		return nil, fmt.Errorf("firebase credentials not configured")
	}

	var appCfg *firebase.Config
	if cfg.ProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, appCfg, clientOpt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}
	return newFCMSenderWithClient(client, cfg.Timeout), nil
}

func newFCMSenderWithClient(client fcmClient, timeout time.Duration) *FCMSender {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &FCMSender{client: client, timeout: timeout}
}

// BuildFCMMessage converts a message to its FCM form.
func BuildFCMMessage(msg models.Message) *messaging.Message {
	sound := msg.Sound
	if sound == "" {
		sound = models.DefaultSound
	}
	data := make(map[string]string, len(msg.Data))
	for k, v := range msg.Data {
		data[k] = v
	}
	return &messaging.Message{
		Token: msg.To,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound: sound,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{Sound: sound},
			},
		},
	}
}

func (s *FCMSender) Send(ctx context.Context, msg models.Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoDestination
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	id, err := s.client.Send(ctx, BuildFCMMessage(msg))
	if err != nil {
		slog.Error("FCMSender.Send failed", "userID", msg.UserID(), "type", msg.Type(), "error", err)
		return "", fmt.Errorf("fcm send to %s failed: %w", msg.UserID(), err)
	}
	slog.Debug("FCMSender.Send succeeded", "userID", msg.UserID(), "messageID", id)
	return id, nil
}
