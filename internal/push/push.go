// Package push delivers outbound notifications over a push transport.
//
// A Sender accepts one message and returns a transport receipt or an error. The
// dispatcher treats any nil error as an attempted delivery.
package push

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/BTreeMap/JogPipe/internal/models"
)

// ErrNoDestination is returned when a message has no destination token.
var ErrNoDestination = errors.New("message has no destination")

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg models.Message) (receipt string, err error)
}

// LogSender logs messages instead of delivering them. It is the dry-run transport.
type LogSender struct{}

// NewLogSender creates a LogSender.
func NewLogSender() *LogSender { return &LogSender{} }

func (LogSender) Send(_ context.Context, msg models.Message) (string, error) {
	if msg.To == "" {
		return "", ErrNoDestination
	}
	receipt := "log-" + uuid.NewString()
	slog.Info("LogSender.Send: dry run", "userID", msg.UserID(), "type", msg.Type(), "title", msg.Title, "body", msg.Body, "receipt", receipt)
	return receipt, nil
}
