// Package pusher sends data messages to device tokens through the Firebase
// Admin SDK. It is the server half used to exercise a running bridge.
package pusher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// ErrInvalidToken reports a token FCM no longer accepts. The device must
// fetch a fresh one.
var ErrInvalidToken = errors.New("pusher: invalid or unregistered token")

// MessagingClient is the subset of the Firebase Messaging API in use.
// *messaging.Client satisfies it.
type MessagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
	SendEachForMulticast(ctx context.Context, msg *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// Result summarizes a multicast send.
type Result struct {
	Success       int      `json:"success" yaml:"success"`
	InvalidTokens []string `json:"invalid_tokens,omitempty" yaml:"invalid_tokens,omitempty"`
	Failed        int      `json:"failed" yaml:"failed"`
}

type Pusher struct {
	client MessagingClient
	logger *slog.Logger
}

// New initializes a Firebase app from a service account file.
func New(ctx context.Context, credentialsFile string, logger *slog.Logger) (*Pusher, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase messaging client: %w", err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing messaging client.
func NewWithClient(client MessagingClient, logger *slog.Logger) *Pusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pusher{client: client, logger: logger.With("component", "pusher")}
}

// Send pushes a data-only message to token and returns the FCM message id.
// Rejected tokens are reported as ErrInvalidToken.
func (p *Pusher) Send(ctx context.Context, token string, data map[string]string) (string, error) {
	if token == "" {
		return "", errors.New("pusher: empty token")
	}
	id, err := p.client.Send(ctx, &messaging.Message{
		Token:   token,
		Data:    data,
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	if err != nil {
		if messaging.IsUnregistered(err) || messaging.IsInvalidArgument(err) {
			p.logger.Warn("FCM rejected token", "error", err)
			return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return "", fmt.Errorf("sending FCM message: %w", err)
	}
	p.logger.Debug("FCM message sent", "id", id)
	return id, nil
}

// SendMulticast pushes the same data message to every token. Per-token
// rejections are collected in Result.InvalidTokens; other per-token failures
// are counted.
func (p *Pusher) SendMulticast(ctx context.Context, tokens []string, data map[string]string) (*Result, error) {
	if len(tokens) == 0 {
		return &Result{}, nil
	}
	br, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens:  tokens,
		Data:    data,
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	if err != nil {
		return nil, fmt.Errorf("sending FCM multicast: %w", err)
	}

	res := &Result{Success: br.SuccessCount}
	for i, resp := range br.Responses {
		if resp.Success {
			continue
		}
		if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
			res.InvalidTokens = append(res.InvalidTokens, tokens[i])
			continue
		}
		res.Failed++
	}
	p.logger.Debug("FCM multicast sent", "success", res.Success, "invalid", len(res.InvalidTokens), "failed", res.Failed)
	return res, nil
}
