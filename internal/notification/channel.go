package notification

import (
	"context"
	"fmt"

	"github.com/taskfabric/backbone/internal/email"
	"github.com/taskfabric/backbone/internal/push"
)

// Recipient addresses a single reminder at whatever identifiers its
// channels need; a channel ignores the fields it doesn't use.
type Recipient struct {
	UserID string
	Email  string
}

// RenderedMessage is the reminder text, already formatted, handed to
// every requested channel unchanged.
type RenderedMessage struct {
	Subject string
	Body    string
}

// Channel is one outbound notification provider.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient Recipient, msg RenderedMessage) error
}

// emailChannel adapts email.Service to Channel.
type emailChannel struct {
	svc email.Service
}

// NewEmailChannel wraps an email.Service as a Channel.
func NewEmailChannel(svc email.Service) Channel {
	return &emailChannel{svc: svc}
}

func (c *emailChannel) Name() string { return "email" }

func (c *emailChannel) Send(ctx context.Context, recipient Recipient, msg RenderedMessage) error {
	if recipient.Email == "" {
		return fmt.Errorf("%w: no email address on recipient", ErrPermanent)
	}
	return c.svc.SendReminder(ctx, recipient.Email, email.Message{Subject: msg.Subject, Body: msg.Body})
}

// pushChannel adapts push.Client to Channel.
type pushChannel struct {
	client *push.Client
}

// NewPushChannel wraps a push.Client as a Channel.
func NewPushChannel(client *push.Client) Channel {
	return &pushChannel{client: client}
}

func (c *pushChannel) Name() string { return "push" }

func (c *pushChannel) Send(ctx context.Context, recipient Recipient, msg RenderedMessage) error {
	if recipient.UserID == "" {
		return fmt.Errorf("%w: no user id on recipient", ErrPermanent)
	}
	err := c.client.Send(ctx, recipient.UserID, push.Message{Title: msg.Subject, Body: msg.Body})
	if statusErr, ok := err.(*push.StatusError); ok && statusErr.Permanent() {
		return fmt.Errorf("%w: %s", ErrPermanent, statusErr.Error())
	}
	return err
}
