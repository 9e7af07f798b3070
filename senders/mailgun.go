package senders

import (
	"context"
	"time"

	"github.com/mailgun/mailgun-go/v4"
)

type mailgunSender struct {
	base
}

func (e *mailgunSender) SendReport(ctx context.Context, subject, htmlBody string, recipients []string) (string, error) {
	return e.send(ctx, subject, htmlBody, recipients)
}

func (e *mailgunSender) SendVerification(ctx context.Context, recipient, verifyURL string) (string, error) {
	format := &verificationEmailFormat{verifyURL}
	return e.send(ctx, format.Subject(), format.Body(), []string{recipient})
}

func (e *mailgunSender) send(ctx context.Context, subject, body string, recipients []string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, subject, "", recipients...)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(body)

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}
