package senders

import (
	"context"
	"net/http"

	"github.com/fiffu/marketoracle/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender delivers the two kinds of mail the service produces. Sends are
// fire-and-forget from the core's perspective: failures are logged by the
// caller, never retried here.
type Sender interface {
	SendReport(ctx context.Context, subject, htmlBody string, recipients []string) (string, error)
	SendVerification(ctx context.Context, recipient, verifyURL string) (string, error)
}

type Registry map[string]Sender

func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper) Registry {
	base := base{log, cfg, transport}
	return map[string]Sender{
		"email": &mailgunSender{base},
	}
}

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
