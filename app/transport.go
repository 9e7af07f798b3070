package app

import (
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewTransport is the shared outbound RoundTripper handed to the mail and
// AI clients, so their traffic shows up in one place in the logs.
func NewTransport(lc fx.Lifecycle, log *zap.Logger) http.RoundTripper {
	return &transport{http.DefaultTransport, log}
}

type transport struct {
	base http.RoundTripper
	log  *zap.Logger
}

func (tpt *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := tpt.base.RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		tpt.log.Sugar().Debugw("Outbound request errored", "host", req.URL.Host, "err", err, "elapsed_msecs", int(elapsed.Milliseconds()))
	} else {
		tpt.log.Sugar().Debugw("Outbound request", "host", req.URL.Host, "status", resp.StatusCode, "elapsed_msecs", int(elapsed.Milliseconds()))
	}
	return resp, err
}
