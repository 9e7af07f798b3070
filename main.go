package main

import (
	"net/http"
	"os"
	"time"

	"github.com/fiffu/marketoracle/app"
	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib"
	"github.com/fiffu/marketoracle/lib/dispatch"
	"github.com/fiffu/marketoracle/lib/limiter"
	"github.com/fiffu/marketoracle/lib/schedule"
	"github.com/fiffu/marketoracle/reporter"
	"github.com/fiffu/marketoracle/senders"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),
		fx.Provide(schedule.NewCalendar),
		fx.Provide(reporter.NewGenerator),
		fx.Provide(limiter.New),
		fx.Provide(lib.NewService),
		fx.Provide(dispatch.NewRoster),
		fx.Provide(dispatch.NewOrchestrator),
		fx.Provide(dispatch.NewCron),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*http.Server) {}),
		fx.Invoke(func(*cron.Cron) {}),
	).Run()
}
