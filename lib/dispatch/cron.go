package dispatch

import (
	"context"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Weekday-only entries; the next-dispatch calculator skips weekends the
// same way, so the two always agree.
const (
	morningSpec   = "0 7 * * 1-5"
	afternoonSpec = "0 15 * * 1-5"
)

// NewCron wires the scheduled invocation trigger: morning and afternoon
// broadcast runs at the dispatch hours, evaluated in the home zone.
func NewCron(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, orch *Orchestrator) *cron.Cron {
	c := cron.New(cron.WithLocation(cfg.Home()))

	runShift := func(shift models.Shift) func() {
		return func() {
			res, err := orch.Handle(context.Background(), Trigger{Kind: TriggerScheduled, Shift: shift})
			if err != nil {
				log.Sugar().Errorw("Scheduled dispatch failed", "shift", shift, "err", err)
				return
			}
			log.Sugar().Infow("Scheduled dispatch done", "shift", shift, "sent", res.Sent, "failed", res.Failed, "skipped", res.Skipped)
		}
	}

	if _, err := c.AddFunc(morningSpec, runShift(models.ShiftMorning)); err != nil {
		log.Sugar().Panic(err)
	}
	if _, err := c.AddFunc(afternoonSpec, runShift(models.ShiftAfternoon)); err != nil {
		log.Sugar().Panic(err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			c.Start()
			log.Sugar().Infow("Dispatch schedule started", "tz", cfg.HomeTZ)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			<-c.Stop().Done()
			return nil
		},
	})

	return c
}
