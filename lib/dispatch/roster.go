package dispatch

import (
	"context"
	"time"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
	"github.com/fiffu/marketoracle/lib/schedule"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recipient is one destination for a dispatch run.
type Recipient struct {
	Email    string
	Stocks   []string
	Schedule models.Schedule
}

// Roster answers "who gets this run". Two backings share the interface:
// the subscriber table (multi-tenant) and the global watchlist config
// (single-tenant).
type Roster interface {
	ListEligible(ctx context.Context, shift models.Shift, manual bool) ([]Recipient, error)
}

func NewRoster(cfg *config.Config, log *zap.Logger, db *gorm.DB, cal *schedule.Calendar) Roster {
	if cfg.SingleTenant {
		return &singleRoster{cfg: cfg, log: log, cal: cal, now: time.Now}
	}
	return &subscriberRoster{db: db}
}

// subscriberRoster filters the full record set: active subscribers whose
// schedule covers the shift. It does no time-of-day checks itself; the shift
// is decided by whoever fired the trigger.
type subscriberRoster struct {
	db *gorm.DB
}

func (r *subscriberRoster) ListEligible(ctx context.Context, shift models.Shift, manual bool) ([]Recipient, error) {
	q := r.db.WithContext(ctx).Where("status = ?", models.StatusActive)
	if !manual {
		q = q.Where("schedule IN ?", []models.Schedule{models.Schedule(shift), models.ScheduleBoth})
	}

	var subs models.Subscribers
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}

	recipients := make([]Recipient, 0, len(subs))
	for _, sub := range subs {
		stocks := sub.StockList()
		if len(stocks) == 0 {
			continue
		}
		recipients = append(recipients, Recipient{Email: sub.Email, Stocks: stocks, Schedule: sub.Schedule})
	}
	return recipients, nil
}

// singleRoster serves the one-global-watchlist deployment mode. Eligibility
// is the current home-zone hour against the configured schedule; manual
// triggers bypass the hour gate.
type singleRoster struct {
	cfg *config.Config
	log *zap.Logger
	cal *schedule.Calendar
	now func() time.Time
}

func (r *singleRoster) ListEligible(ctx context.Context, shift models.Shift, manual bool) ([]Recipient, error) {
	sched, err := models.ParseSchedule(r.cfg.Global.Schedule)
	if err != nil {
		return nil, err
	}

	if !r.cal.ShiftAllowed(r.now(), sched, manual) {
		r.log.Sugar().Infow("Outside configured shift, skipping", "schedule", sched)
		return nil, nil
	}

	stocks := make([]string, 0, len(r.cfg.Global.Stocks))
	for _, s := range r.cfg.Global.Stocks {
		if ticker := models.NormalizeTicker(s); ticker != "" {
			stocks = append(stocks, ticker)
		}
	}
	if len(stocks) == 0 {
		return nil, nil
	}

	recipients := make([]Recipient, 0, len(r.cfg.Global.Recipients))
	for _, email := range r.cfg.Global.Recipients {
		email = models.NormalizeEmail(email)
		if email == "" {
			continue
		}
		recipients = append(recipients, Recipient{Email: email, Stocks: stocks, Schedule: sched})
	}
	return recipients, nil
}
