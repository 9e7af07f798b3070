package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/limiter"
	"github.com/fiffu/marketoracle/lib/models"
	"github.com/fiffu/marketoracle/lib/schedule"
	"github.com/fiffu/marketoracle/reporter"
	"github.com/fiffu/marketoracle/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	// A run that has not released the lock after this long is presumed dead
	// and its lock may be stolen.
	runLockTTL = 15 * time.Minute

	perRecipientTimeout = 60 * time.Second
)

type TriggerKind string

const (
	// TriggerScheduled is a broadcast run fired by the cron schedule.
	TriggerScheduled TriggerKind = "scheduled"
	// TriggerManual is an on-demand run, rate-limited per calendar day,
	// optionally scoped to a single subscriber.
	TriggerManual TriggerKind = "manual"
	// TriggerTest sends a canned report to one address, bypassing both the
	// roster and the limiter.
	TriggerTest TriggerKind = "test"
)

// Trigger is one incoming dispatch event.
type Trigger struct {
	Kind  TriggerKind
	Shift models.Shift
	Email string
}

// Result summarises a handled trigger.
type Result struct {
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Skipped bool `json:"skipped"`
}

// Orchestrator routes triggers to the right flow and walks the send loop.
// A failed recipient never aborts the batch; the run continues and the
// failure count is reported at the end.
type Orchestrator struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	roster  Roster
	limiter *limiter.Limiter
	cal     *schedule.Calendar
	reports reporter.Generator
	senders senders.Registry

	lock *runLock
	now  func() time.Time
}

func NewOrchestrator(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	roster Roster,
	lim *limiter.Limiter,
	cal *schedule.Calendar,
	reports reporter.Generator,
	senders senders.Registry,
) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		log:     log,
		db:      db,
		roster:  roster,
		limiter: lim,
		cal:     cal,
		reports: reports,
		senders: senders,
		lock:    &runLock{db: db, ttl: runLockTTL, now: time.Now},
		now:     time.Now,
	}
}

func (o *Orchestrator) Handle(ctx context.Context, trig Trigger) (*Result, error) {
	switch trig.Kind {
	case TriggerScheduled:
		res, err := o.broadcast(ctx, trig.Shift, false)
		if errors.Is(err, models.ErrDispatchBusy) {
			o.log.Sugar().Infow("Dispatch already in progress, skipping scheduled run", "shift", trig.Shift)
			return &Result{Skipped: true}, nil
		}
		return res, err

	case TriggerManual:
		if _, err := o.limiter.TryConsume(ctx); err != nil {
			return nil, err
		}
		if trig.Email != "" {
			return o.sendToSubscriber(ctx, trig.Email)
		}
		return o.broadcast(ctx, o.cal.CurrentShift(o.now()), true)

	case TriggerTest:
		return o.sendTest(ctx, trig.Email)

	default:
		return nil, fmt.Errorf("%w: unknown trigger kind %q", models.ErrValidation, trig.Kind)
	}
}

func (o *Orchestrator) broadcast(ctx context.Context, shift models.Shift, manual bool) (*Result, error) {
	token, err := o.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := o.lock.Release(ctx, token); err != nil {
			o.log.Sugar().Errorw("Failed to release run lock", "err", err)
		}
	}()

	recipients, err := o.roster.ListEligible(ctx, shift, manual)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		o.log.Sugar().Infow("No eligible recipients", "shift", shift, "manual", manual)
		return &Result{Skipped: true}, nil
	}

	started := o.now()
	res := &Result{}
	for _, r := range recipients {
		if err := o.sendReport(ctx, r.Email, r.Stocks); err != nil {
			o.log.Sugar().Errorw("Dispatch to recipient failed", "email", r.Email, "err", err)
			res.Failed++
			continue
		}
		res.Sent++
	}

	elapsed := o.now().Sub(started)
	o.log.Sugar().Infow(
		fmt.Sprintf("Dispatched %d reports", res.Sent),
		"shift", shift, "manual", manual, "failed", res.Failed,
		"elapsed_msecs", int(elapsed.Milliseconds()),
	)
	return res, nil
}

func (o *Orchestrator) sendToSubscriber(ctx context.Context, email string) (*Result, error) {
	email = models.NormalizeEmail(email)

	sub := &models.Subscriber{}
	tx := o.db.WithContext(ctx).Where("email = ?", email).First(sub)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	if sub.Status != models.StatusActive {
		return nil, fmt.Errorf("%w: subscriber %s is %s, not active", models.ErrValidation, email, sub.Status)
	}

	if err := o.sendReport(ctx, email, sub.StockList()); err != nil {
		return &Result{Failed: 1}, err
	}
	return &Result{Sent: 1}, nil
}

func (o *Orchestrator) sendReport(ctx context.Context, email string, stocks []string) error {
	ctx, cancel := context.WithTimeout(ctx, perRecipientTimeout)
	defer cancel()

	dateCtx := o.cal.DateContext(o.now())
	body, err := o.reports.Generate(ctx, stocks, dateCtx)
	if err != nil {
		return err
	}

	id, err := o.senders["email"].SendReport(ctx, senders.ReportSubject(dateCtx), body, []string{email})
	if err != nil {
		return err
	}
	o.log.Sugar().Infow("Report sent", "email", email, "message_id", id)
	return nil
}

func (o *Orchestrator) sendTest(ctx context.Context, email string) (*Result, error) {
	email = models.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: test dispatch needs a recipient", models.ErrValidation)
	}

	dateCtx := o.cal.DateContext(o.now())
	body := fmt.Sprintf("<h3>Market Oracle test dispatch</h3><p>Sent %s. If you can read this, delivery works.</p>", dateCtx)

	id, err := o.senders["email"].SendReport(ctx, senders.ReportSubject(dateCtx), body, []string{email})
	if err != nil {
		return &Result{Failed: 1}, err
	}
	o.log.Sugar().Infow("Test report sent", "email", email, "message_id", id)
	return &Result{Sent: 1}, nil
}
