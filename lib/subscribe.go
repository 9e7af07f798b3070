package lib

import (
	"context"
	"errors"
	"fmt"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type subscribe struct {
	cfg      *config.Config
	log      *zap.Logger
	db       *gorm.DB
	verifier *verifier
}

// Outcome is what a mutation reports back to the caller: the resulting
// status plus a human-readable message that distinguishes a fresh signup
// from a reactivation from a settings update.
type Outcome struct {
	Status  models.Status `json:"status"`
	Message string        `json:"message"`
}

// Subscribe creates or updates the record for an address. The quota guard
// only applies to addresses without an existing record; existing subscribers
// updating their settings are never blocked by it. The verification branch
// is re-evaluated on every call, which is how pending records become active.
func (svc *subscribe) Subscribe(ctx context.Context, email string, stocks []string, sched models.Schedule) (*Outcome, error) {
	email = models.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	tickers, err := normalizeStocks(stocks, svc.cfg.StockCap)
	if err != nil {
		return nil, err
	}

	prior, err := svc.priorStatus(ctx, email)
	if err != nil {
		return nil, err
	}
	if prior == "" {
		if err := svc.checkQuota(ctx); err != nil {
			return nil, err
		}
	}

	state, err := svc.verifier.StatusOf(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("verification lookup for %s: %w", email, err)
	}

	status := models.StatusPending
	if state == models.Verified {
		status = models.StatusActive
	}

	record := &models.Subscriber{Email: email, Schedule: sched, Status: status}
	record.SetStocks(tickers)
	tx := svc.db.WithContext(ctx).Save(record)
	if err := tx.Error; err != nil {
		return nil, err
	}
	svc.log.Sugar().Infow("Saved subscriber", "email", email, "status", status, "prior", prior)

	if status == models.StatusPending {
		// Harmless to repeat for an already-pending address.
		if err := svc.verifier.RequestVerification(ctx, email); err != nil {
			return nil, err
		}
	}

	return &Outcome{Status: status, Message: outcomeMessage(prior, status)}, nil
}

// Unsubscribe flips the record to inactive. It is idempotent: repeating it,
// or calling it for an unknown address, succeeds with no state change since
// the end state is equivalent.
func (svc *subscribe) Unsubscribe(ctx context.Context, email string) (*Outcome, error) {
	email = models.NormalizeEmail(email)

	out := &Outcome{Status: models.StatusInactive, Message: "You have been removed from the mailing list."}

	sub := &models.Subscriber{}
	tx := svc.db.WithContext(ctx).Where("email = ?", email).First(sub)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return out, nil
	} else if err != nil {
		return nil, err
	}

	sub.Status = models.StatusInactive
	if err := svc.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, err
	}

	// Drop the verification identity so a later re-subscription has to
	// verify again.
	if err := svc.verifier.Revoke(ctx, email); err != nil {
		svc.log.Sugar().Errorw("Failed to revoke verification", "email", email, "err", err)
	}

	svc.log.Sugar().Infow("Unsubscribed", "email", email)
	return out, nil
}

func (svc *subscribe) priorStatus(ctx context.Context, email string) (models.Status, error) {
	existing := &models.Subscriber{}
	tx := svc.db.WithContext(ctx).Where("email = ?", email).First(existing)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	} else if err != nil {
		return "", err
	}
	return existing.Status, nil
}

func (svc *subscribe) checkQuota(ctx context.Context) error {
	var count int64
	tx := svc.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("status IN ?", []models.Status{models.StatusPending, models.StatusActive}).
		Count(&count)
	if err := tx.Error; err != nil {
		return err
	}
	if count >= int64(svc.cfg.SubscriberQuota) {
		return models.ErrQuotaExceeded
	}
	return nil
}

func validateEmail(email string) error {
	at := -1
	for i, c := range email {
		if c == '@' {
			at = i
			break
		}
	}
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: malformed email %q", models.ErrValidation, email)
	}
	return nil
}

func normalizeStocks(stocks []string, limit int) ([]string, error) {
	if len(stocks) == 0 {
		return nil, fmt.Errorf("%w: watchlist must not be empty", models.ErrValidation)
	}

	seen := make(map[string]bool, len(stocks))
	tickers := make([]string, 0, len(stocks))
	for _, s := range stocks {
		ticker := models.NormalizeTicker(s)
		if ticker == "" {
			return nil, fmt.Errorf("%w: blank ticker symbol", models.ErrValidation)
		}
		if seen[ticker] {
			return nil, fmt.Errorf("%w: duplicate ticker %s", models.ErrValidation, ticker)
		}
		seen[ticker] = true
		tickers = append(tickers, ticker)
	}

	if len(tickers) > limit {
		return nil, fmt.Errorf("%w: watchlist is limited to %d tickers", models.ErrValidation, limit)
	}
	return tickers, nil
}

func outcomeMessage(prior models.Status, current models.Status) string {
	if current == models.StatusPending {
		switch prior {
		case models.StatusPending:
			return "Still pending verification; confirmation link re-sent."
		default:
			return "Verification sent. Please check your inbox to activate your reports."
		}
	}

	switch prior {
	case "":
		return "Welcome aboard! Your first report arrives with the next dispatch."
	case models.StatusInactive:
		return "Subscription reactivated. Reports will resume with the next dispatch."
	case models.StatusPending:
		return "Email verified; your subscription is now active."
	default:
		return "Watchlist updated."
	}
}
