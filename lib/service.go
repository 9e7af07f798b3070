package lib

import (
	"context"
	"errors"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
	"github.com/fiffu/marketoracle/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the subscription registry: it owns subscriber lifecycle,
// the quota guard and the email verification flow.
type Service struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB

	*subscribe
	*verifier
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, senders senders.Registry) *Service {
	v := &verifier{cfg, log, db, senders}
	return &Service{
		cfg, log, db,
		&subscribe{cfg, log, db, v},
		v,
	}
}

// Lookup returns the record for an address, or models.ErrNotFound. A missing
// record is how "never subscribed" is distinguished from "inactive".
func (svc *Service) Lookup(ctx context.Context, email string) (*models.Subscriber, error) {
	email = models.NormalizeEmail(email)

	sub := &models.Subscriber{}
	tx := svc.db.WithContext(ctx).Where("email = ?", email).First(sub)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrNotFound
	} else if err != nil {
		return nil, err
	}
	return sub, nil
}

// ListAll returns every record regardless of status, for the admin view.
func (svc *Service) ListAll(ctx context.Context) (models.Subscribers, error) {
	var subs models.Subscribers
	tx := svc.db.WithContext(ctx).Order("created_at").Find(&subs)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return subs, nil
}
