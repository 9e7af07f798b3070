package lib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
	"github.com/fiffu/marketoracle/senders"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const verificationTTL = 3 * 24 * time.Hour

// verifier implements the address-verification contract: query a state,
// request a confirmation link, revoke an identity. Confirmation arrives via
// the /verify/{nonce} route.
type verifier struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	senders senders.Registry
}

// StatusOf reports whether an address has proven ownership. Unknown means
// we have never asked, unverified means a confirmation link is outstanding.
func (v *verifier) StatusOf(ctx context.Context, email string) (models.VerifyState, error) {
	rec := models.Verification{}
	tx := v.db.WithContext(ctx).Where("email = ?", email).First(&rec)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Unknown, nil
	} else if err != nil {
		return models.Unknown, err
	}
	if rec.VerifiedAt.Valid {
		return models.Verified, nil
	}
	return models.Unverified, nil
}

// RequestVerification mints (or reuses) a nonce for the address and emails
// the confirmation link. Safe to repeat for an already-pending address.
func (v *verifier) RequestVerification(ctx context.Context, email string) error {
	rec := models.Verification{}
	tx := v.db.WithContext(ctx).Where("email = ?", email).First(&rec)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) || rec.Expiry.Before(time.Now().UTC()) {
		rec = models.Verification{
			Email:  email,
			Nonce:  uuid.NewString(),
			Expiry: time.Now().UTC().Add(verificationTTL),
		}
		tx := v.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec)
		if err := tx.Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/verify/%s", v.cfg.ServerDNS, rec.Nonce)
	sender := v.senders["email"]
	id, err := sender.SendVerification(ctx, email, url)
	if err != nil {
		v.log.Sugar().Errorw("Failed to send verification email", "email", email, "err", err)
		return fmt.Errorf("verification email to %s: %w", email, err)
	}
	v.log.Sugar().Infow("Sent verification to "+email, "message_id", id)
	return nil
}

// Revoke forgets the address's verification identity entirely.
func (v *verifier) Revoke(ctx context.Context, email string) error {
	tx := v.db.WithContext(ctx).Delete(&models.Verification{}, "email = ?", email)
	return tx.Error
}

// Confirm resolves a clicked verification link. An unknown or expired nonce
// reports false without error. A pending subscriber whose address is now
// proven gets promoted to active on the spot.
func (v *verifier) Confirm(ctx context.Context, nonce string) (bool, error) {
	rec := models.Verification{}
	tx := v.db.WithContext(ctx).Where("nonce = ?", nonce).First(&rec)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if !rec.VerifiedAt.Valid && rec.Expiry.Before(time.Now().UTC()) {
		return false, nil
	}

	now := time.Now().UTC()
	tx = v.db.WithContext(ctx).
		Model(&models.Verification{}).
		Where("email = ?", rec.Email).
		Update("verified_at", sql.NullTime{Time: now, Valid: true})
	if err := tx.Error; err != nil {
		return false, err
	}

	tx = v.db.WithContext(ctx).
		Model(&models.Subscriber{}).
		Where("email = ? AND status = ?", rec.Email, models.StatusPending).
		Update("status", models.StatusActive)
	if err := tx.Error; err != nil {
		return false, err
	}
	if tx.RowsAffected > 0 {
		v.log.Sugar().Infow("Subscriber activated", "email", rec.Email)
	}

	return true, nil
}
