// Package limiter bounds how many manual (non-scheduled) dispatch runs can
// happen per calendar day, measured in the home time zone.
package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/fiffu/marketoracle/config"
	"github.com/fiffu/marketoracle/lib/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const counterID = 1

const casAttempts = 3

// Limiter tracks a single (date, count) row. The reset is lazy: a stored
// date behind "today" simply reads as count zero, there is no scheduled
// reset job.
type Limiter struct {
	log  *zap.Logger
	db   *gorm.DB
	cap  int
	home *time.Location

	now func() time.Time
}

func New(cfg *config.Config, log *zap.Logger, db *gorm.DB) *Limiter {
	return &Limiter{
		log:  log,
		db:   db,
		cap:  cfg.ManualTriggerCap,
		home: cfg.Home(),
		now:  time.Now,
	}
}

// TryConsume spends one unit of today's quota and returns the new count.
// At the cap it returns models.ErrLimitReached without mutating state.
// The increment is a conditional write against the previously-read row, so
// racing callers cannot silently push the counter past the cap; a caller
// that keeps losing the race gets an error rather than a free slot.
func (l *Limiter) TryConsume(ctx context.Context) (int, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		today := l.today()

		row := models.TriggerCounter{}
		err := l.db.WithContext(ctx).Where("id = ?", counterID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = models.TriggerCounter{ID: counterID, Date: today, Count: 1}
			tx := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if tx.Error != nil {
				return 0, tx.Error
			}
			if tx.RowsAffected == 1 {
				return 1, nil
			}
			continue // lost the insert race, re-read
		} else if err != nil {
			return 0, err
		}

		count := row.Count
		if row.Date != today {
			count = 0
		}
		if count >= l.cap {
			return count, models.ErrLimitReached
		}

		tx := l.db.WithContext(ctx).
			Model(&models.TriggerCounter{}).
			Where("id = ? AND date = ? AND count = ?", counterID, row.Date, row.Count).
			Updates(map[string]any{"date": today, "count": count + 1})
		if tx.Error != nil {
			return 0, tx.Error
		}
		if tx.RowsAffected == 1 {
			l.log.Sugar().Infow("Manual trigger consumed", "date", today, "count", count+1, "cap", l.cap)
			return count + 1, nil
		}
	}
	return 0, errors.New("trigger counter contention, try again")
}

// Remaining reads today's unspent quota without consuming any.
func (l *Limiter) Remaining(ctx context.Context) (int, error) {
	row := models.TriggerCounter{}
	err := l.db.WithContext(ctx).Where("id = ?", counterID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return l.cap, nil
	} else if err != nil {
		return 0, err
	}
	if row.Date != l.today() {
		return l.cap, nil
	}
	if left := l.cap - row.Count; left > 0 {
		return left, nil
	}
	return 0, nil
}

func (l *Limiter) today() string {
	return l.now().In(l.home).Format("2006-01-02")
}
