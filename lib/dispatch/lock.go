package dispatch

import (
	"context"
	"time"

	"github.com/fiffu/marketoracle/lib/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const lockID = 1

// runLock serialises dispatch runs through a single row in the store. Locks
// expire, so a run that died mid-flight cannot wedge the system: the next
// caller past the deadline steals the row.
type runLock struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func (l *runLock) Acquire(ctx context.Context) (string, error) {
	token := uuid.NewString()
	deadline := l.now().UTC().Add(l.ttl)

	row := models.DispatchLock{ID: lockID, Token: token, Deadline: deadline}
	tx := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if tx.Error != nil {
		return "", tx.Error
	}
	if tx.RowsAffected == 1 {
		return token, nil
	}

	// Row exists: take it over only if it is free or expired.
	tx = l.db.WithContext(ctx).
		Model(&models.DispatchLock{}).
		Where("id = ? AND (token = ? OR deadline < ?)", lockID, "", l.now().UTC()).
		Updates(map[string]any{"token": token, "deadline": deadline})
	if tx.Error != nil {
		return "", tx.Error
	}
	if tx.RowsAffected == 0 {
		return "", models.ErrDispatchBusy
	}
	return token, nil
}

func (l *runLock) Release(ctx context.Context, token string) error {
	tx := l.db.WithContext(ctx).
		Model(&models.DispatchLock{}).
		Where("id = ? AND token = ?", lockID, token).
		Updates(map[string]any{"token": "", "deadline": time.Time{}})
	return tx.Error
}
