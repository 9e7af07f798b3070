package models

import (
	"database/sql"
	"time"
)

// Verification tracks proof that a subscriber controls their address.
// A row with VerifiedAt unset is an outstanding confirmation link.
type Verification struct {
	Email      string `gorm:"primaryKey"`
	Nonce      string `gorm:"uniqueIndex"`
	VerifiedAt sql.NullTime
	Expiry     time.Time
}
