package models

import (
	"strings"
	"time"
)

// Subscriber is one recipient's watchlist, schedule and lifecycle state.
// Email is immutable after creation; records are never hard-deleted,
// unsubscribing flips Status to inactive instead.
type Subscriber struct {
	Email     string `gorm:"primaryKey"`
	Stocks    string // comma-joined tickers, insertion order preserved
	Schedule  Schedule
	Status    Status `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Subscribers []Subscriber

func (s *Subscriber) StockList() []string {
	if s.Stocks == "" {
		return nil
	}
	return strings.Split(s.Stocks, ",")
}

func (s *Subscriber) SetStocks(tickers []string) {
	s.Stocks = strings.Join(tickers, ",")
}
