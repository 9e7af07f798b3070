package models

import (
	"fmt"
	"strings"
)

// Status is a subscriber's lifecycle state. Transitions:
// none -> pending|active, pending -> active|inactive, active -> inactive,
// inactive -> pending|active (re-subscription, re-checked against
// verification like a fresh signup).
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Schedule is the half-day bucket(s) a subscriber receives reports in.
type Schedule string

const (
	ScheduleMorning   Schedule = "MORNING"
	ScheduleAfternoon Schedule = "AFTERNOON"
	ScheduleBoth      Schedule = "BOTH"
)

func ParseSchedule(s string) (Schedule, error) {
	switch sched := Schedule(strings.ToUpper(strings.TrimSpace(s))); sched {
	case ScheduleMorning, ScheduleAfternoon, ScheduleBoth:
		return sched, nil
	default:
		return "", fmt.Errorf("%w: unknown schedule %q", ErrValidation, s)
	}
}

// Shift identifies a single dispatch run's half-day bucket.
type Shift string

const (
	ShiftMorning   Shift = "MORNING"
	ShiftAfternoon Shift = "AFTERNOON"
)

func ParseShift(s string) (Shift, error) {
	switch shift := Shift(strings.ToUpper(strings.TrimSpace(s))); shift {
	case ShiftMorning, ShiftAfternoon:
		return shift, nil
	default:
		return "", fmt.Errorf("%w: unknown shift %q", ErrValidation, s)
	}
}

// Covers reports whether a dispatch run for the given shift should include
// a subscriber on this schedule.
func (s Schedule) Covers(shift Shift) bool {
	return s == ScheduleBoth || string(s) == string(shift)
}

// VerifyState is the verification collaborator's answer for an address.
type VerifyState string

const (
	Verified   VerifyState = "verified"
	Unverified VerifyState = "unverified"
	Unknown    VerifyState = "unknown"
)

// NormalizeEmail lowercases and trims an address. The result is the
// subscriber's identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeTicker uppercases a symbol, keeping only the first
// whitespace-separated token.
func NormalizeTicker(s string) string {
	fields := strings.Fields(strings.ToUpper(s))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
