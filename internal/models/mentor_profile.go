package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type MentorProfile struct {
	ID                 int64               `json:"id"`
	UserID             int64               `json:"user_id"`
	FullName           *string             `json:"full_name"`
	HourlyRate         decimal.NullDecimal `json:"hourly_rate"`
	OnboardingComplete bool                `json:"onboarding_complete"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}
