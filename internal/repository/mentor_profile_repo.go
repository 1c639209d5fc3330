package repository

import (
	"context"

	"github.com/saeid-a/MentorHubBack/internal/models"
)

type MentorProfileRepository struct {
	db DBTX
}

func NewMentorProfileRepository(db DBTX) *MentorProfileRepository {
	return &MentorProfileRepository{db: db}
}

func (r *MentorProfileRepository) GetByUserID(ctx context.Context, userID int64) (*models.MentorProfile, error) {
	query := `
		SELECT id, user_id, full_name, hourly_rate, onboarding_complete, created_at, updated_at
		FROM mentor_profiles
		WHERE user_id = $1
	`
	var profile models.MentorProfile
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.FullName,
		&profile.HourlyRate,
		&profile.OnboardingComplete,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, translateError(err)
	}
	return &profile, nil
}
