package repository

import "context"

// CourseRepository answers ownership questions against the content service's
// courses table.
type CourseRepository struct {
	db DBTX
}

func NewCourseRepository(db DBTX) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) IsInstructor(ctx context.Context, courseID string, mentorID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM courses WHERE id = $1 AND instructor_id = $2)`
	var owns bool
	if err := r.db.QueryRow(ctx, query, courseID, mentorID).Scan(&owns); err != nil {
		return false, err
	}
	return owns, nil
}
