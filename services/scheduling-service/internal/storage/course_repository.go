package storage

import (
	"context"

	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/services/scheduling-service/internal/model"
)

type CourseRepository struct {
	pool *db.Pool
}

func NewCourseRepository(pool *db.Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

// Terms lists terms, most recent code first.
func (r *CourseRepository) Terms(ctx context.Context) ([]model.Term, error) {
	rows, err := r.pool.Query(ctx, `SELECT code, name, is_current FROM terms ORDER BY code DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Term
	for rows.Next() {
		var t model.Term
		if err := rows.Scan(&t.Code, &t.Name, &t.IsCurrent); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CurrentTerm returns ErrNotFound when no term is flagged current.
func (r *CourseRepository) CurrentTerm(ctx context.Context) (model.Term, error) {
	var t model.Term
	err := r.pool.QueryRow(ctx, `SELECT code, name, is_current FROM terms WHERE is_current`).
		Scan(&t.Code, &t.Name, &t.IsCurrent)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Term{}, ErrNotFound
		}
		return model.Term{}, err
	}
	return t, nil
}

// CoursesForTerm returns the whole catalog of one term ordered by course number.
func (r *CourseRepository) CoursesForTerm(ctx context.Context, termCode string) ([]model.Course, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, term_code, course_number, course_title,
			COALESCE(instructor, ''), COALESCE(department, ''), COALESCE(description, ''),
			COALESCE(units, ''), COALESCE(days, ''), COALESCE(time_of_day, ''),
			COALESCE(location, ''), COALESCE(session_type, '')
		FROM courses
		WHERE term_code = $1
		ORDER BY course_number, session_type NULLS FIRST
	`, termCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Course
	for rows.Next() {
		var c model.Course
		if err := rows.Scan(&c.ID, &c.TermCode, &c.Number, &c.Title, &c.Instructor, &c.Department,
			&c.Description, &c.Units, &c.Days, &c.Time, &c.Location, &c.SessionType); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
