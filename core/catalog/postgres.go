package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type PostgresRepo struct {
	db *sqlx.DB
}

func NewPostgresRepo(db *sqlx.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Scheduled(ctx context.Context, now time.Time) ([]Course, error) {
	var courses []Course
	err := r.db.SelectContext(ctx, &courses, `
		SELECT id, name, program, scheduled_at
		FROM courses
		WHERE scheduled_at > $1
		ORDER BY scheduled_at ASC, id ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("list scheduled courses: %w", err)
	}
	return courses, nil
}

func (r *PostgresRepo) Enrolled(ctx context.Context, userID int64) ([]Course, error) {
	var courses []Course
	err := r.db.SelectContext(ctx, &courses, `
		SELECT c.id, c.name, c.program, c.scheduled_at
		FROM courses c
		JOIN enrollments e ON e.course_id = c.id
		WHERE e.user_id = $1
		ORDER BY c.scheduled_at ASC, c.id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list enrolled courses for %d: %w", userID, err)
	}
	return courses, nil
}

func (r *PostgresRepo) Completed(ctx context.Context, now time.Time) ([]Course, error) {
	var courses []Course
	err := r.db.SelectContext(ctx, &courses, `
		SELECT id, name, program, scheduled_at
		FROM courses
		WHERE scheduled_at <= $1
		ORDER BY scheduled_at DESC, id DESC`, now)
	if err != nil {
		return nil, fmt.Errorf("list completed courses: %w", err)
	}
	return courses, nil
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Course, error) {
	var course Course
	err := r.db.GetContext(ctx, &course, `
		SELECT id, name, program, scheduled_at
		FROM courses
		WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Course{}, ErrCourseNotFound
	}
	if err != nil {
		return Course{}, fmt.Errorf("get course %d: %w", id, err)
	}
	return course, nil
}
