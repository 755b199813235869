// Package catalog reads the course roster: what is scheduled, what a
// user is enrolled in, and what has already run.
package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrCourseNotFound = errors.New("catalog: course not found")

// Course is one roster entry. Program is the free-form syllabus text
// shown when the user opens the course.
type Course struct {
	ID          int64     `db:"id"`
	Name        string    `db:"name"`
	Program     string    `db:"program"`
	ScheduledAt time.Time `db:"scheduled_at"`
}

// Repo serves roster queries. All list methods return courses in a
// stable order so paginated replies are reproducible.
type Repo interface {
	// Scheduled lists courses starting after now, soonest first.
	Scheduled(ctx context.Context, now time.Time) ([]Course, error)
	// Enrolled lists the courses the user is signed up for, soonest first.
	Enrolled(ctx context.Context, userID int64) ([]Course, error)
	// Completed lists courses that started before now, most recent first.
	Completed(ctx context.Context, now time.Time) ([]Course, error)
	// Get fetches one course by id, ErrCourseNotFound if absent.
	Get(ctx context.Context, id int64) (Course, error)
}
