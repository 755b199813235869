package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"vkcoursebot/core/catalog"
	"vkcoursebot/core/logger"
	"vkcoursebot/core/vk"
)

// handleStart greets the user by cached first name and shows the main
// menu. The next state is always MAIN_MENU.
func (d *Dispatcher) handleStart(ctx context.Context, msg Message) (State, error) {
	first, _, err := d.sessions.FirstName(ctx, msg.UserID)
	if err != nil {
		first = ""
	}
	if err := d.sender.SendMessage(ctx, msg.UserID, msgGreeting(first), vk.MainMenuKeyboard()); err != nil {
		return StateMainMenu, err
	}
	return StateMainMenu, nil
}

// handleMainMenu serves the menu choices. Roster choices reply with a
// paginated course listing and move the dialog to COURSE; informational
// choices reply in place.
func (d *Dispatcher) handleMainMenu(ctx context.Context, msg Message) (State, error) {
	switch msg.Payload.Button {
	case vk.BtnFutureCourses:
		courses, err := d.courses.Scheduled(ctx, d.now())
		if err != nil {
			return StateMainMenu, err
		}
		return StateCourse, d.sendCourseList(ctx, msg.UserID, courses, futureCopy, vk.BtnFutureCourses)
	case vk.BtnClientCourses:
		courses, err := d.courses.Enrolled(ctx, msg.UserID)
		if err != nil {
			return StateMainMenu, err
		}
		return StateCourse, d.sendCourseList(ctx, msg.UserID, courses, clientCopy, vk.BtnClientCourses)
	case vk.BtnPastCourses:
		courses, err := d.courses.Completed(ctx, d.now())
		if err != nil {
			return StateMainMenu, err
		}
		return StateCourse, d.sendCourseList(ctx, msg.UserID, courses, pastCopy, vk.BtnPastCourses)
	case vk.BtnAdminMsg:
		d.forwardContact(ctx, msg)
		return StateStart, d.sender.SendMessage(ctx, msg.UserID, msgAdminPrompt, vk.MenuKeyboard(vk.ColorPrimary, true))
	case vk.BtnSearchUs:
		return StateStart, d.sender.SendMessage(ctx, msg.UserID, msgSearchUs, vk.MenuKeyboard(vk.ColorPrimary, true))
	default:
		// Free text in the menu is a reserved no-op path; the dialog
		// falls back to START so the next message re-greets.
		return StateStart, nil
	}
}

// handleCourse opens the course card for a pressed course button.
// Anything else gets a menu hint and falls back to START.
func (d *Dispatcher) handleCourse(ctx context.Context, msg Message) (State, error) {
	if msg.Payload.CoursePK != 0 {
		course, err := d.courses.Get(ctx, msg.Payload.CoursePK)
		if errors.Is(err, catalog.ErrCourseNotFound) {
			return StateCourse, d.sender.SendMessage(ctx, msg.UserID, msgCourseNotFound, vk.MenuKeyboard(vk.ColorPrimary, true))
		}
		if err != nil {
			return StateCourse, err
		}
		return StateCourse, d.sender.SendMessage(ctx, msg.UserID, courseCard(course), vk.MenuKeyboard(vk.ColorPrimary, true))
	}
	return StateStart, d.sender.SendMessage(ctx, msg.UserID, msgMenuPrompt, vk.MenuKeyboard(vk.ColorPrimary, true))
}

// sendCourseList replies with the roster in pages of pageSize rows.
// The first page carries the roster's own header, every following page
// the "more" header. An empty roster gets a single reply with just the
// return-to-menu button.
func (d *Dispatcher) sendCourseList(ctx context.Context, userID int64, courses []catalog.Course, wording listCopy, back string) error {
	if len(courses) == 0 {
		return d.sender.SendMessage(ctx, userID, wording.empty, vk.MenuKeyboard(vk.ColorPrimary, true))
	}

	pages := 0
	for offset := 0; offset < len(courses); offset += pageSize {
		end := min(offset+pageSize, len(courses))
		refs := make([]vk.CourseRef, 0, end-offset)
		for _, course := range courses[offset:end] {
			refs = append(refs, vk.CourseRef{ID: course.ID, Name: course.Name})
		}
		header := wording.first
		if offset > 0 {
			header = wording.more
		}
		if err := d.sender.SendMessage(ctx, userID, header, vk.CourseKeyboard(refs, back)); err != nil {
			return err
		}
		pages++
	}

	logger.DISP.DebugContext(ctx, "course list sent",
		slog.String("event", "dispatch.list"),
		slog.Int("courses", len(courses)),
		slog.Int("pages", pages),
	)
	return nil
}

func (d *Dispatcher) forwardContact(ctx context.Context, msg Message) {
	if d.notifier == nil {
		return
	}
	first, _, _ := d.sessions.FirstName(ctx, msg.UserID)
	last, _, _ := d.sessions.LastName(ctx, msg.UserID)
	name := strings.TrimSpace(first + " " + last)
	if err := d.notifier.ContactRequest(ctx, msg.UserID, name, msg.Text); err != nil {
		logger.DISP.WarnContext(ctx, "contact forward failed",
			slog.String("event", "dispatch.notify"),
			slog.String("err", err.Error()),
		)
	}
}

func courseCard(course catalog.Course) string {
	var b strings.Builder
	b.WriteString(course.Name)
	if !course.ScheduledAt.IsZero() {
		fmt.Fprintf(&b, "\nСтарт: %s", course.ScheduledAt.Format("02.01.2006"))
	}
	if course.Program != "" {
		b.WriteString("\n\n")
		b.WriteString(course.Program)
	}
	return b.String()
}
