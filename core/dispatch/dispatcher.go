// Package dispatch routes decoded message_new events through the
// conversation state machine and persists the resulting state.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"vkcoursebot/core/catalog"
	"vkcoursebot/core/logger"
	"vkcoursebot/core/session"
	"vkcoursebot/core/vk"
)

// State names a node of the conversation state machine. The string
// value is what gets persisted in the session store.
type State string

const (
	StateStart    State = "START"
	StateMainMenu State = "MAIN_MENU"
	StateCourse   State = "COURSE"
)

// Typed greetings that force the START handler regardless of stored state.
var greetingSynonyms = map[string]struct{}{
	"start":  {},
	"/start": {},
	"начать": {},
	"старт":  {},
	"+":      {},
}

// Sender delivers outgoing replies.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, text string, kb *vk.Keyboard) error
}

// ProfileSource fetches user profiles for the greeting cache.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID int64) (vk.Profile, error)
}

// Notifier forwards contact-the-admin requests out of band. May be nil.
type Notifier interface {
	ContactRequest(ctx context.Context, userID int64, name, text string) error
}

// handlerFunc runs one state's logic and returns the next state.
type handlerFunc func(ctx context.Context, msg Message) (State, error)

// pageSize is the number of course rows per reply page.
const pageSize = 5

// Dispatcher owns the state machine. Processing the same event twice
// is safe apart from a duplicated reply: state writes are idempotent.
type Dispatcher struct {
	sessions *session.Sessions
	profiles ProfileSource
	sender   Sender
	courses  catalog.Repo
	notifier Notifier
	now      func() time.Time

	handlers map[State]handlerFunc
}

// Config carries the dispatcher's collaborators. Notifier and Now are
// optional.
type Config struct {
	Sessions *session.Sessions
	Profiles ProfileSource
	Sender   Sender
	Courses  catalog.Repo
	Notifier Notifier
	Now      func() time.Time
}

func New(cfg Config) (*Dispatcher, error) {
	if cfg.Sessions == nil || cfg.Profiles == nil || cfg.Sender == nil || cfg.Courses == nil {
		return nil, errors.New("dispatch: sessions, profiles, sender and courses are required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	d := &Dispatcher{
		sessions: cfg.Sessions,
		profiles: cfg.Profiles,
		sender:   cfg.Sender,
		courses:  cfg.Courses,
		notifier: cfg.Notifier,
		now:      cfg.Now,
	}
	d.handlers = map[State]handlerFunc{
		StateStart:    d.handleStart,
		StateMainMenu: d.handleMainMenu,
		StateCourse:   d.handleCourse,
	}
	return d, nil
}

// Process runs one event through the machine: resolve the effective
// state, run its handler, persist the next state exactly once. A
// handler failure abandons the event with the stored state untouched;
// the error is returned so the pool can count the failed dispatch.
func (d *Dispatcher) Process(ctx context.Context, msg Message) error {
	start := time.Now()
	ctx = logger.WithRID(ctx, logger.NewRID())
	ctx = logger.WithEventMeta(ctx, msg.UserID, msg.PeerID)

	d.ensureProfile(ctx, msg.UserID)

	state, err := d.effectiveState(ctx, msg)
	if err != nil {
		logger.DISP.ErrorContext(ctx, "state lookup failed",
			slog.String("event", "dispatch.state"),
			slog.String("err", err.Error()),
		)
		return err
	}
	ctx = logger.WithState(ctx, string(state))

	handler, ok := d.handlers[state]
	if !ok {
		// Mapping fault: a stored state no handler claims, e.g. written
		// by an older build. The event is dropped, the state untouched;
		// a typed greeting still gets the user out.
		logger.DISP.ErrorContext(ctx, "no handler for state",
			slog.String("event", "dispatch.route"),
			slog.String("status", "fail"),
		)
		return nil
	}
	ctx = logger.WithHandler(ctx, strings.ToLower(string(state)))

	next, err := handler(ctx, msg)
	if err != nil {
		// Abandon the dispatch: no partial transition is persisted, the
		// user retries by sending another message.
		logger.DISP.ErrorContext(ctx, "handler failed",
			slog.String("event", "dispatch.handle"),
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return err
	}

	if err := d.sessions.SetState(ctx, msg.UserID, string(next)); err != nil {
		return fmt.Errorf("persist next state: %w", err)
	}

	logger.DISP.InfoContext(ctx, "event dispatched",
		slog.String("event", "dispatch.done"),
		slog.String("status", "ok"),
		slog.String("next_state", string(next)),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

// effectiveState resolves which handler serves this event. A typed
// greeting or the start button short-circuits to START; a user with no
// stored state is treated as START on first contact.
func (d *Dispatcher) effectiveState(ctx context.Context, msg Message) (State, error) {
	if isGreeting(msg) {
		return StateStart, nil
	}
	stored, found, err := d.sessions.State(ctx, msg.UserID)
	if err != nil {
		return "", err
	}
	if !found {
		return StateStart, nil
	}
	return State(stored), nil
}

func isGreeting(msg Message) bool {
	if msg.Payload.Button == vk.BtnStart {
		return true
	}
	_, ok := greetingSynonyms[strings.ToLower(strings.TrimSpace(msg.Text))]
	return ok
}

// ensureProfile fills the profile cache on first contact. Fetch
// failures are logged and swallowed: the greeting degrades to the
// anonymous form instead of blocking the dialog.
func (d *Dispatcher) ensureProfile(ctx context.Context, userID int64) {
	_, found, err := d.sessions.FirstName(ctx, userID)
	if err != nil || found {
		return
	}
	profile, err := d.profiles.GetProfile(ctx, userID)
	if err != nil {
		logger.DISP.WarnContext(ctx, "profile fetch failed",
			slog.String("event", "dispatch.profile"),
			slog.String("err", err.Error()),
		)
		return
	}
	if err := d.sessions.SetProfile(ctx, userID, profile.FirstName, profile.LastName); err != nil {
		logger.DISP.WarnContext(ctx, "profile cache write failed",
			slog.String("event", "dispatch.profile"),
			slog.String("err", err.Error()),
		)
	}
}
