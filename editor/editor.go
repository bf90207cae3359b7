// Package editor holds a single event's draft fields and drives the
// load/save cycle for the add/edit flow. State is an immutable snapshot
// replaced on each transition, re-enterable after success or failure.
package editor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"wisher-api/domain"
)

// Repo is the slice of the repository the editor needs.
type Repo interface {
	GetEvent(ctx context.Context, id string) (domain.Event, bool, error)
	AddEvent(ctx context.Context, ev domain.Event) error
	UpdateEvent(ctx context.Context, ev domain.Event) error
	CurrentUser() (domain.User, bool)
}

// Snapshot is one immutable view of the draft state.
type Snapshot struct {
	Title     string
	Date      string
	Recipient string
	EventType string
	IsLoading bool
	Err       string
	IsSuccess bool
}

// Editor is the add/edit state machine.
type Editor struct {
	repo   Repo
	logger *log.Logger
	now    func() time.Time
	newID  func() string

	mu   sync.Mutex
	snap Snapshot
}

// New creates an Editor with an empty draft.
func New(repo Repo, logger *log.Logger) *Editor {
	if repo == nil {
		panic("editor.New: repo is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Editor{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Snapshot returns the latest draft state.
func (e *Editor) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// SetTitle updates the draft title. Pure local mutation, no I/O.
func (e *Editor) SetTitle(title string) {
	e.mutate(func(s *Snapshot) { s.Title = title })
}

// SetDate updates the draft date string.
func (e *Editor) SetDate(date string) {
	e.mutate(func(s *Snapshot) { s.Date = date })
}

// SetRecipient updates the draft recipient.
func (e *Editor) SetRecipient(recipient string) {
	e.mutate(func(s *Snapshot) { s.Recipient = recipient })
}

// SetEventType updates the draft event type.
func (e *Editor) SetEventType(eventType string) {
	e.mutate(func(s *Snapshot) { s.EventType = eventType })
}

func (e *Editor) mutate(fn func(*Snapshot)) {
	e.mu.Lock()
	fn(&e.snap)
	e.mu.Unlock()
}

// LoadForEdit fetches the record and populates the draft fields.
func (e *Editor) LoadForEdit(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return e.fail("Invalid event ID")
	}
	e.mutate(func(s *Snapshot) {
		s.IsLoading = true
		s.Err = ""
		s.IsSuccess = false
	})

	ev, found, err := e.repo.GetEvent(ctx, id)
	if err != nil {
		return e.fail(err.Error())
	}
	if !found {
		return e.fail("Event not found")
	}

	e.mutate(func(s *Snapshot) {
		s.Title = ev.Title
		s.Date = ev.Date
		s.Recipient = ev.Recipient
		s.EventType = ev.EventType
		s.IsLoading = false
	})
	return nil
}

// Save validates the draft and persists it. An empty id creates a new event
// under a freshly generated id; otherwise the record at id is overwritten.
// Validation failure sets Err and stops before any network call.
func (e *Editor) Save(ctx context.Context, id string) error {
	user, ok := e.repo.CurrentUser()
	if !ok {
		return e.fail("User not authenticated")
	}

	e.mu.Lock()
	ev := domain.Event{
		ID:        id,
		Title:     e.snap.Title,
		Date:      e.snap.Date,
		Recipient: e.snap.Recipient,
		EventType: e.snap.EventType,
		OwnerID:   user.ID,
	}
	e.mu.Unlock()

	if errs := domain.Validate(ev, e.now()); len(errs) > 0 {
		return e.fail(strings.Join(errs, "\n"))
	}

	e.mutate(func(s *Snapshot) {
		s.IsLoading = true
		s.Err = ""
	})

	var err error
	if ev.ID == "" {
		ev.ID = e.newID()
		err = e.repo.AddEvent(ctx, ev)
	} else {
		err = e.repo.UpdateEvent(ctx, ev)
	}
	if err != nil {
		return e.fail(err.Error())
	}

	e.mutate(func(s *Snapshot) {
		s.IsLoading = false
		s.IsSuccess = true
	})
	e.logger.WithField("event", ev.ID).Debug("event saved")
	return nil
}

// Reset clears the draft back to its initial state.
func (e *Editor) Reset() {
	e.mu.Lock()
	e.snap = Snapshot{}
	e.mu.Unlock()
}

func (e *Editor) fail(msg string) error {
	e.mutate(func(s *Snapshot) {
		s.IsLoading = false
		s.Err = msg
	})
	return &editError{msg: msg}
}

type editError struct {
	msg string
}

func (e *editError) Error() string {
	return e.msg
}
