// Package eventlist maintains an in-memory, paginated, filterable view of a
// user's events. State lives in immutable snapshots replaced wholesale on
// each transition; consumers poll the latest snapshot or subscribe for
// updates.
package eventlist

import (
	"context"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"wisher-api/domain"
)

// Repo is the slice of the repository the synchronizer needs.
type Repo interface {
	GetEvents(ctx context.Context, ownerID, cursor string, pageSize int) (domain.Page, error)
	DeleteEvent(ctx context.Context, id string) error
	CurrentUser() (domain.User, bool)
}

// Snapshot is one immutable view of the list state.
type Snapshot struct {
	Events      []domain.Event
	IsLoading   bool
	Err         string
	SearchQuery string
	HasMore     bool
	Cursor      string
}

// Synchronizer drives the event-list state through repository calls. All
// transitions are serialized: a load that is already in flight makes
// LoadMore a no-op rather than racing it.
type Synchronizer struct {
	repo     Repo
	pageSize int
	logger   *log.Logger

	mu   sync.Mutex
	snap Snapshot
	subs []chan Snapshot
}

// New creates a Synchronizer fetching pageSize records per page.
func New(repo Repo, pageSize int, logger *log.Logger) *Synchronizer {
	if repo == nil {
		panic("eventlist.New: repo is nil")
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Synchronizer{repo: repo, pageSize: pageSize, logger: logger}
}

// Snapshot returns the latest state.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.clone()
}

// Subscribe returns a channel carrying state snapshots. The channel holds
// only the latest snapshot: a slow consumer sees the freshest state, not
// every intermediate one.
func (s *Synchronizer) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	ch <- s.snap.clone()
	s.mu.Unlock()
	return ch
}

func (sn Snapshot) clone() Snapshot {
	cp := sn
	cp.Events = append([]domain.Event(nil), sn.Events...)
	return cp
}

// publishLocked pushes the current snapshot to every subscriber, replacing
// any unconsumed one. Callers hold s.mu.
func (s *Synchronizer) publishLocked() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.snap.clone()
	}
}

// Load fetches the first page for the current user and replaces the list.
// It is a no-op when a load is already in flight.
func (s *Synchronizer) Load(ctx context.Context) error {
	if !s.begin() {
		return nil
	}
	return s.reload(ctx)
}

// reload performs a first-page fetch. The loading flag is already held.
func (s *Synchronizer) reload(ctx context.Context) error {
	user, ok := s.repo.CurrentUser()
	if !ok {
		return s.fail("User not authenticated")
	}
	page, err := s.repo.GetEvents(ctx, user.ID, "", s.pageSize)
	if err != nil {
		return s.fail(err.Error())
	}

	s.mu.Lock()
	s.snap.Events = filter(page.Events, s.snap.SearchQuery)
	s.snap.Cursor = page.LastDocumentID
	s.snap.HasMore = page.HasMore
	s.snap.IsLoading = false
	s.snap.Err = ""
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

// LoadMore appends the next page. It is a no-op while a load is in flight or
// when the feed is exhausted.
func (s *Synchronizer) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.snap.IsLoading || !s.snap.HasMore {
		s.mu.Unlock()
		return nil
	}
	cursor := s.snap.Cursor
	s.snap.IsLoading = true
	s.snap.Err = ""
	s.publishLocked()
	s.mu.Unlock()

	user, ok := s.repo.CurrentUser()
	if !ok {
		return s.fail("User not authenticated")
	}
	page, err := s.repo.GetEvents(ctx, user.ID, cursor, s.pageSize)
	if err != nil {
		return s.fail(err.Error())
	}

	s.mu.Lock()
	s.snap.Events = append(s.snap.Events, filter(page.Events, s.snap.SearchQuery)...)
	s.snap.Cursor = page.LastDocumentID
	s.snap.HasMore = page.HasMore
	s.snap.IsLoading = false
	s.publishLocked()
	s.mu.Unlock()
	return nil
}

// SetSearchQuery stores the query, resets pagination and refetches the first
// page. Filtering applies to each fetched page, not the full remote set;
// matches beyond the first page surface as the user pages further.
func (s *Synchronizer) SetSearchQuery(ctx context.Context, query string) error {
	s.mu.Lock()
	if s.snap.IsLoading {
		s.mu.Unlock()
		return nil
	}
	s.snap.SearchQuery = query
	s.snap.Cursor = ""
	s.snap.HasMore = false
	s.snap.IsLoading = true
	s.snap.Err = ""
	s.publishLocked()
	s.mu.Unlock()

	return s.reload(ctx)
}

// Delete removes an event and reloads the first page on success.
func (s *Synchronizer) Delete(ctx context.Context, id string) error {
	if !s.begin() {
		return nil
	}
	if err := s.repo.DeleteEvent(ctx, id); err != nil {
		return s.fail(err.Error())
	}
	return s.reload(ctx)
}

// begin atomically flips the loading flag, reporting false when a load is
// already running.
func (s *Synchronizer) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.IsLoading {
		return false
	}
	s.snap.IsLoading = true
	s.snap.Err = ""
	s.publishLocked()
	return true
}

func (s *Synchronizer) fail(msg string) error {
	s.mu.Lock()
	s.snap.IsLoading = false
	s.snap.Err = msg
	s.publishLocked()
	s.mu.Unlock()
	s.logger.WithField("error", msg).Debug("event list operation failed")
	return &listError{msg: msg}
}

// filter keeps the events matching query. Callers pass the query they read
// under the state mutex so filtering itself needs no lock.
func filter(events []domain.Event, query string) []domain.Event {
	if query == "" {
		return events
	}
	matched := make([]domain.Event, 0, len(events))
	for _, ev := range events {
		if matchesQuery(ev, query) {
			matched = append(matched, ev)
		}
	}
	return matched
}

func matchesQuery(ev domain.Event, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(ev.Title), q) ||
		strings.Contains(strings.ToLower(ev.Recipient), q) ||
		strings.Contains(strings.ToLower(ev.EventType), q)
}

type listError struct {
	msg string
}

func (e *listError) Error() string {
	return e.msg
}
