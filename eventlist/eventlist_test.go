package eventlist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wisher-api/domain"
)

type fakeRepo struct {
	user    domain.User
	signed  bool
	pages   map[string]domain.Page // keyed by cursor
	listErr error
	deleted []string
	delErr  error
	calls   int
}

func (f *fakeRepo) GetEvents(ctx context.Context, ownerID, cursor string, pageSize int) (domain.Page, error) {
	f.calls++
	if f.listErr != nil {
		return domain.Page{}, f.listErr
	}
	return f.pages[cursor], nil
}

func (f *fakeRepo) DeleteEvent(ctx context.Context, id string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeRepo) CurrentUser() (domain.User, bool) {
	return f.user, f.signed
}

func ev(id, title string) domain.Event {
	return domain.Event{ID: id, Title: title, Recipient: "Sam", EventType: "Birthday", OwnerID: "u1"}
}

func signedRepo() *fakeRepo {
	return &fakeRepo{
		user:   domain.User{ID: "u1"},
		signed: true,
		pages:  make(map[string]domain.Page),
	}
}

func TestLoadReplacesEvents(t *testing.T) {
	repo := signedRepo()
	repo.pages[""] = domain.Page{
		Events:         []domain.Event{ev("e1", "Birthday Bash"), ev("e2", "Anniversary")},
		HasMore:        true,
		LastDocumentID: "cur-1",
	}
	s := New(repo, 2, nil)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := s.Snapshot()
	if len(snap.Events) != 2 || snap.IsLoading || snap.Err != "" {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
	if !snap.HasMore || snap.Cursor != "cur-1" {
		t.Fatalf("pagination state not captured: %#v", snap)
	}
}

func TestLoadMoreAppendsPreservingOrder(t *testing.T) {
	repo := signedRepo()
	repo.pages[""] = domain.Page{
		Events:         []domain.Event{ev("e1", "First"), ev("e2", "Second")},
		HasMore:        true,
		LastDocumentID: "cur-1",
	}
	repo.pages["cur-1"] = domain.Page{
		Events:         []domain.Event{ev("e3", "Third")},
		HasMore:        false,
		LastDocumentID: "cur-2",
	}
	s := New(repo, 2, nil)

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.LoadMore(context.Background()); err != nil {
		t.Fatalf("load more: %v", err)
	}

	snap := s.Snapshot()
	want := []string{"e1", "e2", "e3"}
	if len(snap.Events) != len(want) {
		t.Fatalf("unexpected events: %#v", snap.Events)
	}
	for i, id := range want {
		if snap.Events[i].ID != id {
			t.Fatalf("order broken at %d: %#v", i, snap.Events)
		}
	}
	if snap.HasMore {
		t.Fatal("expected feed exhausted")
	}
}

func TestLoadMoreNoOpWhileLoading(t *testing.T) {
	repo := signedRepo()
	s := New(repo, 2, nil)
	s.mu.Lock()
	s.snap.IsLoading = true
	s.snap.HasMore = true
	s.snap.Cursor = "cur-1"
	s.mu.Unlock()
	before := s.Snapshot()

	if err := s.LoadMore(context.Background()); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("expected no fetch, got %d", repo.calls)
	}
	after := s.Snapshot()
	if after.IsLoading != before.IsLoading || after.Cursor != before.Cursor || len(after.Events) != len(before.Events) {
		t.Fatalf("state changed: %#v -> %#v", before, after)
	}
}

func TestLoadMoreNoOpWhenExhausted(t *testing.T) {
	repo := signedRepo()
	s := New(repo, 2, nil)

	if err := s.LoadMore(context.Background()); err != nil {
		t.Fatalf("load more: %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("expected no fetch when HasMore is false, got %d", repo.calls)
	}
}

func TestLoadNoOpWhileLoading(t *testing.T) {
	repo := signedRepo()
	s := New(repo, 2, nil)
	s.mu.Lock()
	s.snap.IsLoading = true
	s.mu.Unlock()

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if repo.calls != 0 {
		t.Fatalf("expected no fetch, got %d", repo.calls)
	}
}

func TestSearchFiltersFetchedPage(t *testing.T) {
	repo := signedRepo()
	repo.pages[""] = domain.Page{
		Events: []domain.Event{
			ev("e1", "Birthday Bash"),
			{ID: "e2", Title: "Graduation", Recipient: "Alex", EventType: "Ceremony", OwnerID: "u1"},
			{ID: "e3", Title: "Dinner", Recipient: "sam jones", EventType: "Anniversary", OwnerID: "u1"},
		},
	}
	s := New(repo, 20, nil)

	if err := s.SetSearchQuery(context.Background(), "SAM"); err != nil {
		t.Fatalf("set query: %v", err)
	}
	snap := s.Snapshot()
	if snap.SearchQuery != "SAM" {
		t.Fatalf("query not stored: %#v", snap)
	}
	if len(snap.Events) != 2 {
		t.Fatalf("expected case-insensitive recipient matches, got %#v", snap.Events)
	}
}

func TestSearchResetsPagination(t *testing.T) {
	repo := signedRepo()
	repo.pages[""] = domain.Page{
		Events:         []domain.Event{ev("e1", "Birthday Bash")},
		HasMore:        true,
		LastDocumentID: "cur-9",
	}
	s := New(repo, 1, nil)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := s.SetSearchQuery(context.Background(), "bash"); err != nil {
		t.Fatalf("set query: %v", err)
	}
	if repo.calls != 2 {
		t.Fatalf("expected a refetch, got %d calls", repo.calls)
	}
	if snap := s.Snapshot(); snap.Cursor != "cur-9" {
		// Cursor comes from the fresh first page, not the stale scroll state.
		t.Fatalf("unexpected cursor: %#v", snap)
	}
}

func TestLoadCompletesWithActiveSearch(t *testing.T) {
	repo := signedRepo()
	repo.pages[""] = domain.Page{
		Events:         []domain.Event{ev("e1", "Birthday Bash"), ev("e2", "Graduation")},
		HasMore:        true,
		LastDocumentID: "cur-1",
	}
	repo.pages["cur-1"] = domain.Page{
		Events: []domain.Event{ev("e3", "Birthday Dinner")},
	}
	s := New(repo, 2, nil)

	if err := s.SetSearchQuery(context.Background(), "birthday"); err != nil {
		t.Fatalf("search: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		if err := s.Load(context.Background()); err != nil {
			done <- err
			return
		}
		done <- s.LoadMore(context.Background())
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("load cycle: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("load cycle did not complete")
	}

	snap := s.Snapshot()
	if len(snap.Events) != 2 || snap.Events[0].ID != "e1" || snap.Events[1].ID != "e3" {
		t.Fatalf("unexpected filtered events: %#v", snap.Events)
	}
	if snap.IsLoading {
		t.Fatal("loading flag should be clear")
	}
}

func TestDeleteReloadsFirstPage(t *testing.T) {
	repo := signedRepo()
	repo.pages[""] = domain.Page{Events: []domain.Event{ev("e2", "Remaining")}}
	s := New(repo, 20, nil)

	if err := s.Delete(context.Background(), "e1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "e1" {
		t.Fatalf("unexpected deletions: %v", repo.deleted)
	}
	snap := s.Snapshot()
	if len(snap.Events) != 1 || snap.Events[0].ID != "e2" {
		t.Fatalf("expected reloaded list, got %#v", snap.Events)
	}
}

func TestDeleteFailureSurfacesError(t *testing.T) {
	repo := signedRepo()
	repo.delErr = errors.New("Event not found")
	s := New(repo, 20, nil)

	if err := s.Delete(context.Background(), "e1"); err == nil {
		t.Fatal("expected error")
	}
	snap := s.Snapshot()
	if snap.Err != "Event not found" || snap.IsLoading {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestLoadFailureSurfacesError(t *testing.T) {
	repo := signedRepo()
	repo.listErr = errors.New("Service is currently unavailable. Please try again later")
	s := New(repo, 20, nil)

	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	snap := s.Snapshot()
	if snap.Err == "" || snap.IsLoading {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestLoadWithoutSessionFails(t *testing.T) {
	repo := &fakeRepo{pages: make(map[string]domain.Page)}
	s := New(repo, 20, nil)

	if err := s.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if snap := s.Snapshot(); snap.Err != "User not authenticated" {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestSubscribeDeliversLatestSnapshot(t *testing.T) {
	repo := signedRepo()
	pageEvents := make([]domain.Event, 0, 3)
	for i := 0; i < 3; i++ {
		pageEvents = append(pageEvents, ev(fmt.Sprintf("e%d", i), "Party"))
	}
	repo.pages[""] = domain.Page{Events: pageEvents}
	s := New(repo, 20, nil)

	sub := s.Subscribe()
	<-sub // initial empty snapshot

	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}

	// The channel holds only the freshest state.
	var last Snapshot
	for {
		select {
		case snap := <-sub:
			last = snap
			continue
		default:
		}
		break
	}
	if len(last.Events) != 3 || last.IsLoading {
		t.Fatalf("unexpected snapshot: %#v", last)
	}
}
