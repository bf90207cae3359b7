// Package repository mediates every read and write of event records and user
// credentials. It stamps and checks ownership, validates records before any
// network call, retries transient fetch failures, and folds backend errors
// into a stable taxonomy.
package repository

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"wisher-api/domain"
	"wisher-api/identity"
	"wisher-api/storage"
)

// DefaultPageSize is used when a caller asks for a page without a size.
const DefaultPageSize = 20

// Store abstracts the document store for the repository.
type Store interface {
	InsertEvent(ctx context.Context, ev domain.Event) error
	UpdateEvent(ctx context.Context, ev domain.Event) error
	DeleteEvent(ctx context.Context, ev domain.Event) error
	GetEvent(ctx context.Context, id string) (domain.Event, bool, error)
	ListEvents(ctx context.Context, ownerID, cursor string, pageSize int) ([]domain.Event, string, error)
	GetUserProfile(ctx context.Context, id string) (storage.UserProfile, bool, error)
	PutUserProfile(ctx context.Context, p storage.UserProfile) error
	EnqueueReminder(ctx context.Context, r storage.Reminder) error
}

// Session exposes the caller's authenticated identity. The identity provider
// satisfies it; WithCaller swaps in a fixed identity for request-scoped use.
type Session interface {
	CurrentUser() (domain.User, bool)
}

// Repository orchestrates event persistence for one authenticated caller.
type Repository struct {
	store    Store
	provider identity.Provider
	session  Session
	logger   *log.Logger
	now      func() time.Time
	retry    RetryPolicy
}

// New creates a Repository. The identity provider doubles as the session
// source until WithCaller replaces it.
func New(store Store, provider identity.Provider, logger *log.Logger) *Repository {
	if store == nil {
		panic("repository.New: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Repository{
		store:    store,
		provider: provider,
		session:  provider,
		logger:   logger,
		now:      time.Now,
		retry:    DefaultRetryPolicy(),
	}
}

type staticSession struct {
	user domain.User
}

func (s staticSession) CurrentUser() (domain.User, bool) {
	return s.user, s.user.ID != ""
}

// WithCaller returns a shallow copy bound to the given identity. Handlers use
// it to scope repository calls to the user a bearer token authenticated.
func (r *Repository) WithCaller(user domain.User) *Repository {
	cp := *r
	cp.session = staticSession{user: user}
	return &cp
}

func (r *Repository) caller() (domain.User, error) {
	user, ok := r.session.CurrentUser()
	if !ok {
		return domain.User{}, authorizationError("User not authenticated")
	}
	return user, nil
}

// AddEvent validates and persists a new event. The caller must own it and the
// record must pass validation before any network call is made.
func (r *Repository) AddEvent(ctx context.Context, ev domain.Event) error {
	user, err := r.caller()
	if err != nil {
		return err
	}
	if ev.OwnerID != user.ID {
		return authorizationError("")
	}
	if errs := domain.Validate(ev, r.now()); len(errs) > 0 {
		return validationError(errs)
	}
	if err := r.store.InsertEvent(ctx, ev); err != nil {
		return r.mapStoreError(err)
	}
	r.publishReminder(ctx, ev)
	r.logger.WithFields(log.Fields{"event": ev.ID, "owner": ev.OwnerID}).Debug("event created")
	return nil
}

// UpdateEvent overwrites the remote record at ev.ID in full. Last writer
// wins; there is no concurrency token.
func (r *Repository) UpdateEvent(ctx context.Context, ev domain.Event) error {
	user, err := r.caller()
	if err != nil {
		return err
	}
	if ev.OwnerID != user.ID {
		return authorizationError("")
	}
	if errs := domain.Validate(ev, r.now()); len(errs) > 0 {
		return validationError(errs)
	}
	if err := r.store.UpdateEvent(ctx, ev); err != nil {
		return r.mapStoreError(err)
	}
	r.publishReminder(ctx, ev)
	r.logger.WithFields(log.Fields{"event": ev.ID, "owner": ev.OwnerID}).Debug("event updated")
	return nil
}

// DeleteEvent removes an event by id. The record is fetched first so
// ownership can be verified before the delete is issued.
func (r *Repository) DeleteEvent(ctx context.Context, id string) error {
	user, err := r.caller()
	if err != nil {
		return err
	}
	ev, found, err := r.GetEvent(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return notFoundError("", nil)
	}
	if ev.OwnerID != user.ID {
		return authorizationError("")
	}
	if err := r.store.DeleteEvent(ctx, ev); err != nil {
		return r.mapStoreError(err)
	}
	r.logger.WithFields(log.Fields{"event": id, "owner": user.ID}).Debug("event deleted")
	return nil
}

// GetEvent fetches a single event. Absence is reported through found=false,
// not an error.
func (r *Repository) GetEvent(ctx context.Context, id string) (domain.Event, bool, error) {
	ev, found, err := r.store.GetEvent(ctx, id)
	if err != nil {
		return domain.Event{}, false, r.mapStoreError(err)
	}
	return ev, found, nil
}

// GetEvents returns one page of the owner's events, date-descending. The
// fetch is retried with exponential backoff on transient failures. HasMore is
// inferred from a full page, which over-reports when the total count is an
// exact multiple of pageSize.
func (r *Repository) GetEvents(ctx context.Context, ownerID, cursor string, pageSize int) (domain.Page, error) {
	user, err := r.caller()
	if err != nil {
		return domain.Page{}, err
	}
	if ownerID != user.ID {
		return domain.Page{}, authorizationError("")
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	type page struct {
		events  []domain.Event
		lastKey string
	}
	out, err := withRetry(ctx, r.retry, storage.IsTransient, func(ctx context.Context) (page, error) {
		events, lastKey, err := r.store.ListEvents(ctx, ownerID, cursor, pageSize)
		if err != nil {
			return page{}, err
		}
		return page{events: events, lastKey: lastKey}, nil
	})
	if err != nil {
		return domain.Page{}, r.mapStoreError(err)
	}

	return domain.Page{
		Events:         out.events,
		HasMore:        len(out.events) == pageSize,
		LastDocumentID: out.lastKey,
	}, nil
}

// SignIn authenticates the user and requires their profile record to exist.
// A session without a profile is an inconsistent state: the session is
// invalidated and the failure surfaced.
func (r *Repository) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	user, err := r.provider.SignIn(ctx, email, password)
	if err != nil {
		return domain.User{}, r.mapIdentityError(err)
	}
	_, found, err := r.store.GetUserProfile(ctx, user.ID)
	if err != nil {
		return domain.User{}, r.mapStoreError(err)
	}
	if !found {
		if soErr := r.provider.SignOut(ctx); soErr != nil {
			r.logger.WithError(soErr).Warn("sign-out after missing profile failed")
		}
		return domain.User{}, unknownError("User profile not found. Please sign up again.", nil)
	}
	return user, nil
}

// SignUp creates the account and makes sure a profile record exists for it.
func (r *Repository) SignUp(ctx context.Context, email, password, name string) (domain.User, error) {
	user, err := r.provider.SignUp(ctx, email, password, name)
	if err != nil {
		return domain.User{}, r.mapIdentityError(err)
	}
	_, found, err := r.store.GetUserProfile(ctx, user.ID)
	if err != nil {
		return domain.User{}, r.mapStoreError(err)
	}
	if !found {
		profile := storage.UserProfile{
			ID:        user.ID,
			Email:     user.Email,
			Name:      user.Name,
			CreatedAt: r.now().UTC(),
		}
		if err := r.store.PutUserProfile(ctx, profile); err != nil {
			return domain.User{}, r.mapStoreError(err)
		}
	}
	return user, nil
}

// SignOut invalidates the current session.
func (r *Repository) SignOut(ctx context.Context) error {
	return r.provider.SignOut(ctx)
}

// CurrentUser returns the cached authenticated identity without blocking.
func (r *Repository) CurrentUser() (domain.User, bool) {
	return r.session.CurrentUser()
}

// publishReminder hands the event to the notification queue. Delivery is
// best-effort; a failed enqueue is logged, not surfaced, since the write
// itself already succeeded.
func (r *Repository) publishReminder(ctx context.Context, ev domain.Event) {
	if err := r.store.EnqueueReminder(ctx, storage.ReminderFromEvent(ev)); err != nil {
		r.logger.WithError(err).WithField("event", ev.ID).Error("reminder enqueue failed")
	}
}

type invalidCursor interface {
	InvalidContinuationToken()
}

func (r *Repository) mapStoreError(err error) error {
	var re *Error
	if errors.As(err, &re) {
		return re
	}
	var badCursor invalidCursor
	switch {
	case errors.As(err, &badCursor):
		return &Error{Kind: KindValidation, Message: "Invalid page token", cause: err}
	case errors.Is(err, storage.ErrNotFound):
		return notFoundError("", err)
	case storage.IsOutage(err):
		return unavailableError(err)
	case storage.IsNetwork(err):
		return networkError(err)
	default:
		return unknownError("", err)
	}
}

func (r *Repository) mapIdentityError(err error) error {
	switch identity.CodeOf(err) {
	case "":
		if storage.IsOutage(err) {
			return unavailableError(err)
		}
		if storage.IsNetwork(err) {
			return networkError(err)
		}
		return unknownError("", err)
	case identity.CodeInvalidEmail, identity.CodeWeakPassword:
		return &Error{Kind: KindValidation, Message: err.Error(), FieldErrors: []string{err.Error()}, cause: err}
	default:
		return &Error{Kind: KindAuthorization, Message: err.Error(), cause: err}
	}
}
