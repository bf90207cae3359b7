package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"wisher-api/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store provides access to the event and user tables and the reminder queue.
type Store struct {
	eventTable    *aztables.Client
	userTable     *aztables.Client
	reminderQueue *azqueue.QueueClient
}

// New creates a Store from the given connection string. SDK-level retries are
// disabled on the tables client; transient failures there are retried by the
// repository layer instead.
func New(connStr, eventsTable, usersTable, reminderQueue string) (*Store, error) {
	tableOpts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tableOpts)
	if err != nil {
		return nil, err
	}
	et := svc.NewClient(eventsTable)
	ut := svc.NewClient(usersTable)

	queueOpts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	rq, err := azqueue.NewQueueClientFromConnectionString(connStr, reminderQueue, &queueOpts)
	if err != nil {
		return nil, err
	}
	return &Store{eventTable: et, userTable: ut, reminderQueue: rq}, nil
}

type eventEntity struct {
	aztables.Entity
	ID        string `json:"ID"`
	Title     string `json:"Title"`
	Date      string `json:"Date"`
	Recipient string `json:"Recipient"`
	EventType string `json:"EventType"`
	DueUnix   int64  `json:"DueUnix"`
}

func entityFromEvent(ev domain.Event) (eventEntity, error) {
	due, err := domain.ParseDate(ev.Date)
	if err != nil {
		return eventEntity{}, fmt.Errorf("event %s has unparseable date %q: %w", ev.ID, ev.Date, err)
	}
	return eventEntity{
		Entity: aztables.Entity{
			PartitionKey: ev.OwnerID,
			RowKey:       eventRowKey(due, ev.ID),
		},
		ID:        ev.ID,
		Title:     ev.Title,
		Date:      ev.Date,
		Recipient: ev.Recipient,
		EventType: ev.EventType,
		DueUnix:   due.Unix(),
	}, nil
}

func (e eventEntity) toEvent() domain.Event {
	return domain.Event{
		ID:        e.ID,
		Title:     e.Title,
		Date:      e.Date,
		Recipient: e.Recipient,
		EventType: e.EventType,
		OwnerID:   e.PartitionKey,
	}
}

// InsertEvent creates a new event row.
func (s *Store) InsertEvent(ctx context.Context, ev domain.Event) error {
	ent, err := entityFromEvent(ev)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.eventTable.AddEntity(ctx, data, nil)
	return mapTableError(err)
}

// UpdateEvent overwrites the row for ev.ID in full. When the event's date
// changed the row key moves, so the old row is deleted and the new one added
// in a single partition transaction.
func (s *Store) UpdateEvent(ctx context.Context, ev domain.Event) error {
	existing, found, err := s.GetEvent(ctx, ev.ID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	ent, err := entityFromEvent(ev)
	if err != nil {
		return err
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return err
	}

	if existing.Date == ev.Date {
		_, err = s.eventTable.UpsertEntity(ctx, data, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
		return mapTableError(err)
	}

	oldDue, err := domain.ParseDate(existing.Date)
	if err != nil {
		return err
	}
	oldData, err := json.Marshal(aztables.Entity{
		PartitionKey: existing.OwnerID,
		RowKey:       eventRowKey(oldDue, ev.ID),
	})
	if err != nil {
		return err
	}
	_, err = s.eventTable.SubmitTransaction(ctx, []aztables.TransactionAction{
		{ActionType: aztables.TransactionTypeDelete, Entity: oldData},
		{ActionType: aztables.TransactionTypeAdd, Entity: data},
	}, nil)
	return mapTableError(err)
}

// DeleteEvent removes the row backing ev. Callers fetch ev via GetEvent
// first; the row key is derived from its date and id.
func (s *Store) DeleteEvent(ctx context.Context, ev domain.Event) error {
	due, err := domain.ParseDate(ev.Date)
	if err != nil {
		return err
	}
	_, err = s.eventTable.DeleteEntity(ctx, ev.OwnerID, eventRowKey(due, ev.ID), nil)
	return mapTableError(err)
}

// GetEvent fetches a single event by id. An absent record yields found=false
// with a nil error.
func (s *Store) GetEvent(ctx context.Context, id string) (domain.Event, bool, error) {
	filter := "ID eq '" + escapeFilterValue(id) + "'"
	top := int32(1)
	pager := s.eventTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{
		Filter: &filter,
		Top:    &top,
	})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return domain.Event{}, false, mapTableError(err)
		}
		for _, raw := range resp.Entities {
			var ent eventEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return domain.Event{}, false, err
			}
			return ent.toEvent(), true, nil
		}
	}
	return domain.Event{}, false, nil
}

// ListEvents returns up to pageSize events owned by ownerID in date-descending
// order, starting after cursor when one is given. The returned cursor
// references the last row of the page; an empty cursor means the page was
// empty.
func (s *Store) ListEvents(ctx context.Context, ownerID, cursor string, pageSize int) ([]domain.Event, string, error) {
	filter := "PartitionKey eq '" + escapeFilterValue(ownerID) + "'"
	if cursor != "" {
		if !validCursor(cursor) {
			return nil, "", errInvalidCursor{cursor}
		}
		filter += " and RowKey gt '" + escapeFilterValue(cursor) + "'"
	}
	top := int32(pageSize)
	pager := s.eventTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{
		Filter: &filter,
		Top:    &top,
	})

	events := make([]domain.Event, 0, pageSize)
	lastRowKey := ""
	for pager.More() && len(events) < pageSize {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, "", mapTableError(err)
		}
		for _, raw := range resp.Entities {
			var ent eventEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, "", err
			}
			events = append(events, ent.toEvent())
			lastRowKey = ent.RowKey
			if len(events) == pageSize {
				break
			}
		}
	}
	return events, lastRowKey, nil
}

// ListEventsDueBetween scans all owners for events whose date falls in
// [from, to). Used by the reminder job.
func (s *Store) ListEventsDueBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error) {
	filter := fmt.Sprintf("DueUnix ge %dL and DueUnix lt %dL", from.Unix(), to.Unix())
	pager := s.eventTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	events := []domain.Event{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapTableError(err)
		}
		for _, raw := range resp.Entities {
			var ent eventEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			events = append(events, ent.toEvent())
		}
	}
	return events, nil
}

// Reminder is the message handed to the external notification deliverer.
type Reminder struct {
	EventID   string `json:"eventId"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Recipient string `json:"recipient"`
	EventType string `json:"eventType"`
	OwnerID   string `json:"ownerId"`
}

// ReminderFromEvent builds the queue payload for ev.
func ReminderFromEvent(ev domain.Event) Reminder {
	return Reminder{
		EventID:   ev.ID,
		Title:     ev.Title,
		Date:      ev.Date,
		Recipient: ev.Recipient,
		EventType: ev.EventType,
		OwnerID:   ev.OwnerID,
	}
}

// EnqueueReminder publishes a reminder message to the notification queue.
func (s *Store) EnqueueReminder(ctx context.Context, r Reminder) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.reminderQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

func escapeFilterValue(v string) string {
	return strings.ReplaceAll(v, "'", "''")
}

func mapTableError(err error) error {
	if err == nil {
		return nil
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) && respErr.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, respErr.ErrorCode)
	}
	return err
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsOutage reports whether err is a backend-side failure (timeout, throttle
// or 5xx) that a bounded retry may recover from.
func IsOutage(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	switch respErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// IsNetwork reports whether err never produced an HTTP response at all, which
// means the transport failed. Errors the adapter rejects before talking to
// the backend, like a malformed continuation token, are not transport
// failures and retrying them cannot help.
func IsNetwork(err error) bool {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var invalidCursor interface{ InvalidContinuationToken() }
	if errors.As(err, &invalidCursor) {
		return false
	}
	var respErr *azcore.ResponseError
	return !errors.As(err, &respErr)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return IsOutage(err) || IsNetwork(err)
}
