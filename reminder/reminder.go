package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"wisher-api/domain"
	"wisher-api/storage"
)

const defaultLeadWindow = 24 * time.Hour

// Store is the slice of the event store the scanner needs.
type Store interface {
	ListEventsDueBetween(ctx context.Context, from, to time.Time) ([]domain.Event, error)
	EnqueueReminder(ctx context.Context, r storage.Reminder) error
}

// Scanner periodically looks for events due within the lead window and
// enqueues a reminder message for each. Delivering the notifications is the
// queue consumer's job.
type Scanner struct {
	store   Store
	deduper Deduper
	logger  *log.Logger
	lead    time.Duration
	cron    *cron.Cron
	now     func() time.Time
}

// New creates a scanner. A non-positive lead falls back to 24 hours. The
// deduper is optional; without one, overlapping scan windows may enqueue the
// same reminder twice.
func New(store Store, deduper Deduper, logger *log.Logger, lead time.Duration) *Scanner {
	if lead <= 0 {
		lead = defaultLeadWindow
	}
	return &Scanner{
		store:   store,
		deduper: deduper,
		logger:  logger,
		lead:    lead,
		now:     time.Now,
	}
}

// Start schedules Scan on the given cron expression, e.g. "0 8 * * *" for a
// daily morning run.
func (s *Scanner) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if err := s.Scan(context.Background()); err != nil {
			s.logger.WithError(err).Error("reminder scan failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reminder schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	s.logger.WithField("schedule", schedule).Info("reminder scanner started")
	return nil
}

// Stop halts the schedule and waits for a running scan to finish.
func (s *Scanner) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Scan enqueues a reminder for every event due within the lead window.
// Individual enqueue failures are logged and skipped so one bad message does
// not starve the rest of the batch.
func (s *Scanner) Scan(ctx context.Context) error {
	from := s.now()
	to := from.Add(s.lead)

	events, err := s.store.ListEventsDueBetween(ctx, from, to)
	if err != nil {
		return fmt.Errorf("listing due events: %w", err)
	}

	enqueued, skipped := 0, 0
	for _, ev := range events {
		if s.deduper != nil {
			first, err := s.deduper.MarkSent(ctx, ev.ID, ev.Date)
			if err != nil {
				s.logger.WithError(err).WithField("eventId", ev.ID).Error("reminder dedupe check failed")
				continue
			}
			if !first {
				skipped++
				continue
			}
		}
		if err := s.store.EnqueueReminder(ctx, storage.ReminderFromEvent(ev)); err != nil {
			s.logger.WithError(err).WithField("eventId", ev.ID).Error("failed to enqueue reminder")
			if s.deduper != nil {
				if err := s.deduper.Unmark(ctx, ev.ID, ev.Date); err != nil {
					s.logger.WithError(err).WithField("eventId", ev.ID).Error("failed to release reminder mark")
				}
			}
			continue
		}
		enqueued++
	}

	s.logger.WithFields(log.Fields{
		"due":      len(events),
		"enqueued": enqueued,
		"skipped":  skipped,
	}).Info("reminder scan complete")
	return nil
}
