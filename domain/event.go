package domain

import (
	"strings"
	"time"
)

// DateLayout is the wire format for event dates.
const DateLayout = "02/01/2006"

const maxFieldLength = 100

// Event is a user-created celebration record. An empty ID marks a record
// that has not been persisted yet.
type Event struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Recipient string `json:"recipient"`
	EventType string `json:"eventType"`
	OwnerID   string `json:"ownerId"`
}

// ParseDate parses an event date in DD/MM/YYYY form.
func ParseDate(date string) (time.Time, error) {
	return time.Parse(DateLayout, date)
}

// Validate checks an event's fields and returns one message per violation.
// An empty slice means the event may be persisted. Rules are evaluated
// independently so the caller can surface every problem at once.
func Validate(ev Event, now time.Time) []string {
	var errs []string

	switch {
	case strings.TrimSpace(ev.Title) == "":
		errs = append(errs, "Title is required")
	case len(ev.Title) > maxFieldLength:
		errs = append(errs, "Title must be less than 100 characters")
	}

	if strings.TrimSpace(ev.Date) == "" {
		errs = append(errs, "Date is required")
	} else if parsed, err := ParseDate(ev.Date); err != nil {
		errs = append(errs, "Invalid date format. Use DD/MM/YYYY")
	} else if !parsed.After(now) {
		errs = append(errs, "Please select a future date")
	}

	switch {
	case strings.TrimSpace(ev.Recipient) == "":
		errs = append(errs, "Recipient is required")
	case len(ev.Recipient) > maxFieldLength:
		errs = append(errs, "Recipient name must be less than 100 characters")
	}

	if strings.TrimSpace(ev.EventType) == "" {
		errs = append(errs, "Event type is required")
	}
	if strings.TrimSpace(ev.OwnerID) == "" {
		errs = append(errs, "User ID is required")
	}

	return errs
}
