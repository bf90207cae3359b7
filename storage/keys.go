package storage

import (
	"fmt"
	"strings"
	"time"
)

// Row keys embed the event date inverted so that the lexicographic scan order
// Azure Tables guarantees within a partition equals date-descending feed
// order. The id suffix keeps keys unique for events sharing a date.
const rowKeyEpoch int64 = 1 << 41

func eventRowKey(due time.Time, id string) string {
	return fmt.Sprintf("%013d_%s", rowKeyEpoch-due.Unix(), id)
}

type errInvalidCursor struct {
	cursor string
}

func (e errInvalidCursor) Error() string {
	return fmt.Sprintf("invalid pagination cursor %q", e.cursor)
}

// InvalidContinuationToken marks the error for classification by callers.
func (e errInvalidCursor) InvalidContinuationToken() {}

func validCursor(cursor string) bool {
	idx := strings.IndexByte(cursor, '_')
	if idx != 13 || len(cursor) < idx+2 {
		return false
	}
	for _, r := range cursor[:idx] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
