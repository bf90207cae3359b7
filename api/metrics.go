package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type listRequestMetrics struct {
	logger            *log.Logger
	start             time.Time
	authDuration      time.Duration
	fetchDuration     time.Duration
	pageTokenProvided bool
	searchProvided    bool
	eventsReturned    int
	hasNextPage       bool
	errorStage        string
}

func newListRequestMetrics(logger *log.Logger) *listRequestMetrics {
	return &listRequestMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *listRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *listRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *listRequestMetrics) SetPageTokenProvided(provided bool) {
	m.pageTokenProvided = provided
}

func (m *listRequestMetrics) SetSearchProvided(provided bool) {
	m.searchProvided = provided
}

func (m *listRequestMetrics) SetEventsReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.eventsReturned = count
}

func (m *listRequestMetrics) SetHasNextPage(hasNext bool) {
	m.hasNextPage = hasNext
}

func (m *listRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *listRequestMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":               "/api/events",
		"status":              status,
		"total_ms":            durationToMillis(time.Since(m.start)),
		"page_token_provided": m.pageTokenProvided,
		"search_provided":     m.searchProvided,
		"events_returned":     m.eventsReturned,
		"has_next_page":       m.hasNextPage,
	}

	if m.authDuration > 0 {
		fields["auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		fields["fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("events.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
