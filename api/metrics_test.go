package api

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
)

func TestListRequestMetricsLogProducesObservabilityEvent(t *testing.T) {
	logger, hook := test.NewNullLogger()

	m := newListRequestMetrics(logger)
	m.ObserveAuth(3 * time.Millisecond)
	m.ObserveFetch(12 * time.Millisecond)
	m.SetPageTokenProvided(true)
	m.SetSearchProvided(false)
	m.SetEventsReturned(7)
	m.SetHasNextPage(true)
	m.Log(200, nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Message != "events.request.metrics" {
		t.Fatalf("unexpected message: %q", entry.Message)
	}
	if entry.Data["route"] != "/api/events" {
		t.Fatalf("unexpected route: %v", entry.Data["route"])
	}
	if entry.Data["status"] != 200 {
		t.Fatalf("unexpected status: %v", entry.Data["status"])
	}
	if entry.Data["events_returned"] != 7 {
		t.Fatalf("unexpected events_returned: %v", entry.Data["events_returned"])
	}
	if entry.Data["has_next_page"] != true || entry.Data["page_token_provided"] != true {
		t.Fatalf("unexpected pagination fields: %v", entry.Data)
	}
	if _, ok := entry.Data["auth_ms"]; !ok {
		t.Fatal("auth_ms missing")
	}
	if _, ok := entry.Data["fetch_ms"]; !ok {
		t.Fatal("fetch_ms missing")
	}
	if _, ok := entry.Data["error"]; ok {
		t.Fatal("error field should be absent on success")
	}
}

func TestListRequestMetricsLogWithError(t *testing.T) {
	logger, hook := test.NewNullLogger()

	m := newListRequestMetrics(logger)
	m.SetErrorStage("fetch")
	m.Log(503, errors.New("backend offline"))

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["error_stage"] != "fetch" {
		t.Fatalf("unexpected error_stage: %v", entry.Data["error_stage"])
	}
	if entry.Data["error"] != "backend offline" {
		t.Fatalf("unexpected error field: %v", entry.Data["error"])
	}
}

func TestListRequestMetricsIgnoresInvalidObservations(t *testing.T) {
	logger, hook := test.NewNullLogger()

	m := newListRequestMetrics(logger)
	m.ObserveAuth(0)
	m.ObserveFetch(-time.Millisecond)
	m.SetEventsReturned(-5)
	m.SetErrorStage("")
	m.Log(200, nil)

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if _, ok := entry.Data["auth_ms"]; ok {
		t.Fatal("zero auth duration should be omitted")
	}
	if _, ok := entry.Data["fetch_ms"]; ok {
		t.Fatal("negative fetch duration should be omitted")
	}
	if entry.Data["events_returned"] != 0 {
		t.Fatalf("negative count should clamp to zero: %v", entry.Data["events_returned"])
	}
	if _, ok := entry.Data["error_stage"]; ok {
		t.Fatal("empty error stage should be omitted")
	}
}

func TestNilMetricsLogIsSafe(t *testing.T) {
	var m *listRequestMetrics
	m.Log(200, nil)
}
