package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"hallbook/schedule"
)

func TestWebhookNotifierPostsEvent(t *testing.T) {
	var got schedule.Event
	var header http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		header = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	hook := NewWebhookNotifier(server.URL + "/events")
	hook.Secret = "s3cret"
	if err := hook.Notify(context.Background(), sampleEvent(schedule.EventBookingConfirmed)); err != nil {
		t.Fatal(err)
	}
	if got.Type != schedule.EventBookingConfirmed || got.Booking.ID != "b1" || got.Version != 1 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if header.Get("Authorization") != "Bearer s3cret" || header.Get("X-Hallbook-Event") != "booking.confirmed" {
		t.Fatalf("unexpected headers %v", header)
	}
	if header.Get("Content-Type") != "application/json" {
		t.Fatalf("content type = %s", header.Get("Content-Type"))
	}
}

func TestWebhookNotifierReportsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "queue full", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL).Notify(context.Background(), sampleEvent(schedule.EventBookingCanceled))
	if err == nil {
		t.Fatal("expected an error for a 503")
	}
	if !strings.Contains(err.Error(), "503") || !strings.Contains(err.Error(), "queue full") {
		t.Fatalf("error should carry status and body, got %v", err)
	}
}
