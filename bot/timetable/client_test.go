package timetable

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func scheduleFixture() []Day {
	return []Day{
		{
			Date:    "02.03.2026",
			Weekday: "Понедельник",
			Pairs: []Pair{
				{Time: "08:30-10:00", Subject: "Математика", Auditorium: "220"},
			},
		},
		{Date: "03.03.2026", Weekday: "Вторник", Pairs: nil},
	}
}

func TestClientSchedule(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/schedule" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("group"); got != "ИТ2-211" {
			t.Errorf("group = %q", got)
		}
		if got := r.URL.Query().Get("date"); got != "2026-03-02" {
			t.Errorf("date = %q", got)
		}
		_ = json.NewEncoder(w).Encode(scheduleFixture())
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	days, err := c.Schedule(context.Background(), "2026-03-02", "ИТ2-211", KindGroup)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("days = %d, expected empty day filtered out", len(days))
	}
	if days[0].Pairs[0].Subject != "Математика" {
		t.Fatalf("subject = %q", days[0].Pairs[0].Subject)
	}

	// Second call is served from the cache.
	if _, err := c.Schedule(context.Background(), "2026-03-02", "ИТ2-211", KindGroup); err != nil {
		t.Fatalf("cached schedule: %v", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("hits = %d, expected 1", got)
	}
}

func TestClientScheduleNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if _, err := c.Schedule(context.Background(), "2026-03-02", "НЕТ-1", KindGroup); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, expected ErrNotFound", err)
	}
}

func TestClientScheduleAllDaysEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]Day{{Date: "02.03.2026", Weekday: "Пн"}})
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if _, err := c.Schedule(context.Background(), "2026-03-02", "ИТ2-211", KindGroup); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, expected ErrNotFound for a week without lessons", err)
	}
}

func TestClientEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("type"); got != string(KindTeacher) {
			t.Errorf("type = %q", got)
		}
		_ = json.NewEncoder(w).Encode([]string{"Иванов И.И.", "Петров П.П."})
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	names, err := c.Entities(context.Background(), KindTeacher)
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if len(names) != 2 || names[0] != "Иванов И.И." {
		t.Fatalf("names = %v", names)
	}
}

func TestClientScheduleBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if _, err := c.Schedule(context.Background(), "2026-03-02", "ИТ2-211", KindGroup); err == nil {
		t.Fatal("expected error on 502")
	}
}
