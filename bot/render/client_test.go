package render

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"schedbot/bot/timetable"
)

func fixtureDays() []timetable.Day {
	return []timetable.Day{
		{Date: "02.03.2026", Weekday: "Пн", Pairs: []timetable.Pair{{Time: "08:30", Subject: "Математика"}}},
		{Date: "03.03.2026", Weekday: "Вт", Pairs: []timetable.Pair{{Time: "10:10", Subject: "Физика"}}},
	}
}

func TestWeekImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render/week.png" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var p renderPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode: %v", err)
		}
		if p.Title != "ИТ2-211" || len(p.Days) != 2 {
			t.Errorf("payload = %+v", p)
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	art, err := c.WeekImage(context.Background(), "ИТ2-211", fixtureDays())
	if err != nil {
		t.Fatalf("week image: %v", err)
	}
	if string(art.Data) != "png-bytes" {
		t.Fatalf("data = %q", art.Data)
	}
	if art.ID == "" || !strings.HasPrefix(art.Filename, "schedule_") || !strings.HasSuffix(art.Filename, ".png") {
		t.Fatalf("artifact = %+v", art)
	}
}

func TestDayImagesOnePerDay(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var p renderPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		if len(p.Days) != 1 {
			t.Errorf("days per call = %d", len(p.Days))
		}
		_, _ = w.Write([]byte("img"))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	arts, err := c.DayImages(context.Background(), "ИТ2-211", fixtureDays())
	if err != nil {
		t.Fatalf("day images: %v", err)
	}
	if len(arts) != 2 || calls != 2 {
		t.Fatalf("arts = %d calls = %d", len(arts), calls)
	}
	if arts[0].ID == arts[1].ID {
		t.Fatal("artifact ids must be unique")
	}
}

func TestRenderEmptyArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if _, err := c.WeekFile(context.Background(), "x", fixtureDays()); err == nil {
		t.Fatal("expected error for empty body")
	}
}

func TestRenderBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if _, err := c.Semester(context.Background(), "ИТ2-211", timetable.KindGroup); err == nil {
		t.Fatal("expected error on 500")
	}
}
