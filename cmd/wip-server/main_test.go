package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDemoRegistryTools(t *testing.T) {
	reg, err := demoRegistry()
	if err != nil {
		t.Fatalf("demoRegistry: %v", err)
	}

	want := []string{"get-stock-price", "list-calendar-events", "create-appointment"}
	for _, name := range want {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
	if got := len(reg.List()); got != len(want) {
		t.Errorf("registry has %d tools, want %d", got, len(want))
	}
}

func TestBookingToolConfirms(t *testing.T) {
	tool := demoBookingTool()

	start := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	out, err := tool.Handler(context.Background(), map[string]any{
		"title":            "Design review",
		"start":            start,
		"duration_minutes": float64(45),
	})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	var booking struct {
		Status          string `json:"status"`
		ID              string `json:"id"`
		Title           string `json:"title"`
		Start           string `json:"start"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := json.Unmarshal([]byte(out), &booking); err != nil {
		t.Fatalf("unmarshal booking: %v", err)
	}
	if booking.Status != "confirmed" {
		t.Errorf("status = %q, want confirmed", booking.Status)
	}
	if booking.ID == "" {
		t.Error("booking ID is empty")
	}
	if booking.Title != "Design review" {
		t.Errorf("title = %q", booking.Title)
	}
	if booking.Start != start {
		t.Errorf("start = %q, want %q", booking.Start, start)
	}
	if booking.DurationMinutes != 45 {
		t.Errorf("duration = %d, want 45", booking.DurationMinutes)
	}
}

func TestBookingToolDefaultDuration(t *testing.T) {
	tool := demoBookingTool()

	out, err := tool.Handler(context.Background(), map[string]any{
		"title": "Standup",
		"start": "2026-09-01T09:00:00Z",
	})
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}
	var booking struct {
		DurationMinutes int `json:"duration_minutes"`
	}
	if err := json.Unmarshal([]byte(out), &booking); err != nil {
		t.Fatalf("unmarshal booking: %v", err)
	}
	if booking.DurationMinutes != 30 {
		t.Errorf("duration = %d, want default 30", booking.DurationMinutes)
	}
}

func TestBookingToolRejectsBadInput(t *testing.T) {
	tool := demoBookingTool()

	if _, err := tool.Handler(context.Background(), map[string]any{
		"start": "2026-09-01T09:00:00Z",
	}); err == nil || !strings.Contains(err.Error(), "title") {
		t.Errorf("missing title: err = %v", err)
	}

	if _, err := tool.Handler(context.Background(), map[string]any{
		"title": "Standup",
		"start": "tomorrow at nine",
	}); err == nil || !strings.Contains(err.Error(), "RFC 3339") {
		t.Errorf("bad start: err = %v", err)
	}
}
