package labeling

import (
	"strings"
	"testing"
	"time"

	"github.com/kalambet/whatnow/internal/storage"
)

func TestDayPart_Buckets(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{0, "late-night"},
		{4, "late-night"},
		{5, "early-morning"},
		{7, "early-morning"},
		{8, "morning"},
		{11, "morning"},
		{12, "midday"},
		{13, "midday"},
		{14, "afternoon"},
		{16, "afternoon"},
		{17, "evening"},
		{20, "evening"},
		{21, "night"},
		{23, "night"},
	}
	for _, tt := range tests {
		at := time.Date(2026, 8, 30, tt.hour, 30, 0, 0, time.UTC)
		if got := dayPart(at); got != tt.want {
			t.Errorf("dayPart(hour=%d) = %q, want %q", tt.hour, got, tt.want)
		}
	}
}

func TestUrgencyLine_Buckets(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		due  time.Time
		want string
	}{
		{now.Add(-48 * time.Hour), "OVERDUE by 2 days"},
		{now.Add(6 * time.Hour), "DUE TODAY"},
		{now.Add(2 * 24 * time.Hour), "Due in 2 days (urgent)"},
		{now.Add(10 * 24 * time.Hour), "Due in 10 days"},
	}
	for _, tt := range tests {
		if got := urgencyLine(tt.due, now); got != tt.want {
			t.Errorf("urgencyLine(%v) = %q, want %q", tt.due, got, tt.want)
		}
	}
}

func TestBuildUserPrompt_IncludesTaskAndContext(t *testing.T) {
	now := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	due := now.Add(24 * time.Hour)
	task := storage.Task{
		Title:       "Water the plants",
		Description: "Balcony and living room",
		Priority:    storage.PriorityLow,
		DueDate:     &due,
	}
	userCtx := &UserContext{
		Timezone: "Europe/Kyiv",
		Location: "home",
	}

	prompt := buildUserPrompt(task, userCtx, now)

	for _, want := range []string{
		"Title: Water the plants",
		"Description: Balcony and living room",
		"Priority: low",
		"Due in 1 days (urgent)",
		"Timezone: Europe/Kyiv",
		"Location: home",
		"Day of Week: Sunday",
		"Time of Day: morning",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildUserPrompt_OmitsEmptySections(t *testing.T) {
	now := time.Now().UTC()
	prompt := buildUserPrompt(storage.Task{Title: "x", Priority: storage.PriorityMedium}, nil, now)

	if strings.Contains(prompt, "USER CONTEXT") {
		t.Error("prompt contains user context section without user context")
	}
	if strings.Contains(prompt, "Due Date:") {
		t.Error("prompt contains due date without one set")
	}
}
