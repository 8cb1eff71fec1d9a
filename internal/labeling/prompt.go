package labeling

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kalambet/whatnow/internal/storage"
)

// UserContext carries optional caller-supplied context that sharpens labeling.
type UserContext struct {
	Timezone    string            `json:"timezone,omitempty"`
	Location    string            `json:"location,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
}

const labelingSystemPrompt = `You are an expert task labeling agent. Your role is to analyze tasks and generate comprehensive, actionable labels that help users decide when and where to complete tasks.

Analyze tasks across these dimensions:

**LOCATION** (where the task should be done):
- home, office, outdoor, gym, store, cafe, library, anywhere, specific-location

**TIME** (when the task is best done):
- early-morning, morning, midday, afternoon, evening, night, late-night
- weekday, weekend, flexible-timing, time-sensitive

**ENERGY** (mental/physical energy required):
- high-energy, medium-energy, low-energy, minimal-energy
- energizing, draining, neutral-energy

**DURATION** (how long it takes):
- quick-5min, short-15min, medium-30min, standard-1hr, long-2hr, extended-4hr+

**MOOD** (mental state needed):
- focused, creative, analytical, social, physical, administrative
- reflective, collaborative, independent, motivated

**CATEGORY** (task type):
- work, personal, health, fitness, shopping, errands, learning
- entertainment, social, family, self-care, finance, household

**PREREQUISITES** (what's needed):
- internet, phone, computer, laptop, tools, transportation
- other-people, specific-app, physical-materials, booking-required

**CONTEXT** (environmental needs):
- quiet-needed, active, collaborative, solo, urgent, flexible
- indoors, outdoors, private, public, focus-required

**TOOLS** (specific tools needed):
- smartphone, laptop, desktop, pen-paper, specific-software
- physical-tools, kitchen, gym-equipment, vehicle

**PEOPLE** (social context):
- solo, with-family, with-friends, with-colleagues, with-partner
- service-provider, group-activity, networking

**WEATHER** (weather dependency):
- indoor-only, outdoor-preferred, weather-dependent, any-weather
- sunny-preferred, temperature-sensitive

**OTHER** (other relevant factors):
- batch-with-similar, preparation-needed, follow-up-required
- deadline-driven, habit-building, one-time, recurring

**IMPORTANT**: The "category" field MUST be one of these exact values (lowercase):
- location
- time
- energy
- duration
- mood
- category
- prerequisites
- context
- tools
- people
- weather
- other

Generate AT LEAST 6-10 labels per task, with confidence scores (0.0-1.0).
Consider: task priority, due date, time of day, user location, and any external factors.

Return JSON in this exact format:
{
  "labels": [
    {
      "label_name": "string (lowercase, hyphenated)",
      "category": "string (MUST be one of the exact values listed above)",
      "confidence": float (0.0-1.0),
      "reasoning": "string (brief explanation)"
    }
  ],
  "summary": "string (brief analysis summary)",
  "external_factors_considered": ["string array of factors you considered"]
}`

// buildUserPrompt renders the task, its urgency, the optional user context,
// and the current wall-clock context into the labeling prompt.
func buildUserPrompt(task storage.Task, userCtx *UserContext, now time.Time) string {
	var parts []string

	parts = append(parts, "**TASK TO LABEL:**", "Title: "+task.Title)
	if task.Description != "" {
		parts = append(parts, "Description: "+task.Description)
	}
	parts = append(parts, "Priority: "+string(task.Priority))

	if task.DueDate != nil {
		parts = append(parts, "Due Date: "+task.DueDate.UTC().Format(time.RFC3339))
		parts = append(parts, urgencyLine(*task.DueDate, now))
	}

	if userCtx != nil {
		parts = append(parts, "", "**USER CONTEXT:**")
		if userCtx.Timezone != "" {
			parts = append(parts, "Timezone: "+userCtx.Timezone)
		}
		if userCtx.Location != "" {
			parts = append(parts, "Location: "+userCtx.Location)
		}
		if len(userCtx.Preferences) > 0 {
			prefs, _ := json.Marshal(userCtx.Preferences)
			parts = append(parts, "Preferences: "+string(prefs))
		}
	}

	parts = append(parts,
		"",
		"**CURRENT CONTEXT:**",
		"Current Time (UTC): "+now.UTC().Format("2006-01-02 15:04"),
		"Day of Week: "+now.UTC().Weekday().String(),
		"Time of Day: "+dayPart(now.UTC()),
	)

	parts = append(parts,
		"",
		"**INSTRUCTIONS:**",
		"Generate comprehensive labels (minimum 6) that will help determine the best time and context to complete this task.",
		"Consider all external factors that might affect task completion.",
		"Return ONLY valid JSON in the specified format.",
	)

	return strings.Join(parts, "\n")
}

// urgencyLine buckets the due date relative to now: overdue, due today,
// due within 3 days, or due later.
func urgencyLine(due, now time.Time) string {
	days := int(due.Sub(now).Hours() / 24)
	switch {
	case days < 0:
		return fmt.Sprintf("OVERDUE by %d days", -days)
	case days == 0:
		return "DUE TODAY"
	case days <= 3:
		return fmt.Sprintf("Due in %d days (urgent)", days)
	default:
		return fmt.Sprintf("Due in %d days", days)
	}
}

// dayPart buckets the hour into one of 7 day-part categories.
func dayPart(t time.Time) string {
	switch hour := t.Hour(); {
	case hour >= 5 && hour < 8:
		return "early-morning"
	case hour >= 8 && hour < 12:
		return "morning"
	case hour >= 12 && hour < 14:
		return "midday"
	case hour >= 14 && hour < 17:
		return "afternoon"
	case hour >= 17 && hour < 21:
		return "evening"
	case hour >= 21:
		return "night"
	default:
		return "late-night"
	}
}
