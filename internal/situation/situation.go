// Package situation turns a free-text user message into a structured
// interpretation of the user's current state, used to score tasks.
package situation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kalambet/whatnow/internal/llm"
)

const extractionTimeout = 15 * time.Second

// Situation is the structured interpretation of a user message. All fields
// are optional; an all-empty value means nothing could be inferred. It is
// transient and recomputed per recommendation request.
type Situation struct {
	Location          string   `json:"location"`
	TimeOfDay         string   `json:"time_of_day"`
	EnergyLevel       string   `json:"energy_level"`
	Mood              string   `json:"mood"`
	DurationAvailable string   `json:"duration_available"`
	OtherLabels       []string `json:"other_labels"`
}

// Flatten returns the situation as an ordered list of candidate label
// strings: location, time-of-day, energy, mood, duration, then other labels.
// The order is fixed so scoring output is stable.
func (s Situation) Flatten() []string {
	var out []string
	for _, v := range []string{s.Location, s.TimeOfDay, s.EnergyLevel, s.Mood, s.DurationAvailable} {
		if v != "" {
			out = append(out, v)
		}
	}
	out = append(out, s.OtherLabels...)
	return out
}

// IsEmpty reports whether nothing was extracted.
func (s Situation) IsEmpty() bool {
	return len(s.Flatten()) == 0
}

// Extractor delegates interpretation of the user message to the LLM client.
type Extractor struct {
	client llm.Client
}

// NewExtractor creates an Extractor using the given client.
func NewExtractor(client llm.Client) *Extractor {
	return &Extractor{client: client}
}

// Extract analyses the message and returns a structured Situation. On any
// failure (call error, malformed JSON) it returns the zero value — the
// recommendation flow degrades instead of failing.
func (e *Extractor) Extract(ctx context.Context, message string) Situation {
	if message == "" {
		return Situation{}
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	raw, err := e.client.Complete(ctx, llm.CompletionRequest{
		System:      extractionSystemPrompt,
		User:        buildExtractionPrompt(message),
		Temperature: 0.3,
		MaxTokens:   500,
		JSONMode:    true,
	})
	if err != nil {
		slog.Warn("situation extraction failed", "error", err)
		return Situation{}
	}

	var result Situation
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("failed to unmarshal situation from model response", "error", err, "response", raw)
		return Situation{}
	}
	return result
}
