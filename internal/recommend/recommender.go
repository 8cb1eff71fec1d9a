// Package recommend scores a user's tasks against their described situation
// and assembles the full recommendation response: ranked tasks with
// justifications, generated task suggestions, and a conversational summary.
// Every model-dependent step degrades to a templated output on failure; the
// response itself is always produced.
package recommend

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/whatnow/internal/llm"
	"github.com/kalambet/whatnow/internal/situation"
	"github.com/kalambet/whatnow/internal/storage"
)

const (
	defaultTopK = 3
	maxTopK     = 10

	maxSuggestions       = 3
	reasoningConcurrency = 3
)

// Recommendation is one ranked task in the response.
type Recommendation struct {
	TaskID         string   `json:"task_id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Priority       string   `json:"priority"`
	MatchScore     float64  `json:"match_score"`
	MatchingLabels []string `json:"matching_labels"`
	Reasoning      string   `json:"reasoning"`
}

// Suggestion is a generated brand-new task idea seeded with the situation.
type Suggestion struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Reasoning   string `json:"reasoning"`
}

// Response is the complete recommendation payload.
type Response struct {
	UserContext     situation.Situation `json:"user_context"`
	Recommendations []Recommendation    `json:"recommendations"`
	Suggestions     []Suggestion        `json:"suggestions"`
	Message         string              `json:"message"`
}

// SituationExtractor converts the raw message into a structured situation.
type SituationExtractor interface {
	Extract(ctx context.Context, message string) situation.Situation
}

// CandidateSource lists the tasks eligible for scoring.
type CandidateSource interface {
	ListActiveLabeledTasks(userID string) ([]storage.LabeledTask, error)
}

// Recommender orchestrates extraction, scoring, ranking, and generation.
type Recommender struct {
	extractor SituationExtractor
	store     CandidateSource
	client    llm.Client
}

// NewRecommender wires the orchestrator.
func NewRecommender(extractor SituationExtractor, store CandidateSource, client llm.Client) *Recommender {
	return &Recommender{extractor: extractor, store: store, client: client}
}

// Recommend produces the ranked response for the user's message. topK is
// clamped to [1, 10]; zero or negative values use the default of 3. Only the
// candidate listing can fail; every model step degrades instead.
func (r *Recommender) Recommend(ctx context.Context, userID, message string, topK int) (Response, error) {
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	sit := r.extractor.Extract(ctx, message)

	candidates, err := r.store.ListActiveLabeledTasks(userID)
	if err != nil {
		return Response{}, err
	}

	scored := rank(candidates, sit, topK)

	recs := make([]Recommendation, len(scored))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(reasoningConcurrency)
	for i, sc := range scored {
		g.Go(func() error {
			recs[i] = Recommendation{
				TaskID:         sc.task.ID,
				Title:          sc.task.Title,
				Description:    sc.task.Description,
				Priority:       string(sc.task.Priority),
				MatchScore:     sc.result.Score,
				MatchingLabels: sc.result.MatchingLabels,
				Reasoning:      r.reasoning(gCtx, sc.task, sit, sc.result.MatchingLabels),
			}
			return nil
		})
	}
	g.Wait()

	return Response{
		UserContext:     sit,
		Recommendations: recs,
		Suggestions:     r.suggestions(ctx, message, sit),
		Message:         r.summary(ctx, message, sit, len(recs)),
	}, nil
}

type scoredTask struct {
	task   storage.Task
	result MatchResult
}

// rank scores every candidate, discards zero scores, and returns the topK in
// descending score order. The sort is stable so equal scores keep candidate
// listing order.
func rank(candidates []storage.LabeledTask, sit situation.Situation, topK int) []scoredTask {
	var scored []scoredTask
	for _, c := range candidates {
		result := Match(c.Labels, sit)
		if result.Score <= 0 {
			continue
		}
		scored = append(scored, scoredTask{task: c.Task, result: result})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].result.Score > scored[j].result.Score
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

// reasoning asks the model for a one-sentence justification, falling back to
// a templated sentence so a recommendation is never dropped.
func (r *Recommender) reasoning(ctx context.Context, task storage.Task, sit situation.Situation, matching []string) string {
	text, err := r.client.Complete(ctx, llm.CompletionRequest{
		User:        buildReasoningPrompt(task, sit, matching),
		Temperature: 0.7,
		MaxTokens:   100,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			slog.Warn("reasoning generation failed, using fallback", "task_id", task.ID, "error", err)
		}
		return fallbackReasoning(matching)
	}
	return strings.TrimSpace(text)
}

type suggestionPayload struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// suggestions asks the model for up to 3 new task ideas. Any failure yields
// an empty list; the feature is optional.
func (r *Recommender) suggestions(ctx context.Context, message string, sit situation.Situation) []Suggestion {
	raw, err := r.client.Complete(ctx, llm.CompletionRequest{
		System:      suggestionSystemPrompt,
		User:        buildSuggestionPrompt(message, sit),
		Temperature: 0.8,
		MaxTokens:   500,
		JSONMode:    true,
	})
	if err != nil {
		slog.Warn("suggestion generation failed", "error", err)
		return nil
	}

	var payload suggestionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		slog.Warn("failed to unmarshal suggestions", "error", err)
		return nil
	}
	if len(payload.Suggestions) > maxSuggestions {
		payload.Suggestions = payload.Suggestions[:maxSuggestions]
	}
	return payload.Suggestions
}

// summary composes the conversational response message with a templated
// fallback; delivery is never blocked on it.
func (r *Recommender) summary(ctx context.Context, message string, sit situation.Situation, count int) string {
	if count == 0 {
		return fallbackSummary(0)
	}

	text, err := r.client.Complete(ctx, llm.CompletionRequest{
		User:        buildSummaryPrompt(message, sit, count),
		Temperature: 0.8,
		MaxTokens:   150,
	})
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil {
			slog.Warn("summary generation failed, using fallback", "error", err)
		}
		return fallbackSummary(count)
	}
	return strings.TrimSpace(text)
}
