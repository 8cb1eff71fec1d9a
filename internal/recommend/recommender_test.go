package recommend

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/whatnow/internal/llm"
	"github.com/kalambet/whatnow/internal/situation"
	"github.com/kalambet/whatnow/internal/storage"
)

type fixedExtractor struct {
	sit situation.Situation
}

func (f *fixedExtractor) Extract(ctx context.Context, message string) situation.Situation {
	return f.sit
}

type fakeCandidates struct {
	tasks []storage.LabeledTask
	err   error
}

func (f *fakeCandidates) ListActiveLabeledTasks(userID string) ([]storage.LabeledTask, error) {
	return f.tasks, f.err
}

// fakeClient answers JSON-mode calls with the suggestion payload and plain
// calls with a fixed text; err fails everything.
type fakeClient struct {
	text        string
	suggestions string
	err         error
}

func (f *fakeClient) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if req.JSONMode {
		return f.suggestions, nil
	}
	return f.text, nil
}

func (f *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func candidate(id string, labelNames ...string) storage.LabeledTask {
	t := storage.Task{ID: id, Title: "task " + id, Priority: storage.PriorityMedium}
	var labels []storage.Label
	for _, n := range labelNames {
		labels = append(labels, storage.Label{Name: n, Confidence: 0.9})
	}
	return storage.LabeledTask{Task: t, Labels: labels}
}

func TestRecommend_RanksAndLimits(t *testing.T) {
	sit := situation.Situation{Location: "home", TimeOfDay: "evening"}
	candidates := []storage.LabeledTask{
		candidate("a", "home"),            // partial coverage
		candidate("b", "home", "evening"), // full coverage, highest
		candidate("c", "office"),          // zero score, dropped
		candidate("d", "evening"),         // partial coverage
	}

	r := NewRecommender(
		&fixedExtractor{sit: sit},
		&fakeCandidates{tasks: candidates},
		&fakeClient{text: "because it fits", suggestions: `{"suggestions":[]}`},
	)

	resp, err := r.Recommend(context.Background(), "u1", "at home in the evening", 2)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}

	if len(resp.Recommendations) != 2 {
		t.Fatalf("len(Recommendations) = %d, want 2", len(resp.Recommendations))
	}
	if resp.Recommendations[0].TaskID != "b" {
		t.Errorf("top recommendation = %s, want b", resp.Recommendations[0].TaskID)
	}
	for _, rec := range resp.Recommendations {
		if rec.TaskID == "c" {
			t.Error("zero-score task c was recommended")
		}
		if rec.MatchScore <= 0 {
			t.Errorf("task %s has non-positive score %v", rec.TaskID, rec.MatchScore)
		}
		if rec.Reasoning != "because it fits" {
			t.Errorf("task %s reasoning = %q, want model text", rec.TaskID, rec.Reasoning)
		}
	}
	if !reflect.DeepEqual(resp.UserContext, sit) {
		t.Errorf("UserContext = %+v, want %+v", resp.UserContext, sit)
	}
}

func TestRecommend_TopKClamped(t *testing.T) {
	sit := situation.Situation{Location: "home"}
	var candidates []storage.LabeledTask
	for i := 0; i < 15; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("t%d", i), "home"))
	}

	r := NewRecommender(
		&fixedExtractor{sit: sit},
		&fakeCandidates{tasks: candidates},
		&fakeClient{text: "ok", suggestions: `{"suggestions":[]}`},
	)

	resp, err := r.Recommend(context.Background(), "u1", "home", 50)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Recommendations) != 10 {
		t.Errorf("len(Recommendations) with top_k=50 = %d, want 10", len(resp.Recommendations))
	}

	resp, err = r.Recommend(context.Background(), "u1", "home", 0)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Recommendations) != 3 {
		t.Errorf("len(Recommendations) with top_k=0 = %d, want default 3", len(resp.Recommendations))
	}
}

func TestRecommend_DegradesToFallbacks(t *testing.T) {
	sit := situation.Situation{Location: "home"}
	r := NewRecommender(
		&fixedExtractor{sit: sit},
		&fakeCandidates{tasks: []storage.LabeledTask{candidate("a", "home")}},
		&fakeClient{err: errors.New("model down")},
	)

	resp, err := r.Recommend(context.Background(), "u1", "home", 3)
	if err != nil {
		t.Fatalf("Recommend() error = %v, want degraded response", err)
	}

	if len(resp.Recommendations) != 1 {
		t.Fatalf("len(Recommendations) = %d, want 1", len(resp.Recommendations))
	}
	if !strings.Contains(resp.Recommendations[0].Reasoning, "This task matches your context") {
		t.Errorf("reasoning = %q, want templated fallback", resp.Recommendations[0].Reasoning)
	}
	if resp.Suggestions != nil {
		t.Errorf("Suggestions = %v, want nil when generation fails", resp.Suggestions)
	}
	if !strings.Contains(resp.Message, "1 task(s)") {
		t.Errorf("Message = %q, want templated fallback summary", resp.Message)
	}
}

func TestRecommend_NoCandidates(t *testing.T) {
	r := NewRecommender(
		&fixedExtractor{sit: situation.Situation{Location: "home"}},
		&fakeCandidates{},
		&fakeClient{text: "unused", suggestions: `{"suggestions":[]}`},
	)

	resp, err := r.Recommend(context.Background(), "u1", "home", 3)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Recommendations) != 0 {
		t.Errorf("len(Recommendations) = %d, want 0", len(resp.Recommendations))
	}
	if !strings.Contains(resp.Message, "couldn't find any tasks") {
		t.Errorf("Message = %q, want empty-result summary", resp.Message)
	}
}

func TestRecommend_StoreErrorPropagates(t *testing.T) {
	r := NewRecommender(
		&fixedExtractor{sit: situation.Situation{Location: "home"}},
		&fakeCandidates{err: errors.New("db locked")},
		&fakeClient{},
	)

	if _, err := r.Recommend(context.Background(), "u1", "home", 3); err == nil {
		t.Fatal("Recommend() = nil error, want store error")
	}
}

func TestRecommend_SuggestionsCapped(t *testing.T) {
	payload := `{"suggestions":[
		{"title":"a"},{"title":"b"},{"title":"c"},{"title":"d"},{"title":"e"}
	]}`
	r := NewRecommender(
		&fixedExtractor{sit: situation.Situation{Location: "home"}},
		&fakeCandidates{tasks: []storage.LabeledTask{candidate("a", "home")}},
		&fakeClient{text: "ok", suggestions: payload},
	)

	resp, err := r.Recommend(context.Background(), "u1", "home", 3)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(resp.Suggestions) != 3 {
		t.Errorf("len(Suggestions) = %d, want capped at 3", len(resp.Suggestions))
	}
}
