package labeling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/whatnow/internal/storage"
	"github.com/kalambet/whatnow/internal/taxonomy"
	"github.com/kalambet/whatnow/internal/vector"
)

const (
	embedAttempts     = 3
	embedBackoffBase  = 2 * time.Second
	embedBackoffCap   = 10 * time.Second
	highConfidence    = 0.7
	metadataDescLimit = 500
	embeddingVersion  = "v1"
)

// TextEmbedder generates an embedding for a text.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingRecorder persists the vector reference on the task.
type EmbeddingRecorder interface {
	SetTaskEmbedding(taskID, vectorID, model, version string) error
}

// Syncer projects a labeled task into the vector store. Failures here never
// affect the labeling outcome; the caller decides how to degrade.
type Syncer struct {
	embedder   TextEmbedder
	vectors    vector.Store
	store      EmbeddingRecorder
	namespace  string
	embedModel string
	sleep      func(time.Duration)
}

// NewSyncer creates a Syncer writing into the given namespace.
func NewSyncer(embedder TextEmbedder, vectors vector.Store, store EmbeddingRecorder, namespace, embedModel string) *Syncer {
	if namespace == "" {
		namespace = "default"
	}
	return &Syncer{
		embedder:   embedder,
		vectors:    vectors,
		store:      store,
		namespace:  namespace,
		embedModel: embedModel,
		sleep:      time.Sleep,
	}
}

// Sync embeds a canonical text summary of the task and upserts it into the
// vector store under a stable per-task vector ID. Transient embedding
// failures are retried with bounded exponential backoff; exhaustion
// propagates to the caller.
func (s *Syncer) Sync(ctx context.Context, task storage.Task, batch taxonomy.Batch) (string, error) {
	vectorID := task.VectorID
	if vectorID == "" {
		vectorID = fmt.Sprintf("task_%s_%s", task.ID, uuid.New().String()[:8])
	}

	vec, err := s.embedWithRetry(ctx, buildTaskText(task, batch.Labels))
	if err != nil {
		return "", err
	}

	if err := s.vectors.EnsureIndex(); err != nil {
		return "", err
	}
	if err := s.vectors.Upsert(vectorID, vec, buildMetadata(task, batch.Labels), s.namespace); err != nil {
		return "", fmt.Errorf("upserting task vector: %w", err)
	}

	if err := s.store.SetTaskEmbedding(task.ID, vectorID, s.embedModel, embeddingVersion); err != nil {
		return "", fmt.Errorf("recording embedding reference: %w", err)
	}
	return vectorID, nil
}

func (s *Syncer) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	backoff := embedBackoffBase
	for attempt := 0; attempt < embedAttempts; attempt++ {
		if attempt > 0 {
			s.sleep(backoff)
			backoff *= 2
			if backoff > embedBackoffCap {
				backoff = embedBackoffCap
			}
		}
		vec, err := s.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("embedding task after %d attempts: %w", embedAttempts, lastErr)
}

// buildTaskText composes the canonical text representation used for the
// embedding: task fields plus every label with its category.
func buildTaskText(task storage.Task, labels []taxonomy.GeneratedLabel) string {
	parts := []string{"Title: " + task.Title}

	if task.Description != "" {
		parts = append(parts, "Description: "+task.Description)
	}
	parts = append(parts,
		"Priority: "+string(task.Priority),
		"Status: "+string(task.Status),
	)
	if task.DueDate != nil {
		parts = append(parts, "Due: "+task.DueDate.UTC().Format(time.RFC3339))
	}

	if len(labels) > 0 {
		labelTexts := make([]string, len(labels))
		for i, l := range labels {
			labelTexts[i] = fmt.Sprintf("%s (%s)", l.Name, l.Category)
		}
		parts = append(parts, "Labels: "+strings.Join(labelTexts, ", "))
	}

	return strings.Join(parts, " | ")
}

// buildMetadata composes the metadata document stored next to the vector:
// task identity fields, label names grouped by category, and the names of
// high-confidence labels.
func buildMetadata(task storage.Task, labels []taxonomy.GeneratedLabel) map[string]any {
	meta := map[string]any{
		"task_id":    task.ID,
		"user_id":    task.UserID,
		"title":      task.Title,
		"priority":   string(task.Priority),
		"status":     string(task.Status),
		"created_at": task.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": task.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if task.Description != "" {
		meta["description"] = truncate(task.Description, metadataDescLimit)
	}
	if task.DueDate != nil {
		meta["due_date"] = task.DueDate.UTC().Format(time.RFC3339)
	}

	if len(labels) > 0 {
		byCategory := make(map[string][]string)
		var highConf []string
		for _, l := range labels {
			cat := string(l.Category)
			byCategory[cat] = append(byCategory[cat], l.Name)
			if l.Confidence >= highConfidence {
				highConf = append(highConf, l.Name)
			}
		}
		meta["labels"] = byCategory
		meta["high_confidence_labels"] = highConf
	}

	return meta
}
