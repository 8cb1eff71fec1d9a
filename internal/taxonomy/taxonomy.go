// Package taxonomy defines the fixed label category set and the contract a
// machine-generated label batch must satisfy before it is persisted.
package taxonomy

import "fmt"

// Category is one of the fixed dimensions a label can describe.
type Category string

const (
	CategoryLocation      Category = "location"
	CategoryTime          Category = "time"
	CategoryEnergy        Category = "energy"
	CategoryDuration      Category = "duration"
	CategoryMood          Category = "mood"
	CategoryCategory      Category = "category"
	CategoryPrerequisites Category = "prerequisites"
	CategoryContext       Category = "context"
	CategoryTools         Category = "tools"
	CategoryPeople        Category = "people"
	CategoryWeather       Category = "weather"
	CategoryOther         Category = "other"
)

// Categories lists every valid category in declaration order.
var Categories = []Category{
	CategoryLocation, CategoryTime, CategoryEnergy, CategoryDuration,
	CategoryMood, CategoryCategory, CategoryPrerequisites, CategoryContext,
	CategoryTools, CategoryPeople, CategoryWeather, CategoryOther,
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLocation, CategoryTime, CategoryEnergy, CategoryDuration,
		CategoryMood, CategoryCategory, CategoryPrerequisites, CategoryContext,
		CategoryTools, CategoryPeople, CategoryWeather, CategoryOther:
		return true
	}
	return false
}

// GeneratedLabel is a single label produced by the model for a task. It is
// ephemeral; persistence happens through storage.Label.
type GeneratedLabel struct {
	Name       string   `json:"label_name"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Batch is the full structured output of one labeling run.
type Batch struct {
	Labels          []GeneratedLabel `json:"labels"`
	Summary         string           `json:"summary"`
	ExternalFactors []string         `json:"external_factors_considered"`
}

// Batch contract: a labeling run is only accepted when the model produced a
// reasonably complete analysis.
const (
	MinLabels     = 6
	MinCategories = 3
)

// ValidationError describes why a generated batch was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "label batch validation failed: " + e.Reason
}

// Validate checks the batch contract: at least MinLabels labels spanning at
// least MinCategories distinct valid categories, every confidence in [0,1].
func Validate(b Batch) error {
	if len(b.Labels) < MinLabels {
		return &ValidationError{Reason: fmt.Sprintf("got %d labels, need at least %d", len(b.Labels), MinLabels)}
	}

	seen := make(map[Category]struct{})
	for _, l := range b.Labels {
		if l.Name == "" {
			return &ValidationError{Reason: "label with empty name"}
		}
		if !l.Category.Valid() {
			return &ValidationError{Reason: fmt.Sprintf("unknown category %q for label %q", l.Category, l.Name)}
		}
		if l.Confidence < 0 || l.Confidence > 1 {
			return &ValidationError{Reason: fmt.Sprintf("confidence %.3f out of range for label %q", l.Confidence, l.Name)}
		}
		seen[l.Category] = struct{}{}
	}

	if len(seen) < MinCategories {
		return &ValidationError{Reason: fmt.Sprintf("labels span %d categories, need at least %d", len(seen), MinCategories)}
	}
	return nil
}
