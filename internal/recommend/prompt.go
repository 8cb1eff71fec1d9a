package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kalambet/whatnow/internal/situation"
	"github.com/kalambet/whatnow/internal/storage"
)

func buildReasoningPrompt(task storage.Task, sit situation.Situation, matching []string) string {
	sitJSON, _ := json.Marshal(sit)
	return fmt.Sprintf(`Explain in one sentence why this task is a good match for the user's current situation.

Task: %s
User Context: %s
Matching Labels: %s

Write a brief, friendly explanation.`, task.Title, sitJSON, strings.Join(matching, ", "))
}

// fallbackReasoning is the templated justification used when the model call
// fails; a recommendation is never dropped over a missing explanation.
func fallbackReasoning(matching []string) string {
	return "This task matches your context with labels: " + strings.Join(matching, ", ")
}

const suggestionSystemPrompt = `You suggest new tasks that fit the user's current situation. Given the structured context, propose tasks the user could add to their list and do right now.

Return ONLY valid JSON in this format:
{
  "suggestions": [
    {
      "title": "string (short task title)",
      "description": "string (one sentence)",
      "priority": "string (low, medium, high, urgent)",
      "reasoning": "string (why this fits the current situation)"
    }
  ]
}

Suggest at most 3 tasks.`

func buildSuggestionPrompt(message string, sit situation.Situation) string {
	sitJSON, _ := json.Marshal(sit)
	return fmt.Sprintf("User said: %q\nExtracted context: %s\n\nSuggest up to 3 new tasks that fit this situation.", message, sitJSON)
}

func buildSummaryPrompt(message string, sit situation.Situation, count int) string {
	sitJSON, _ := json.Marshal(sit)
	return fmt.Sprintf(`Generate a friendly, brief response to the user based on their message and the recommended tasks.

User said: %q
Extracted context: %s
Number of recommendations: %d

Write a natural, encouraging response (2-3 sentences max) that acknowledges their situation and introduces the recommendations.`, message, sitJSON, count)
}

func fallbackSummary(count int) string {
	if count == 0 {
		return "I couldn't find any tasks that match your current context. Try describing your situation differently, or add more tasks to your list!"
	}
	return fmt.Sprintf("Based on how you're feeling, I found %d task(s) that might be perfect for you right now!", count)
}
