package api

import (
	"net/http"
)

func handleTaskStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.GetTaskStats(requestUserID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute task stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total":       stats.Total,
			"active":      stats.Active,
			"by_status":   stats.ByStatus,
			"by_priority": stats.ByPriority,
		})
	}
}

type labelCountView struct {
	LabelName     string  `json:"label_name"`
	Category      string  `json:"category"`
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

func handleLabelStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.GetLabelStats(requestUserID(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute label stats: %v", err)
			return
		}

		mostCommon := make([]labelCountView, len(stats.MostCommon))
		for i, lc := range stats.MostCommon {
			mostCommon[i] = labelCountView{
				LabelName:     lc.Name,
				Category:      lc.Category,
				Count:         lc.Count,
				AvgConfidence: lc.AvgConfidence,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_labels":       stats.TotalLabels,
			"by_category":        stats.ByCategory,
			"most_common_labels": mostCommon,
		})
	}
}
