package store

import (
	"sort"

	"github.com/swarmrun/swarmrun/internal/models"
)

// applySort orders turns in place according to srt. Fields that live on the
// nested tool-invocation row (status, tool_name, execution_time) compare
// turns without a tool invocation as lowest, regardless of direction.
func applySort(turns []models.Turn, srt Sort) {
	if srt.Field == "" {
		return
	}
	less := sortLess(srt.Field)
	sort.SliceStable(turns, func(i, j int) bool {
		if srt.Desc {
			return less(turns[j], turns[i])
		}
		return less(turns[i], turns[j])
	})
}

func sortLess(field SortField) func(a, b models.Turn) bool {
	switch field {
	case SortByTotalCharCount:
		return func(a, b models.Turn) bool { return a.TotalCharCount < b.TotalCharCount }
	case SortByStatus:
		return func(a, b models.Turn) bool { return toolField(a, func(i *models.ToolInvocation) string { return string(i.Status) }) < toolField(b, func(i *models.ToolInvocation) string { return string(i.Status) }) }
	case SortByToolName:
		return func(a, b models.Turn) bool { return toolField(a, func(i *models.ToolInvocation) string { return i.ToolName }) < toolField(b, func(i *models.ToolInvocation) string { return i.ToolName }) }
	case SortByExecutionTime:
		return func(a, b models.Turn) bool {
			return toolFloat(a) < toolFloat(b)
		}
	default: // SortByTurnIdx and anything unrecognised
		return func(a, b models.Turn) bool { return a.TurnIdx < b.TurnIdx }
	}
}

func toolField(t models.Turn, extract func(*models.ToolInvocation) string) string {
	if t.ToolInvocation == nil {
		return ""
	}
	return extract(t.ToolInvocation)
}

func toolFloat(t models.Turn) float64 {
	if t.ToolInvocation == nil {
		return -1
	}
	return t.ToolInvocation.ExecutionTime
}
