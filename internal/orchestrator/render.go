package orchestrator

import (
	"fmt"
	"strings"

	"github.com/andywolf/beadbridge/internal/resolver"
)

// RenderDiagram produces a mermaid progress diagram for the aggregate.
// The output is treated as an opaque string by everything downstream.
func RenderDiagram(agg *resolver.Aggregate) string {
	var sb strings.Builder
	sb.WriteString("pie title Progress\n")
	sb.WriteString(fmt.Sprintf("    \"Completed\" : %d\n", agg.Metrics.Completed))
	sb.WriteString(fmt.Sprintf("    \"In progress\" : %d\n", agg.Metrics.InProgress))
	sb.WriteString(fmt.Sprintf("    \"Blocked\" : %d\n", agg.Metrics.Blocked))
	sb.WriteString(fmt.Sprintf("    \"Not started\" : %d\n", agg.Metrics.NotStarted))
	return sb.String()
}

// RenderSummary produces the markdown progress summary posted as the bridge
// comment body.
func RenderSummary(agg *resolver.Aggregate) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("### Progress: %d%%\n\n", agg.Metrics.PercentComplete))
	sb.WriteString(fmt.Sprintf("Tracking `%s`", agg.Ref))
	if len(agg.Epics) > 0 {
		parts := make([]string, 0, len(agg.Epics))
		for _, epic := range agg.Epics {
			parts = append(parts, fmt.Sprintf("%s/%s", epic.Repository, epic.EpicID))
		}
		sb.WriteString(" via " + strings.Join(parts, ", "))
	}
	sb.WriteString("\n\n")

	sb.WriteString("| Total | Completed | In progress | Blocked | Not started |\n")
	sb.WriteString("|---|---|---|---|---|\n")
	sb.WriteString(fmt.Sprintf("| %d | %d | %d | %d | %d |\n",
		agg.Metrics.Total, agg.Metrics.Completed, agg.Metrics.InProgress,
		agg.Metrics.Blocked, agg.Metrics.NotStarted))

	if len(agg.Metrics.Blockers) > 0 {
		sb.WriteString("\n**Blocked:**\n")
		for _, blocker := range agg.Metrics.Blockers {
			sb.WriteString("- " + blocker + "\n")
		}
	}
	if len(agg.Metrics.Discovered) > 0 {
		sb.WriteString("\n**Discovered during work:**\n")
		for _, found := range agg.Metrics.Discovered {
			sb.WriteString("- " + found + "\n")
		}
	}

	sb.WriteString("\n```mermaid\n")
	sb.WriteString(RenderDiagram(agg))
	sb.WriteString("```\n")

	return sb.String()
}
