package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// jsonArrayPattern finds the outermost JSON array in a model reply, which may
// be wrapped in prose or a fenced code block.
var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*\]`)

// criticalSectionPattern isolates the CRITICAL section of a review, up to the
// next section heading.
var criticalSectionPattern = regexp.MustCompile(`(?is)CRITICAL.*?(?:IMPORTANT|NICE TO HAVE|STRENGTHS|\z)`)

// listItemPattern matches one bullet or numbered list line.
var listItemPattern = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+\.)\s+`)

// reviewStatus classifies a critic's free-text review. Rejection and
// revision markers win over approval markers so a review that says
// "approved except for these critical gaps" is not taken as approval.
func reviewStatus(review string) string {
	lower := strings.ToLower(review)
	switch {
	case strings.Contains(lower, "rejected") || strings.Contains(lower, "major issues"):
		return "rejected"
	case strings.Contains(lower, "needs revision") || strings.Contains(lower, "critical"):
		return "needs_revision"
	case strings.Contains(lower, "approved"):
		return "approved"
	default:
		return "needs_revision"
	}
}

// countCriticalIssues counts list items in the CRITICAL section of a review.
func countCriticalIssues(review string) int {
	section := criticalSectionPattern.FindString(review)
	if section == "" {
		return 0
	}
	return len(listItemPattern.FindAllString(section, -1))
}

// extractTestCases parses the model's reply into structured test cases. When
// no JSON array can be recovered, the raw reply is preserved as a single
// placeholder case rather than dropped.
func extractTestCases(response, category string) []map[string]any {
	if match := jsonArrayPattern.FindString(response); match != "" {
		var cases []map[string]any
		if err := json.Unmarshal([]byte(match), &cases); err == nil {
			return cases
		}
	}

	return []map[string]any{{
		"test_case_id": fmt.Sprintf("TC_%s_001", strings.ToUpper(category)),
		"raw_content":  response,
		"note":         "test cases need manual parsing",
	}}
}
