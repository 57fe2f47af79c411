package research

import "strings"

// extractBalancedJSON scans response for the first balanced {...} object,
// tracking brace depth the way the teacher's planner.go parses LLM output
// that is wrapped in prose or markdown fences.
func extractBalancedJSON(response string) (string, bool) {
	start := -1
	depth := 0
	for i, r := range response {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					return response[start : i+1], true
				}
			}
		}
	}
	return "", false
}

// stripCodeFence removes a leading/trailing ``` fence some models wrap
// JSON output in before extractBalancedJSON runs.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
