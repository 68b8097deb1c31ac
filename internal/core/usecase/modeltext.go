package usecase

import "strings"

// extractJSONObject pulls the outermost JSON object out of free model text.
// Models wrap JSON in fenced blocks or prose often enough that callers must
// treat the result as a candidate, not a guarantee.
func extractJSONObject(raw string) string {
	cleaned := stripCodeFences(raw)
	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		return cleaned[start : end+1]
	}
	return cleaned
}

func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.Contains(trimmed, "```") {
		return trimmed
	}
	first := strings.Index(trimmed, "```")
	rest := trimmed[first+3:]
	if nl := strings.Index(rest, "\n"); nl >= 0 && len(strings.TrimSpace(rest[:nl])) <= 8 {
		// Fence language tag like ```json on its own line.
		rest = rest[nl+1:]
	}
	if closing := strings.Index(rest, "```"); closing >= 0 {
		return strings.TrimSpace(rest[:closing])
	}
	return strings.TrimSpace(rest)
}
