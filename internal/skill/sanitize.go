package skill

import "strings"

// maxOutputLen bounds any single skill's sanitized output before it re-enters
// model context. Applied by SanitizeExternalText; skills returning small,
// already-bounded structured data (e.g. recall) don't need it.
const maxOutputLen = 8000

// SanitizeExternalText cleans untrusted text pulled from outside the agent
// (web pages, fetched URLs, PDF extraction, RAG chunks) before it is handed
// back to the model as a skill result. It reuses the same control-character
// and HTML-tag stripping as SanitizeMemory but does not reject on injection
// patterns — external content legitimately contains instructional language
// (a recipe page saying "ignore the crust if you prefer") and the model,
// not the skill layer, is responsible for treating tool output as data
// rather than instructions. It only truncates and strips what could break
// the surrounding chat transport.
func SanitizeExternalText(content string) string {
	cleaned := ctrlCharsPattern.ReplaceAllString(content, "")
	cleaned = htmlTagPattern.ReplaceAllString(cleaned, "")
	cleaned = excessSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) > maxOutputLen {
		cleaned = cleaned[:maxOutputLen] + "... [truncated]"
	}
	return cleaned
}
