package rag

import (
	"regexp"
	"strings"
)

// Regexes matching spec.md §4.5 step 12's PHI-leak patterns. Applied
// to the synthesized answer AFTER the LLM call, never before, so the
// model sees the real context but the caller never sees raw contact
// details echoed back.
var (
	phoneRe = regexp.MustCompile(`0\d{1,2}-?\d{7,8}`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	idRe    = regexp.MustCompile(`\b\d{9}\b`)
)

// redactPHI replaces Israeli phone numbers, email addresses, and
// 9-digit national-id-shaped numbers with placeholder tokens.
func redactPHI(text string) string {
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = idRe.ReplaceAllString(text, "[ID]")
	return text
}

// truncateWords approximates a max_tokens budget by word count
// (spec.md §4.5 step 12).
func truncateWords(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) <= maxWords {
		return text
	}
	return strings.Join(words[:maxWords], " ")
}
