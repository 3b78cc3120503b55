package rag

import "strings"

// shortQueryWordThreshold is the length-based trigger spec.md §4.5
// step 4 names: queries at or below this many words are treated as
// short/generic and eligible for threshold relaxation and expansion.
const shortQueryWordThreshold = 3

// adaptiveMinSimilarityFloor is the lowest min_similarity the adaptive
// threshold step will relax toward for a short query.
const adaptiveMinSimilarityFloor = 0.15

// ExpansionTable is a data-driven table of trigger term → related
// clinical terms to append, keyed case-insensitively. One table holds
// both the English and the Hebrew triggers; lookup does not depend on
// the detected language (spec.md §4.5 step 4: "a configuration table of
// expansion terms"). Loaded from internal/config.RAGConfig.QueryExpansion
// at wiring time; defaults here cover the common short clinical
// queries the original system's test fixtures exercise.
type ExpansionTable map[string][]string

func defaultExpansionTable() ExpansionTable {
	return ExpansionTable{
		"pain":       {"discomfort", "tenderness", "ache"},
		"back":       {"lumbar", "spine", "posture"},
		"knee":       {"joint", "patella", "mobility"},
		"shoulder":   {"rotator cuff", "range of motion"},
		"headache":   {"migraine", "tension"},
		"כאב":        {"אי נוחות", "רגישות"},
		"גב":         {"עמוד שדרה", "יציבה"},
		"ברך":        {"מפרק", "ניידות"},
	}
}

// adaptThreshold applies spec.md §4.5 step 4: for a short/generic
// query it may lower min_similarity toward the configured floor and
// may expand the query text by appending related terms the trigger
// table matches. Both decisions are independent of one another.
func adaptThreshold(queryText string, minSimilarity float64, table ExpansionTable) (expandedQuery string, adjustedMinSimilarity float64) {
	expandedQuery = queryText
	adjustedMinSimilarity = minSimilarity

	words := strings.Fields(queryText)
	if len(words) > shortQueryWordThreshold {
		return expandedQuery, adjustedMinSimilarity
	}

	if adjustedMinSimilarity > adaptiveMinSimilarityFloor {
		adjustedMinSimilarity = adaptiveMinSimilarityFloor
	}

	lower := strings.ToLower(queryText)
	var additions []string
	for term, related := range table {
		if strings.Contains(lower, strings.ToLower(term)) {
			additions = append(additions, related...)
		}
	}
	if len(additions) > 0 {
		expandedQuery = queryText + " " + strings.Join(additions, " ")
	}
	return expandedQuery, adjustedMinSimilarity
}
