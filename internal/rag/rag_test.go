package rag

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/pazpaz/backend/internal/models"
	"github.com/pazpaz/backend/internal/vector"
)

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "en", detectLanguage("lower back pain"))
	assert.Equal(t, "he", detectLanguage("כאב גב תחתון"))
}

func TestAdaptThresholdRelaxesShortQueryAndExpands(t *testing.T) {
	table := defaultExpansionTable()
	expanded, adjusted := adaptThreshold("back pain", 0.6, table)
	assert.Less(t, adjusted, 0.6)
	assert.Contains(t, expanded, "lumbar")
}

func TestAdaptThresholdLeavesLongQueryUnchanged(t *testing.T) {
	table := defaultExpansionTable()
	expanded, adjusted := adaptThreshold("what treatment plan did we discuss for the shoulder last month", 0.6, table)
	assert.Equal(t, 0.6, adjusted)
	assert.Equal(t, "what treatment plan did we discuss for the shoulder last month", expanded)
}

func TestRedactPHIReplacesPatterns(t *testing.T) {
	text := "Call 052-1234567 or email jane@example.com, id 123456789."
	redacted := redactPHI(text)
	assert.Contains(t, redacted, "[PHONE]")
	assert.Contains(t, redacted, "[EMAIL]")
	assert.Contains(t, redacted, "[ID]")
	assert.NotContains(t, redacted, "jane@example.com")
}

func TestTruncateWordsRespectsLimit(t *testing.T) {
	text := "one two three four five"
	assert.Equal(t, "one two three", truncateWords(text, 3))
	assert.Equal(t, text, truncateWords(text, 10))
}

func TestTemporalWeightDecaysWithAge(t *testing.T) {
	now := time.Now()
	recent := temporalWeight(now, now)
	old := temporalWeight(now.Add(-35*24*time.Hour), now)
	assert.InDelta(t, 1.0, recent, 0.001)
	assert.InDelta(t, 0.5, old, 0.02)
}

func TestBestPerSessionKeepsHighestSimilarityField(t *testing.T) {
	sessionID := uuid.New()
	matches := []vector.SessionMatch{
		{Vector: models.SessionVector{SessionID: sessionID, FieldName: "subjective"}, Similarity: 0.4},
		{Vector: models.SessionVector{SessionID: sessionID, FieldName: "assessment"}, Similarity: 0.8},
	}
	best, ids := bestPerSession(matches)
	assert.Len(t, ids, 1)
	assert.Equal(t, "assessment", best[sessionID].Vector.FieldName)
}

func TestFirstHexTruncatesTo16Chars(t *testing.T) {
	h := firstHex([32]byte{0xab, 0xcd}, 16)
	assert.Len(t, h, 16)
	assert.Equal(t, "abcd000000000000", h)
}
