package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pazpaz/backend/internal/models"
)

func TestChangedSectionsDetectsMultipleFields(t *testing.T) {
	current := models.Session{Subjective: "a", Objective: "b", Assessment: "c", Plan: "d"}
	changed := changedSections(current, "a", "b2", "c2", "d")
	assert.Equal(t, []string{"objective", "assessment"}, changed)
}

func TestChangedSectionsNoneChanged(t *testing.T) {
	current := models.Session{Subjective: "a", Objective: "b", Assessment: "c", Plan: "d"}
	changed := changedSections(current, "a", "b", "c", "d")
	assert.Empty(t, changed)
}
