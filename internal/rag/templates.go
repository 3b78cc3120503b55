package rag

import "fmt"

// promptTemplates holds every language-dependent string the context
// formatter and synthesis prompt need (spec.md §4.5 steps 9-10: both
// "headers and templates are language-dependent").
type promptTemplates struct {
	clientHeader  string
	sessionHeader string
	clientBlock   string // name, matched field, similarity%, medical history, notes
	sessionBlock  string // number, client name, date, matched field, similarity%, S, O, A, P
	systemPrompt  string
	userPrompt    string // query, context
	noResults     string
	errorMessage  string
}

var english = promptTemplates{
	clientHeader:  "=== Relevant Client Profiles ===",
	sessionHeader: "=== Relevant Treatment Session Notes ===",
	clientBlock: "Client: %s\nMatched field: %s (%d%% similarity)\nMedical history: %s\nNotes: %s",
	sessionBlock: "%d. Client: %s | Date: %s | Matched field: %s (%d%% similarity)\n" +
		"Subjective: %s\nObjective: %s\nAssessment: %s\nPlan: %s",
	systemPrompt: "You are a clinical-documentation assistant for a physical-therapy practice. " +
		"Answer the practitioner's question using only the provided context. " +
		"If the context does not contain the answer, say so plainly.",
	userPrompt: "Question: %s\n\nContext:\n%s",
	noResults:  "No relevant notes were found for this query.",
	errorMessage: "The assistant could not complete this request. Please try again.",
}

var hebrew = promptTemplates{
	clientHeader:  "=== פרופילי לקוחות רלוונטיים ===",
	sessionHeader: "=== רישומי טיפול רלוונטיים ===",
	clientBlock: "לקוח: %s\nשדה מותאם: %s (%d%% התאמה)\nהיסטוריה רפואית: %s\nהערות: %s",
	sessionBlock: "%d. לקוח: %s | תאריך: %s | שדה מותאם: %s (%d%% התאמה)\n" +
		"סובייקטיבי: %s\nאובייקטיבי: %s\nהערכה: %s\nתוכנית: %s",
	systemPrompt: "אתה עוזר תיעוד קליני למרפאת פיזיותרפיה. " +
		"ענה על שאלת המטפל תוך שימוש אך ורק בהקשר שניתן. " +
		"אם ההקשר אינו מכיל תשובה, ציין זאת במפורש.",
	userPrompt: "שאלה: %s\n\nהקשר:\n%s",
	noResults:  "לא נמצאו רישומים רלוונטיים לשאילתה זו.",
	errorMessage: "לא ניתן היה להשלים את הבקשה. נסה שוב מאוחר יותר.",
}

func templatesFor(language string) promptTemplates {
	if language == "he" {
		return hebrew
	}
	return english
}

func systemPrompt(language string) string { return templatesFor(language).systemPrompt }

func userPrompt(language, query, formattedContext string) string {
	t := templatesFor(language)
	return fmt.Sprintf(t.userPrompt, query, formattedContext)
}

func localizedNoResultsMessage(language string) string { return templatesFor(language).noResults }

func localizedErrorMessage(language string) string { return templatesFor(language).errorMessage }
