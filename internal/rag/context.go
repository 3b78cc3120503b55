package rag

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pazpaz/backend/internal/models"
	"github.com/pazpaz/backend/internal/vector"
)

type sessionContext struct {
	sessionID     uuid.UUID
	clientID      uuid.UUID
	clientName    string
	date          time.Time
	matchedField  string
	rawSimilarity float64
	weightedScore float64
	soap          map[string]string
}

type clientContext struct {
	clientID       uuid.UUID
	name           string
	matchedField   string
	similarity     float64
	medicalHistory string
	notes          string
}

// bestPerSession implements spec.md §4.5 step 6: among a session's
// retrieved field vectors, keep only the highest-similarity one.
func bestPerSession(matches []vector.SessionMatch) (map[uuid.UUID]vector.SessionMatch, []uuid.UUID) {
	best := make(map[uuid.UUID]vector.SessionMatch)
	for _, m := range matches {
		current, ok := best[m.Vector.SessionID]
		if !ok || m.Similarity > current.Similarity {
			best[m.Vector.SessionID] = m
		}
	}
	ids := make([]uuid.UUID, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	return best, ids
}

func bestPerClient(matches []vector.ClientMatch) (map[uuid.UUID]vector.ClientMatch, []uuid.UUID) {
	best := make(map[uuid.UUID]vector.ClientMatch)
	for _, m := range matches {
		current, ok := best[m.Vector.ClientID]
		if !ok || m.Similarity > current.Similarity {
			best[m.Vector.ClientID] = m
		}
	}
	ids := make([]uuid.UUID, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	return best, ids
}

func clientDisplayName(c models.Client) string {
	name := c.FirstName + " " + c.LastName
	if name == " " {
		return "Unknown client"
	}
	return name
}

// buildSessionContexts hydrates, temporally weights (step 7), and
// substitutes "N/A" for any empty SOAP field (step 9) for every
// resolvable best-match session.
func buildSessionContexts(best map[uuid.UUID]vector.SessionMatch, sessions map[uuid.UUID]models.Session, clients map[uuid.UUID]models.Client) []sessionContext {
	now := time.Now()
	out := make([]sessionContext, 0, len(best))
	for id, match := range best {
		session, ok := sessions[id]
		if !ok {
			continue
		}
		client := clients[session.ClientID]
		soap := map[string]string{}
		for field, value := range session.SOAPFields() {
			if value == "" {
				soap[field] = "N/A"
			} else {
				soap[field] = value
			}
		}
		out = append(out, sessionContext{
			sessionID:     id,
			clientID:      session.ClientID,
			clientName:    clientDisplayName(client),
			date:          match.Vector.SessionDate,
			matchedField:  match.Vector.FieldName,
			rawSimilarity: match.Similarity,
			weightedScore: match.Similarity * temporalWeight(match.Vector.SessionDate, now),
			soap:          soap,
		})
	}
	return out
}

func buildClientContexts(best map[uuid.UUID]vector.ClientMatch, clients map[uuid.UUID]models.Client) []clientContext {
	out := make([]clientContext, 0, len(best))
	for id, match := range best {
		client, ok := clients[id]
		if !ok {
			continue
		}
		out = append(out, clientContext{
			clientID:       id,
			name:           clientDisplayName(client),
			matchedField:   match.Vector.FieldName,
			similarity:     match.Similarity,
			medicalHistory: valueOrNA(client.MedicalHistory),
			notes:          valueOrNA(client.Notes),
		})
	}
	return out
}

func valueOrNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func buildCitations(clientCtxs []clientContext, sessionCtxs []sessionContext) []Citation {
	citations := make([]Citation, 0, len(clientCtxs)+len(sessionCtxs))
	for _, c := range clientCtxs {
		citations = append(citations, Citation{
			EntityType:   "client",
			EntityID:     c.clientID,
			DisplayName:  c.name,
			Similarity:   c.similarity,
			MatchedField: c.matchedField,
		})
	}
	chronological := append([]sessionContext(nil), sessionCtxs...)
	sort.Slice(chronological, func(i, j int) bool { return chronological[i].date.Before(chronological[j].date) })
	for _, s := range chronological {
		date := s.date
		citations = append(citations, Citation{
			EntityType:   "session",
			EntityID:     s.sessionID,
			DisplayName:  s.clientName,
			Date:         &date,
			Similarity:   s.rawSimilarity,
			MatchedField: s.matchedField,
		})
	}
	return citations
}

// formatContext builds the two-section context block spec.md §4.5
// step 9 describes: client profiles first, then session notes
// numbered by chronological session date ascending.
func formatContext(language string, clientCtxs []clientContext, sessionCtxs []sessionContext) string {
	t := templatesFor(language)
	var b []byte
	b = append(b, t.clientHeader+"\n\n"...)
	for _, c := range clientCtxs {
		b = append(b, fmt.Sprintf(t.clientBlock,
			c.name, c.matchedField, int(c.similarity*100), c.medicalHistory, c.notes)...)
		b = append(b, "\n\n"...)
	}

	chronological := append([]sessionContext(nil), sessionCtxs...)
	sort.Slice(chronological, func(i, j int) bool { return chronological[i].date.Before(chronological[j].date) })

	b = append(b, t.sessionHeader+"\n\n"...)
	for i, s := range chronological {
		b = append(b, fmt.Sprintf(t.sessionBlock,
			i+1, s.clientName, s.date.Format("2006-01-02"), s.matchedField, int(s.rawSimilarity*100),
			s.soap["subjective"], s.soap["objective"], s.soap["assessment"], s.soap["plan"])...)
		b = append(b, "\n\n"...)
	}
	return string(b)
}
