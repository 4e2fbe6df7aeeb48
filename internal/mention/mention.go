// Package mention finds "@" autocomplete triggers in message drafts and
// detects mentions of the AI assistant in sent messages.
package mention

import (
	"strings"
	"unicode"

	"github.com/npezzotti/go-chatroom/internal/types"
)

const (
	AIName  = "AI"
	aiToken = "@ai"
)

type Candidate struct {
	Id    int    `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	IsAI  bool   `json:"is_ai"`
}

type Trigger struct {
	Active bool   `json:"active"`
	Query  string `json:"query"`
	// Start is the rune offset of the "@".
	Start      int         `json:"start"`
	Candidates []Candidate `json:"candidates"`
}

// MentionsAI reports whether content contains "@ai" in any case. A
// trailing word boundary is not required.
func MentionsAI(content string) bool {
	return strings.Contains(strings.ToLower(content), aiToken)
}

// Detect looks backward from cursor (a rune offset into text) for an
// active "@" trigger and filters the room's candidates by the text typed
// after it.
func Detect(text string, cursor int, participants []types.Participant, aiMuted bool) Trigger {
	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		return Trigger{}
	}

	at := -1
	for i := cursor - 1; i >= 0; i-- {
		r := runes[i]
		if unicode.IsSpace(r) {
			break
		}
		if r == '@' && (i == 0 || unicode.IsSpace(runes[i-1])) {
			at = i
			break
		}
	}
	if at < 0 {
		return Trigger{}
	}

	query := string(runes[at+1 : cursor])
	if strings.IndexFunc(query, unicode.IsSpace) >= 0 {
		return Trigger{}
	}

	return Trigger{
		Active:     true,
		Query:      query,
		Start:      at,
		Candidates: Filter(candidates(participants, aiMuted), query),
	}
}

func candidates(participants []types.Participant, aiMuted bool) []Candidate {
	all := make([]Candidate, 0, len(participants)+1)
	if !aiMuted {
		all = append(all, Candidate{Name: AIName, IsAI: true})
	}
	for _, p := range participants {
		all = append(all, Candidate{Id: p.Id, Name: p.Name, Color: p.Color})
	}
	return all
}

// Filter keeps the candidates whose name, or name with whitespace
// removed, contains or starts with query, ignoring case.
func Filter(all []Candidate, query string) []Candidate {
	q := strings.ToLower(query)
	matched := make([]Candidate, 0, len(all))
	for _, c := range all {
		name := strings.ToLower(c.Name)
		compact := stripSpace(name)
		if strings.Contains(name, q) || strings.HasPrefix(name, q) ||
			strings.Contains(compact, q) || strings.HasPrefix(compact, q) {
			matched = append(matched, c)
		}
	}
	return matched
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
