package bank

import (
	"golang.org/x/text/language"
	"golang.org/x/text/search"

	"github.com/pavelanni/phishtrap/internal/model"
)

// Part is a fragment of an email body. Cue is set when the fragment
// matched one of the email's cues.
type Part struct {
	Text string     `json:"text"`
	Cue  *model.Cue `json:"cue,omitempty"`
}

var cueMatcher = search.New(language.Und, search.IgnoreCase)

// HighlightCues splits body into parts, marking cue occurrences.
// Matching is case-insensitive; at each step the earliest occurrence of
// any cue wins, and the first listed cue wins ties.
func HighlightCues(body string, cues []model.Cue) []Part {
	if len(cues) == 0 {
		return []Part{{Text: body}}
	}

	patterns := make([]*search.Pattern, len(cues))
	for i, c := range cues {
		if c.Text != "" {
			patterns[i] = cueMatcher.CompileString(c.Text)
		}
	}

	var parts []Part
	remaining := body
	for remaining != "" {
		best, bestStart, bestEnd := -1, -1, -1
		for i, p := range patterns {
			if p == nil {
				continue
			}
			// Offsets index remaining itself, so case folding never shifts them.
			start, end := p.IndexString(remaining)
			if start == -1 || end <= start {
				continue
			}
			if bestStart == -1 || start < bestStart {
				best, bestStart, bestEnd = i, start, end
			}
		}
		if best == -1 {
			parts = append(parts, Part{Text: remaining})
			break
		}
		if bestStart > 0 {
			parts = append(parts, Part{Text: remaining[:bestStart]})
		}
		cue := cues[best]
		parts = append(parts, Part{Text: remaining[bestStart:bestEnd], Cue: &cue})
		remaining = remaining[bestEnd:]
	}
	return parts
}
