package monitor

import "strings"

// DefaultVocabulary lists the terms flagged in transcript text, in the
// order they are applied.
var DefaultVocabulary = []string{
	"irs", "gift card", "wire", "urgent", "verify", "account", "bank",
	"police", "help", "money", "payment", "frozen", "arrest", "warrant",
	"immediately", "crypto", "social security", "federal", "official",
}

// Segment is a run of transcript text, flagged when it matched a
// vocabulary term.
type Segment struct {
	Text string `json:"text"`
	Risk bool   `json:"risk"`
}

// Highlight splits text into plain and flagged segments. Terms are applied
// in vocabulary order, each against the plain segments left by earlier
// terms, so an earlier term claims overlapping text. Matching is
// case-insensitive substring matching; the original casing is preserved in
// the output.
func Highlight(text string, vocabulary []string) []Segment {
	if text == "" {
		return nil
	}
	segments := []Segment{{Text: text}}
	for _, term := range vocabulary {
		term = strings.ToLower(term)
		if term == "" {
			continue
		}
		next := make([]Segment, 0, len(segments))
		for _, seg := range segments {
			if seg.Risk {
				next = append(next, seg)
				continue
			}
			next = append(next, splitTerm(seg.Text, term)...)
		}
		segments = next
	}
	return segments
}

func splitTerm(text, term string) []Segment {
	var out []Segment
	for text != "" {
		idx := strings.Index(strings.ToLower(text), term)
		if idx < 0 {
			out = append(out, Segment{Text: text})
			break
		}
		if idx > 0 {
			out = append(out, Segment{Text: text[:idx]})
		}
		out = append(out, Segment{Text: text[idx : idx+len(term)], Risk: true})
		text = text[idx+len(term):]
	}
	return out
}
