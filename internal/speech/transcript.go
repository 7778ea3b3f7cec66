package speech

import (
	"strings"

	"intervox/internal/domain"
)

// transcriptAggregator accumulates the final segments of one listen
// attempt. Partial text only feeds the visible draft.
type transcriptAggregator struct {
	finals  []string
	partial string
	heard   bool
}

func (a *transcriptAggregator) Add(event domain.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" {
		return
	}
	a.heard = true
	if event.Kind == domain.TranscriptKindFinal {
		a.finals = append(a.finals, text)
		a.partial = ""
		return
	}
	a.partial = text
}

// Final is the trimmed concatenation of final segments.
func (a *transcriptAggregator) Final() string {
	return strings.TrimSpace(strings.Join(a.finals, " "))
}

// Draft is what the user should currently see.
func (a *transcriptAggregator) Draft() string {
	return strings.TrimSpace(a.Final() + " " + a.partial)
}

func (a *transcriptAggregator) HasFinal() bool {
	return len(a.finals) > 0
}

func (a *transcriptAggregator) Heard() bool {
	return a.heard
}
