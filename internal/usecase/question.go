package usecase

import "strings"

// Matching is case-sensitive and substring based, so "However" counts.
var questionIndicators = []string{
	"?",
	"Tell me",
	"Describe",
	"How",
	"What",
	"Why",
	"When",
	"Where",
	"Explain",
}

// isQuestion decides whether an assistant reply should be spoken aloud.
func isQuestion(text string) bool {
	for _, indicator := range questionIndicators {
		if strings.Contains(text, indicator) {
			return true
		}
	}
	return false
}
