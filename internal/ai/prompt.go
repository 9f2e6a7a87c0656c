package ai

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/phrasetracker/internal/transcript"
	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// buildSystemPrompt lists the tracker catalog and the required reply shape.
func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You classify sentences from a recorded sales consultation into conversation stages.\n")
	b.WriteString("Assign exactly one tracker to every sentence from this list:\n")
	for _, t := range models.Trackers() {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	fmt.Fprintf(&b, "- %s: the sentence fits none of the above\n", models.TrackerNone)
	b.WriteString(`
Each sentence is prefixed with its index in square brackets. Echo that index back as sentenceIndex.
Set confidence between 0 and 1.

Respond with JSON only (no markdown):
{"classifications": [{"sentenceIndex": 12, "text": "...", "tracker": "pricing", "confidence": 0.92}, ...]}`)
	return b.String()
}

// buildUserPrompt renders one chunk with absolute sentence indices.
func buildUserPrompt(chunk transcript.Chunk) string {
	var b strings.Builder
	b.WriteString("Classify these sentences:\n\n")
	for i, s := range chunk.Sentences {
		fmt.Fprintf(&b, "[%d] %s\n", chunk.Start+i, s)
	}
	return b.String()
}
