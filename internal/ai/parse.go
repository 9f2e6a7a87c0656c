package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kiranshivaraju/phrasetracker/pkg/models"
)

// defaultConfidence is used when the model omits a confidence.
const defaultConfidence = 0.8

type classificationReply struct {
	Classifications []classificationRow `json:"classifications"`
}

type classificationRow struct {
	SentenceIndex *int     `json:"sentenceIndex"`
	Text          string   `json:"text"`
	Tracker       string   `json:"tracker"`
	Confidence    *float64 `json:"confidence"`
}

// parseReply decodes the model's reply. Markdown fences and prose around the
// JSON object are tolerated; anything else is ErrInvalidResponse.
func parseReply(raw string) ([]classificationRow, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var reply classificationReply
	if err := json.Unmarshal([]byte(text), &reply); err == nil {
		return reply.Classifications, nil
	}

	obj := firstJSONObject(text)
	if obj == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", models.ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(obj), &reply); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
	}
	return reply.Classifications, nil
}

// firstJSONObject returns the first balanced {...} span in s, honouring strings.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func clampConfidence(c *float64) float64 {
	if c == nil {
		return defaultConfidence
	}
	switch {
	case *c < 0:
		return 0
	case *c > 1:
		return 1
	}
	return *c
}
