package models

import "strings"

// Tracker is a consultation-stage label assigned to a sentence.
type Tracker string

const (
	TrackerGreeting          Tracker = "greeting"
	TrackerDiscovery         Tracker = "discovery"
	TrackerEducation         Tracker = "education"
	TrackerRecommendation    Tracker = "recommendation"
	TrackerPricing           Tracker = "pricing"
	TrackerObjectionHandling Tracker = "objection_handling"
	TrackerBooking           Tracker = "booking"

	// TrackerNone marks a sentence that fits no category.
	TrackerNone Tracker = "none"
)

// TrackerInfo describes a category for prompts and the tracker listing endpoint.
type TrackerInfo struct {
	Name        Tracker `json:"name"`
	Description string  `json:"description"`
}

var trackerCatalog = []TrackerInfo{
	{TrackerGreeting, "Opening pleasantries, introductions, rapport building before business starts"},
	{TrackerDiscovery, "Questions about the client's goals, concerns, history or expectations"},
	{TrackerEducation, "Explaining how a treatment, product or procedure works"},
	{TrackerRecommendation, "Proposing a specific treatment plan, product or next step"},
	{TrackerPricing, "Discussing cost, packages, financing, discounts or payment"},
	{TrackerObjectionHandling, "Responding to hesitation, doubts, fears or competing options"},
	{TrackerBooking, "Scheduling, confirming or closing on an appointment"},
}

// Trackers returns the fixed category catalog, excluding TrackerNone.
func Trackers() []TrackerInfo {
	out := make([]TrackerInfo, len(trackerCatalog))
	copy(out, trackerCatalog)
	return out
}

// ParseTracker normalizes a label returned by a model. Unknown labels map to TrackerNone.
func ParseTracker(label string) Tracker {
	norm := strings.ToLower(strings.TrimSpace(label))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for _, t := range trackerCatalog {
		if string(t.Name) == norm {
			return t.Name
		}
	}
	return TrackerNone
}

// ClassifiedSentence is one classified sentence of a transcript. Start and End
// are interpolated from the sentence index, not measured.
type ClassifiedSentence struct {
	Index      int     `db:"sentence_index" json:"sentenceIndex"`
	Text       string  `db:"text"           json:"text"`
	Tracker    Tracker `db:"tracker"        json:"tracker"`
	Confidence float64 `db:"confidence"     json:"confidence"`
	Start      int64   `db:"start_ms"       json:"start"`
	End        int64   `db:"end_ms"         json:"end"`
	Timestamp  string  `db:"-"              json:"timestamp"`
}
