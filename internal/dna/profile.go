package dna

import "time"

// Section names used in SectionsMissing when a profile part had no input.
const (
	SectionStats      = "stats"
	SectionMainstream = "mainstream"
	SectionArchetype  = "archetype"
	SectionBrackets   = "brackets"
	SectionHighlights = "highlights"
	SectionNarrative  = "narrative"
)

// Profile is the assembled reading profile, persisted wholesale as the
// profiles.payload JSON document.
type Profile struct {
	OwnerKey        string              `json:"owner_key"`
	GeneratedAt     time.Time           `json:"generated_at"`
	Fingerprint     string              `json:"fingerprint"`
	Stats           Stats               `json:"stats"`
	Mainstream      MainstreamResult    `json:"mainstream"`
	Archetype       ArchetypeResult     `json:"archetype"`
	Brackets        []BracketShare      `json:"brackets,omitempty"`
	Highlights      SentimentHighlights `json:"highlights"`
	MostNiche       *NicheBook          `json:"most_niche,omitempty"`
	Controversial   []ControversialBook `json:"controversial,omitempty"`
	VibePhrases     []string            `json:"vibe_phrases,omitempty"`
	RowsSkipped     int                 `json:"rows_skipped"`
	SectionsMissing []string            `json:"sections_missing,omitempty"`
}
