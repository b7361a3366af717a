package domain

// Replacement is one ordered text substitution
type Replacement struct {
	Original   string
	Substitute string
}

// FilterRules is the content filter rule set
type FilterRules struct {
	BlockedWords []string      // case-insensitive substring match
	Replacements []Replacement // applied in order, each sees the previous output
}

// RelaySettings is the runtime configuration snapshot read by the pipeline.
// A new snapshot replaces the old one as a whole on reload.
type RelaySettings struct {
	Destinations []string
	Filter       FilterRules
	Media        MediaRules
	TextOnly     bool
}
