package search

import "github.com/Laisky/docspace/library/config"

// Settings configures hybrid retrieval and fusion.
type Settings struct {
	LimitDefault      int
	LimitMax          int
	LexicalCandidates int
	VectorCandidates  int
	SemanticWeight    float64
	LexicalWeight     float64
	// WeakMatchFloor is the fused score below which a match is considered weak.
	WeakMatchFloor float64
	// MinTokenLength is the shortest token that makes a query worth running.
	MinTokenLength int
	// PrefixMinLength is the shortest token matched as a prefix.
	PrefixMinLength int
	SnippetMaxChars int
	// ContextWindow is how many neighbour chunks on each side build a semantic snippet.
	ContextWindow int
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		LimitDefault:      10,
		LimitMax:          50,
		LexicalCandidates: 100,
		VectorCandidates:  50,
		SemanticWeight:    0.65,
		LexicalWeight:     0.35,
		WeakMatchFloor:    0.35,
		MinTokenLength:    2,
		PrefixMinLength:   4,
		SnippetMaxChars:   600,
		ContextWindow:     1,
	}
}

// LoadSettingsFromConfig reads configuration and applies safe defaults.
func LoadSettingsFromConfig() Settings {
	def := DefaultSettings()
	settings := Settings{
		LimitDefault:      config.Int("settings.docs.search.limit_default", def.LimitDefault),
		LimitMax:          config.Int("settings.docs.search.limit_max", def.LimitMax),
		LexicalCandidates: config.Int("settings.docs.search.lexical_candidates", def.LexicalCandidates),
		VectorCandidates:  config.Int("settings.docs.search.vector_candidates", def.VectorCandidates),
		SemanticWeight:    config.Float("settings.docs.search.semantic_weight", def.SemanticWeight),
		LexicalWeight:     config.Float("settings.docs.search.lexical_weight", def.LexicalWeight),
		WeakMatchFloor:    config.Float("settings.docs.search.weak_match_floor", def.WeakMatchFloor),
		MinTokenLength:    config.Int("settings.docs.search.min_token_length", def.MinTokenLength),
		PrefixMinLength:   config.Int("settings.docs.search.prefix_min_length", def.PrefixMinLength),
		SnippetMaxChars:   config.Int("settings.docs.search.snippet_max_chars", def.SnippetMaxChars),
		ContextWindow:     config.Int("settings.docs.search.context_window", def.ContextWindow),
	}
	return settings.withDefaults()
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.LimitDefault <= 0 {
		s.LimitDefault = def.LimitDefault
	}
	if s.LimitMax <= 0 {
		s.LimitMax = def.LimitMax
	}
	if s.LimitDefault > s.LimitMax {
		s.LimitDefault = s.LimitMax
	}
	if s.LexicalCandidates <= 0 {
		s.LexicalCandidates = def.LexicalCandidates
	}
	if s.VectorCandidates <= 0 {
		s.VectorCandidates = def.VectorCandidates
	}
	if s.SemanticWeight < 0 {
		s.SemanticWeight = 0
	}
	if s.LexicalWeight < 0 {
		s.LexicalWeight = 0
	}
	if s.SemanticWeight+s.LexicalWeight == 0 {
		s.SemanticWeight = def.SemanticWeight
		s.LexicalWeight = def.LexicalWeight
	}
	if s.WeakMatchFloor < 0 {
		s.WeakMatchFloor = 0
	}
	if s.MinTokenLength <= 0 {
		s.MinTokenLength = def.MinTokenLength
	}
	if s.PrefixMinLength <= 0 {
		s.PrefixMinLength = def.PrefixMinLength
	}
	if s.SnippetMaxChars <= 0 {
		s.SnippetMaxChars = def.SnippetMaxChars
	}
	if s.ContextWindow < 0 {
		s.ContextWindow = 0
	}
	return s
}

// Weights returns the configured fusion weights.
func (s Settings) Weights() Weights {
	return Weights{Lexical: s.LexicalWeight, Semantic: s.SemanticWeight}
}
