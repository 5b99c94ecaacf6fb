package lsp

import (
	"github.com/teranos/attackls/am"
	"github.com/teranos/attackls/attack"
)

// Trigger distinguishes explicit completion requests from automatic ones
type Trigger string

const (
	TriggerManual Trigger = "manual" // user invoked completion (e.g. ctrl+space)
	TriggerAuto   Trigger = "auto"   // completion fired while typing
)

// DescriptionSuffix is appended to the term in description-search labels
const DescriptionSuffix = " (description)"

// CompletionRequest represents a completion request
type CompletionRequest struct {
	Text    string  // full document text
	Offset  int     // byte offset of the cursor in Text
	Trigger Trigger // manual or auto
}

// CompletionItem is a transport-neutral completion candidate
type CompletionItem struct {
	Label         string `json:"label"`
	FilterText    string `json:"filter_text,omitempty"`
	InsertText    string `json:"insert_text"`
	Detail        string `json:"detail"`
	Documentation string `json:"documentation,omitempty"` // set up front only for description matches
	Deprecated    bool   `json:"deprecated"`
	TechniqueID   string `json:"technique_id"`
}

// Range is a half-open byte range into a document
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Hover is the description shown for a technique id under the cursor
type Hover struct {
	Contents    string `json:"contents"`
	Range       Range  `json:"range"`
	TechniqueID string `json:"technique_id"`
}

// Settings is the lookup behaviour an editor can change at runtime
type Settings struct {
	Description           attack.Mode
	Format                attack.Format
	MinTermLength         int
	MaxDescriptionMatches int
	Debug                 bool
}

// DefaultSettings mirrors the am defaults
func DefaultSettings() Settings {
	return Settings{
		Description:           attack.Mode(am.DefaultDescription),
		Format:                attack.Format(am.DefaultCompletionFormat),
		MinTermLength:         am.DefaultMinTermLength,
		MaxDescriptionMatches: am.DefaultMaxDescriptionMatches,
	}
}

// SettingsFromConfig validates and converts the attack config section
func SettingsFromConfig(cfg am.AttackConfig) (Settings, error) {
	if err := cfg.Validate(); err != nil {
		return Settings{}, err
	}
	return Settings{
		Description:           attack.Mode(cfg.Description),
		Format:                attack.Format(cfg.CompletionFormat),
		MinTermLength:         cfg.MinTermLength,
		MaxDescriptionMatches: cfg.MaxDescriptionMatches,
		Debug:                 cfg.Debug,
	}, nil
}

// Config converts settings back into the attack config section
func (s Settings) Config() am.AttackConfig {
	return am.AttackConfig{
		Description:           string(s.Description),
		CompletionFormat:      string(s.Format),
		MinTermLength:         s.MinTermLength,
		MaxDescriptionMatches: s.MaxDescriptionMatches,
		Debug:                 s.Debug,
	}
}
