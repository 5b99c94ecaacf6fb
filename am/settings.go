package am

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/teranos/attackls/errors"
)

// SettingsSection is the key editors nest attackls settings under
const SettingsSection = "attack"

// editorSettings mirrors the settings object editors send in
// initializationOptions and workspace/didChangeConfiguration.
// Unset fields keep the current value.
type editorSettings struct {
	Description           *string `mapstructure:"description"`
	CompletionFormat      *string `mapstructure:"completionFormat"`
	MinTermLength         *int    `mapstructure:"minTermLength"`
	MaxDescriptionMatches *int    `mapstructure:"maxDescriptionMatches"`
	Debug                 *bool   `mapstructure:"debug"`
}

// DecodeSettings applies an editor settings payload on top of base.
//
// The payload is either {"attack": {...}} or the section itself. A nil
// payload returns base unchanged. The merged result is validated.
func DecodeSettings(payload any, base AttackConfig) (AttackConfig, error) {
	if payload == nil {
		return base, nil
	}

	raw, ok := payload.(map[string]any)
	if !ok {
		return base, errors.NewInvalidRequestError("settings must be an object, got %T", payload)
	}
	if section, ok := raw[SettingsSection].(map[string]any); ok {
		raw = section
	}

	var s editorSettings
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return base, errors.Wrap(err, "failed to create settings decoder")
	}
	if err := decoder.Decode(raw); err != nil {
		return base, errors.Wrap(errors.NewInvalidRequestError("malformed settings"), err.Error())
	}

	merged := base
	if s.Description != nil {
		merged.Description = *s.Description
	}
	if s.CompletionFormat != nil {
		merged.CompletionFormat = *s.CompletionFormat
	}
	if s.MinTermLength != nil {
		merged.MinTermLength = *s.MinTermLength
	}
	if s.MaxDescriptionMatches != nil {
		merged.MaxDescriptionMatches = *s.MaxDescriptionMatches
	}
	if s.Debug != nil {
		merged.Debug = *s.Debug
	}

	if err := merged.Validate(); err != nil {
		return base, err
	}
	return merged, nil
}
