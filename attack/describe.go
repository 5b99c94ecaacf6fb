package attack

import (
	"strings"

	"github.com/teranos/attackls/errors"
)

// Mode selects how much of a description Describe renders.
type Mode string

const (
	ModeShort Mode = "short"
	ModeLong  Mode = "long"
	ModeLink  Mode = "link"
)

// Modes lists the accepted description modes.
var Modes = []Mode{ModeShort, ModeLong, ModeLink}

// ParseMode validates s as a description mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.NewInvalidConfigError("use one of: short, long, link", "unknown description mode %q", s)
}

// Describe renders t as a markdown block:
//
//	### Parent: Name (REVOKED)
//
//	[Source Link](url)
//
//	**Tactics**: a, b
//
//	description body
//
// The body is the long description in ModeLong, the first line in ModeShort,
// and omitted in ModeLink. Unrecognised modes render as ModeLong.
func Describe(t *Technique, mode Mode) string {
	title := t.FullName()
	if t.Revoked {
		title += " (REVOKED)"
	}

	blocks := []string{"### " + title}

	if t.URL == Unknown {
		blocks = append(blocks, "_No source link available_")
	} else {
		blocks = append(blocks, "[Source Link]("+t.URL+")")
	}

	switch len(t.Tactics) {
	case 0:
	case 1:
		blocks = append(blocks, "**Tactic**: "+t.Tactics[0])
	default:
		blocks = append(blocks, "**Tactics**: "+strings.Join(t.Tactics, ", "))
	}

	switch mode {
	case ModeLink:
	case ModeShort:
		blocks = append(blocks, t.Description.Short)
	default:
		blocks = append(blocks, t.Description.Long)
	}

	return strings.Join(blocks, "\n\n")
}

// Highlight wraps the first literal occurrence of term in block with bold markers.
func Highlight(block, term string) string {
	if term == "" {
		return block
	}
	return strings.Replace(block, term, "**"+term+"**", 1)
}
