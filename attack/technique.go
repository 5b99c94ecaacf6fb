// Package attack holds the MITRE ATT&CK technique index: decoding STIX
// attack-pattern objects into Technique records, resolving subtechnique
// parents, and rendering techniques for display or insertion.
package attack

import "strings"

const (
	// Unknown is the placeholder id and url for techniques without a mitre-attack reference
	Unknown = "<unknown>"

	// NoDescription replaces a missing description
	NoDescription = "No description available."

	// SourceMitreAttack is the source_name and kill_chain_name ATT&CK data is keyed by
	SourceMitreAttack = "mitre-attack"

	// TypeAttackPattern is the STIX type of techniques and subtechniques
	TypeAttackPattern = "attack-pattern"
)

// Description holds the first line and the full text of a technique description.
type Description struct {
	Short string `json:"short"`
	Long  string `json:"long"`
}

// Technique is a single ATT&CK technique or subtechnique.
//
// Parent points into the same Index the technique belongs to; it is never a copy.
type Technique struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	URL          string      `json:"url"`
	Description  Description `json:"description"`
	Tactics      []string    `json:"tactics"`
	Revoked      bool        `json:"revoked"`
	Deprecated   bool        `json:"deprecated"`
	Subtechnique bool        `json:"subtechnique"`
	Parent       *Technique  `json:"-"`
}

// FullName is "Parent: Name" for a subtechnique with a resolved parent, otherwise Name.
// Completion filters on this text.
func (t *Technique) FullName() string {
	if t.Parent != nil {
		return t.Parent.Name + ": " + t.Name
	}
	return t.Name
}

// NormalizeID upper-cases id and turns the URL form T1059/001 into T1059.001
func NormalizeID(id string) string {
	return strings.ToUpper(strings.Replace(strings.TrimSpace(id), "/", ".", 1))
}

// ParentID returns the id of the technique's parent: the id up to the first '.'.
// ok is false when the technique is not a subtechnique or its id has no '.'.
func (t *Technique) ParentID() (id string, ok bool) {
	if !t.Subtechnique {
		return "", false
	}
	i := strings.IndexByte(t.ID, '.')
	if i <= 0 {
		return "", false
	}
	return t.ID[:i], true
}

// Obsolete reports whether the technique is revoked or deprecated.
func (t *Technique) Obsolete() bool {
	return t.Revoked || t.Deprecated
}

// HasSource reports whether the technique carried a mitre-attack external reference.
func (t *Technique) HasSource() bool {
	return t.ID != Unknown
}

func shortDescription(long string) string {
	if i := strings.IndexByte(long, '\n'); i >= 0 {
		return long[:i]
	}
	return long
}
