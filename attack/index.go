package attack

import (
	"sort"
	"strings"

	"github.com/tchap/go-patricia/v2/patricia"
)

// Index is the immutable set of techniques built from a dataset.
//
// Techniques, Active and Revoked return slices owned by the index; callers
// must not modify them.
type Index struct {
	techniques []*Technique
	active     []*Technique
	revoked    []*Technique
	byID       map[string]*Technique
	ids        *patricia.Trie
}

// Build indexes the attack-pattern objects in objects, preserving their order.
//
// Construction runs in two passes: every technique is built first, then each
// subtechnique is linked to the technique whose id is its own up to the first '.'.
func Build(objects []Object) *Index {
	idx := &Index{
		techniques: make([]*Technique, 0, len(objects)),
		byID:       make(map[string]*Technique),
		ids:        patricia.NewTrie(),
	}

	for i := range objects {
		if objects[i].Type != TypeAttackPattern {
			continue
		}
		t := newTechnique(&objects[i])
		idx.techniques = append(idx.techniques, t)

		if !t.HasSource() {
			continue
		}
		// first entry wins for duplicate ids
		if _, exists := idx.byID[t.ID]; !exists {
			idx.byID[t.ID] = t
			idx.ids.Insert(patricia.Prefix(t.ID), t)
		}
	}

	for _, t := range idx.techniques {
		if parentID, ok := t.ParentID(); ok {
			t.Parent = idx.byID[parentID]
		}
	}

	for _, t := range idx.techniques {
		if t.Revoked {
			idx.revoked = append(idx.revoked, t)
		} else {
			idx.active = append(idx.active, t)
		}
	}

	return idx
}

func newTechnique(obj *Object) *Technique {
	long := NoDescription
	if obj.Description != nil {
		long = *obj.Description
	}

	t := &Technique{
		ID:   Unknown,
		Name: obj.Name,
		URL:  Unknown,
		Description: Description{
			Short: shortDescription(long),
			Long:  long,
		},
		Tactics:      []string{},
		Revoked:      obj.Revoked,
		Deprecated:   obj.Deprecated,
		Subtechnique: obj.Subtechnique,
	}

	for _, ref := range obj.ExternalReferences {
		if ref.SourceName == SourceMitreAttack {
			t.ID = ref.ExternalID
			t.URL = ref.URL
			break
		}
	}

	for _, phase := range obj.KillChainPhases {
		if phase.KillChainName == SourceMitreAttack {
			t.Tactics = append(t.Tactics, phase.PhaseName)
		}
	}

	return t
}

// Len returns the number of indexed techniques, placeholders included.
func (idx *Index) Len() int {
	return len(idx.techniques)
}

// Techniques returns every technique in dataset order.
func (idx *Index) Techniques() []*Technique {
	return idx.techniques
}

// Active returns the techniques that are not revoked, in dataset order.
func (idx *Index) Active() []*Technique {
	return idx.active
}

// Revoked returns the revoked techniques, in dataset order.
func (idx *Index) Revoked() []*Technique {
	return idx.revoked
}

// ByID looks up a technique by exact id, revoked ones included.
func (idx *Index) ByID(id string) (*Technique, bool) {
	t, ok := idx.byID[id]
	return t, ok
}

// WithPrefix returns the techniques whose id starts with prefix (case-insensitive),
// sorted by id. An empty prefix returns every technique with an id.
func (idx *Index) WithPrefix(prefix string) []*Technique {
	var matches []*Technique
	visit := func(_ patricia.Prefix, item patricia.Item) error {
		matches = append(matches, item.(*Technique))
		return nil
	}

	prefix = strings.ToUpper(prefix)
	if prefix == "" {
		_ = idx.ids.Visit(visit)
	} else {
		_ = idx.ids.VisitSubtree(patricia.Prefix(prefix), visit)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].ID < matches[j].ID
	})
	return matches
}
