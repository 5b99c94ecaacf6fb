// Package lsp provides transport-agnostic language intelligence for ATT&CK
// technique references: completion of ids and names, lazy resolution of
// completion documentation, and hover descriptions.
package lsp

import (
	"context"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/teranos/attackls/attack"
	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/logger"
	"go.uber.org/zap"
)

// Service answers completion and hover requests against an immutable technique index.
//
// Settings may be swapped at any time with Configure; each request works on
// the snapshot taken when it started.
type Service struct {
	index  *attack.Index
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	settings Settings
	fullSet  []CompletionItem // every active technique keyed by name and by id
}

// NewService creates a language service over index
func NewService(index *attack.Index, settings Settings) *Service {
	s := &Service{
		index:  index,
		logger: logger.ComponentLogger("lsp"),
	}
	s.Configure(settings)
	return s
}

// Index returns the technique index the service answers from
func (s *Service) Index() *attack.Index {
	return s.index
}

// Settings returns the current settings snapshot
func (s *Service) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Configure replaces the settings and recomputes the full candidate set
func (s *Service) Configure(settings Settings) {
	full := make([]CompletionItem, 0, 2*len(s.index.Active()))
	for _, t := range s.index.Active() {
		full = append(full, nameItem(t, settings.Format), idItem(t, settings.Format))
	}

	s.mu.Lock()
	s.settings = settings
	s.fullSet = full
	s.mu.Unlock()

	s.logger.Debugw("Completion set recomputed",
		logger.FieldCount, len(full),
		logger.FieldFormat, settings.Format,
		logger.FieldMode, settings.Description,
	)
}

func (s *Service) snapshot() (Settings, []CompletionItem) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, s.fullSet
}

// GetCompletions returns the completion candidates for the word at the cursor.
// A cancelled context yields no candidates and no error.
func (s *Service) GetCompletions(ctx context.Context, req CompletionRequest) ([]CompletionItem, error) {
	settings, full := s.snapshot()

	items := s.complete(req, settings, full)

	if ctx.Err() != nil {
		s.logger.Debugw("Completion cancelled", logger.FieldError, ctx.Err())
		return []CompletionItem{}, nil
	}
	return items, nil
}

func (s *Service) complete(req CompletionRequest, settings Settings, full []CompletionItem) []CompletionItem {
	r, ok := wordRange(req.Text, req.Offset)
	if !ok {
		return slices.Clone(full)
	}

	term := req.Text[r.Start:r.End]
	if utf8.RuneCountInString(term) < settings.MinTermLength {
		return slices.Clone(full)
	}

	upper := strings.ToUpper(term)
	for _, t := range s.index.Revoked() {
		if t.ID == upper {
			return []CompletionItem{}
		}
	}
	for _, t := range s.index.Active() {
		if t.ID == upper {
			return []CompletionItem{idItem(t, settings.Format)}
		}
	}

	lower := strings.ToLower(term)
	items := []CompletionItem{}
	for _, t := range s.index.Active() {
		if strings.Contains(strings.ToLower(t.FullName()), lower) {
			items = append(items, nameItem(t, settings.Format))
		}
	}
	if len(items) > 0 || req.Trigger != TriggerManual {
		return items
	}

	return s.searchDescriptions(term, settings)
}

// searchDescriptions matches term against active long descriptions.
// More matches than the configured maximum means the term is too generic: none are returned.
func (s *Service) searchDescriptions(term string, settings Settings) []CompletionItem {
	lower := strings.ToLower(term)

	var matches []*attack.Technique
	for _, t := range s.index.Active() {
		if strings.Contains(strings.ToLower(t.Description.Long), lower) {
			matches = append(matches, t)
		}
	}

	if len(matches) > settings.MaxDescriptionMatches {
		s.logger.Debugw("Description search too generic",
			logger.FieldTerm, term,
			logger.FieldCount, len(matches),
		)
		return []CompletionItem{}
	}

	items := make([]CompletionItem, 0, len(matches))
	for _, t := range matches {
		insert := attack.InsertText(t, settings.Format)
		items = append(items, CompletionItem{
			Label:         term + DescriptionSuffix,
			FilterText:    term,
			InsertText:    insert,
			Detail:        insert,
			Documentation: attack.Highlight(attack.Describe(t, attack.ModeLong), term),
			Deprecated:    t.Obsolete(),
			TechniqueID:   t.ID,
		})
	}
	return items
}

// Resolve attaches documentation to a candidate that does not carry it yet.
func (s *Service) Resolve(ctx context.Context, item CompletionItem) (CompletionItem, error) {
	if item.Documentation != "" {
		return item, nil
	}

	settings, _ := s.snapshot()

	t := s.resolveTechnique(item)
	if t == nil {
		s.logger.Debugw("No technique for completion item", "label", item.Label)
		return item, nil
	}

	if ctx.Err() != nil {
		return item, nil
	}

	item.Documentation = attack.Describe(t, settings.Description)
	return item, nil
}

func (s *Service) resolveTechnique(item CompletionItem) *attack.Technique {
	eligible := func(t *attack.Technique) bool {
		if item.Deprecated {
			return t.Obsolete()
		}
		return !t.Obsolete()
	}

	// the id carried by the item disambiguates techniques sharing a name;
	// placeholder ids are shared and fall through to the label match
	if item.TechniqueID != "" && item.TechniqueID != attack.Unknown {
		for _, t := range s.index.Techniques() {
			if t.ID == item.TechniqueID && eligible(t) {
				return t
			}
		}
	}

	for _, t := range s.index.Techniques() {
		if eligible(t) && (t.ID == item.Label || t.Name == item.Label) {
			return t
		}
	}
	return nil
}

// Hover describes the technique id under offset. It returns nil when there is
// no id at offset or the id is not indexed. Revoked techniques are described too.
func (s *Service) Hover(ctx context.Context, text string, offset int) (*Hover, error) {
	id, r, ok := techniqueIDAt(text, offset)
	if !ok {
		return nil, nil
	}

	t, ok := s.index.ByID(id)
	if !ok {
		s.logger.Debugw("Hover on unknown technique", logger.FieldTechnique, id)
		return nil, nil
	}

	if ctx.Err() != nil {
		return nil, nil
	}

	return &Hover{
		Contents:    attack.Describe(t, attack.ModeLong),
		Range:       r,
		TechniqueID: t.ID,
	}, nil
}

// Describe renders the technique with the given id. An empty mode uses the configured one.
func (s *Service) Describe(id string, mode attack.Mode) (string, error) {
	t, ok := s.index.ByID(attack.NormalizeID(id))
	if !ok {
		return "", errors.NewNotFoundError("technique %s", id)
	}
	if mode == "" {
		mode = s.Settings().Description
	}
	return attack.Describe(t, mode), nil
}

func nameItem(t *attack.Technique, format attack.Format) CompletionItem {
	insert := attack.InsertText(t, format)
	return CompletionItem{
		Label:       t.Name,
		FilterText:  t.FullName(),
		InsertText:  insert,
		Detail:      insert,
		Deprecated:  t.Obsolete(),
		TechniqueID: t.ID,
	}
}

func idItem(t *attack.Technique, format attack.Format) CompletionItem {
	insert := attack.InsertText(t, format)
	return CompletionItem{
		Label:       t.ID,
		InsertText:  insert,
		Detail:      insert,
		Deprecated:  t.Obsolete(),
		TechniqueID: t.ID,
	}
}
