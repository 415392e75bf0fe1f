// Package service houses the application services sitting between the HTTP
// layer and the stores: ingredient matching, receipt import and catalog
// sync.
package service

import (
	"context"

	"github.com/agnivade/levenshtein"

	"github.com/eppchris/recettes/internal/catalog"
)

// maxFuzzyDistance is the edit distance above which two normalized names
// are not considered the same ingredient.
const maxFuzzyDistance = 2

// MatcherStore defines the catalog reads the matcher needs.
type MatcherStore interface {
	EntriesByName(ctx context.Context, normalizedName string) ([]catalog.Entry, error)
	ListEntries(ctx context.Context) ([]catalog.Entry, error)
}

// AIMatcher is the opaque AI fallback for names neither exact nor fuzzy
// matching can attach.
type AIMatcher interface {
	MatchIngredient(ctx context.Context, name string, candidates []string) (string, error)
}

// Matcher attaches free-text ingredient names (receipt OCR lines, imports)
// to catalog entries in three stages: exact normalized match, Levenshtein
// fuzzy match, then the AI judge. A nil AI disables the last stage.
type Matcher struct {
	Store MatcherStore
	AI    AIMatcher
}

// Match returns the catalog entry for the name, nil when nothing matches.
func (m *Matcher) Match(ctx context.Context, name string) (*catalog.Entry, error) {
	normalized := catalog.NormalizeName(name)
	if normalized == "" {
		return nil, nil
	}

	// Stage 1: exact normalized match.
	entries, err := m.Store.EntriesByName(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		keeper := catalog.ChooseKeeper(entries)
		return &keeper, nil
	}

	all, err := m.Store.ListEntries(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	// Stage 2: closest normalized name within the edit-distance cutoff.
	best := -1
	bestDist := maxFuzzyDistance + 1
	for i, e := range all {
		d := levenshtein.ComputeDistance(normalized, e.NameFrNormalized)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best >= 0 && bestDist <= maxFuzzyDistance {
		return &all[best], nil
	}

	// Stage 3: AI judge over the full candidate list.
	if m.AI == nil {
		return nil, nil
	}
	candidates := make([]string, 0, len(all))
	for _, e := range all {
		candidates = append(candidates, e.NameFr)
	}
	answer, err := m.AI.MatchIngredient(ctx, name, candidates)
	if err != nil || answer == "" {
		// AI unavailability degrades to "no match", it is not a fault.
		return nil, nil
	}
	answerKey := catalog.NormalizeName(answer)
	for i, e := range all {
		if e.NameFrNormalized == answerKey {
			return &all[i], nil
		}
	}
	return nil, nil
}
