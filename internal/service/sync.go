package service

import (
	"context"
	"fmt"

	"github.com/eppchris/recettes/internal/recipe"
)

// IngredientSource lists the distinct ingredient names used by recipes.
type IngredientSource interface {
	DistinctIngredients(ctx context.Context, lang string) ([]recipe.IngredientLine, error)
}

// EntryCreator creates missing catalog rows.
type EntryCreator interface {
	EnsureEntry(ctx context.Context, nameFr, unitFr string) error
}

// CatalogSyncer creates a price-less catalog row for every ingredient that
// appears in a recipe but not yet in the catalog.
type CatalogSyncer struct {
	Recipes IngredientSource
	Catalog EntryCreator
}

// Sync returns the number of ingredient names walked.
func (s *CatalogSyncer) Sync(ctx context.Context) (int, error) {
	lines, err := s.Recipes.DistinctIngredients(ctx, "fr")
	if err != nil {
		return 0, fmt.Errorf("failed to list recipe ingredients: %w", err)
	}
	for _, line := range lines {
		if err := s.Catalog.EnsureEntry(ctx, line.Name, line.Unit); err != nil {
			return 0, fmt.Errorf("failed to ensure catalog entry for %q: %w", line.Name, err)
		}
	}
	return len(lines), nil
}
