package cost

import (
	"context"

	"github.com/eppchris/recettes/internal/catalog"
)

// Line is one ingredient line to price. Quantity zero means a vague
// quantity ("a pinch") that bypasses numeric conversion.
type Line struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// LineResult pairs an ingredient line with its resolution outcome.
type LineResult struct {
	Line   Line   `json:"line"`
	Result Result `json:"result"`
}

// RecipeResult is the aggregate cost of a recipe. Only lines with status ok
// contribute to the total; the others stay in Lines so the caller can
// render "price unknown" instead of treating them as free.
type RecipeResult struct {
	Total    float64          `json:"total"`
	Currency catalog.Currency `json:"currency"`
	Lines    []LineResult     `json:"lines"`
}

// ResolveRecipe prices every ingredient line of a recipe and sums the
// resolvable ones.
func (r *Resolver) ResolveRecipe(ctx context.Context, lines []Line, currency catalog.Currency, lang string) (RecipeResult, error) {
	out := RecipeResult{Currency: currency, Lines: make([]LineResult, 0, len(lines))}
	for _, line := range lines {
		res, err := r.ResolveIngredient(ctx, line.Name, line.Quantity, line.Unit, currency, lang)
		if err != nil {
			return RecipeResult{}, err
		}
		if res.Status == StatusOK {
			out.Total += res.Cost
		}
		out.Lines = append(out.Lines, LineResult{Line: line, Result: res})
	}
	return out, nil
}
