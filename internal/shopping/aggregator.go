// Package shopping merges ingredient lines from many recipes into a
// deduplicated shopping list, one total quantity per normalized ingredient.
package shopping

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/eppchris/recettes/internal/catalog"
	"github.com/eppchris/recettes/internal/units"
)

// Converter re-expresses quantities of a named ingredient in a standard
// aggregation unit. The ingredient name (normalized) lets implementations
// consult ingredient-specific conversions alongside the generic table.
type Converter interface {
	ToStandard(ctx context.Context, ingredient string, qty float64, unit, standard string) (*float64, error)
}

// CategorySource answers which conversion category an ingredient belongs to.
type CategorySource interface {
	ConversionCategory(ctx context.Context, normalizedName string) (string, error)
}

// IngredientLine is one recipe ingredient. Quantity zero is a vague
// quantity that contributes nothing numeric.
type IngredientLine struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Notes    string  `json:"notes"`
}

// RecipeInput is one recipe's contribution to an aggregated list.
type RecipeInput struct {
	RecipeID           int64            `json:"recipe_id"`
	RecipeName         string           `json:"recipe_name"`
	ServingsMultiplier float64          `json:"servings_multiplier"`
	Ingredients        []IngredientLine `json:"ingredients"`
}

// SourceLine records one contributing recipe line on an aggregated item.
type SourceLine struct {
	RecipeID   int64   `json:"recipe_id"`
	RecipeName string  `json:"recipe_name"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
}

// Item is one aggregated shopping-list entry in its purchase unit.
type Item struct {
	Name          string       `json:"ingredient_name"`
	TotalQuantity float64      `json:"total_quantity"`
	Unit          string       `json:"purchase_unit"`
	SourceRecipes []SourceLine `json:"source_recipes"`
	Notes         string       `json:"notes"`
}

// Aggregator merges recipe ingredient lines using the catalog's conversion
// category and the generic conversion tables.
type Aggregator struct {
	converter  Converter
	categories CategorySource
}

// NewAggregator creates an aggregator.
func NewAggregator(converter Converter, categories CategorySource) *Aggregator {
	return &Aggregator{converter: converter, categories: categories}
}

// liquidKeywords classifies common liquids when the catalog has no
// conversion category for the ingredient. Keys are normalized substrings.
var liquidKeywords = []string{
	"lait", "eau", "huile", "creme", "jus", "bouillon",
	"vin", "biere", "vinaigre", "sauce", "sirop",
}

func looksLiquid(normalizedName string) bool {
	for _, kw := range liquidKeywords {
		if strings.Contains(normalizedName, kw) {
			return true
		}
	}
	return false
}

func standardUnitFor(category string) string {
	switch category {
	case "poids":
		return "kg"
	case "volume":
		return "l"
	}
	return ""
}

type bucket struct {
	variants []string
	total    float64
	unit     string // standard unit code, original unit when unconverted, "" for counted items
	notes    []string
	sources  []SourceLine
}

// Aggregate merges the ingredient lines of all recipes into one item per
// normalized ingredient name, sorted case-insensitively by display name.
func (a *Aggregator) Aggregate(ctx context.Context, recipes []RecipeInput, lang string) ([]Item, error) {
	buckets := make(map[string]*bucket)
	categoryCache := make(map[string]string)

	for _, r := range recipes {
		multiplier := r.ServingsMultiplier
		if multiplier <= 0 {
			multiplier = 1
		}
		for _, line := range r.Ingredients {
			key := catalog.NormalizeName(line.Name)
			if key == "" {
				continue
			}
			b, ok := buckets[key]
			if !ok {
				b = &bucket{}
				buckets[key] = b
			}
			b.variants = append(b.variants, strings.TrimSpace(line.Name))
			if n := strings.TrimSpace(line.Notes); n != "" {
				b.notes = append(b.notes, n)
			}

			if line.Quantity <= 0 {
				// No precise quantity: keep the provenance, contribute
				// nothing numeric.
				b.sources = append(b.sources, SourceLine{RecipeID: r.RecipeID, RecipeName: r.RecipeName, Unit: line.Unit})
				continue
			}

			adjusted := line.Quantity * multiplier
			b.sources = append(b.sources, SourceLine{
				RecipeID: r.RecipeID, RecipeName: r.RecipeName, Quantity: line.Quantity, Unit: line.Unit,
			})

			unit := strings.TrimSpace(line.Unit)
			if unit == "" {
				// Counted items (eggs): each contribution rounds up on its
				// own, never the sum.
				b.total += math.Ceil(adjusted)
				continue
			}

			category, err := a.categoryFor(ctx, key, categoryCache)
			if err != nil {
				return nil, err
			}
			if category == "" && looksLiquid(key) {
				category = "volume"
			}

			standard := standardUnitFor(category)
			if standard != "" {
				converted, err := a.converter.ToStandard(ctx, key, adjusted, unit, standard)
				if err != nil {
					return nil, err
				}
				if converted != nil {
					b.total += *converted
					b.unit = standard
					continue
				}
			}
			// No conversion path: the quantity keeps its unit and is summed
			// with whatever accumulated. Cross-unit sums are a known
			// approximation the user verifies visually.
			b.total += adjusted
			if b.unit == "" {
				b.unit = unit
			}
		}
	}

	items := make([]Item, 0, len(buckets))
	for _, b := range buckets {
		qty, unitCode := purchaseUnit(b.total, b.unit)
		items = append(items, Item{
			Name:          chooseDisplayName(b.variants),
			TotalQuantity: qty,
			Unit:          units.DisplayUnit(unitCode, lang),
			SourceRecipes: b.sources,
			Notes:         joinNotes(b.notes),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

func (a *Aggregator) categoryFor(ctx context.Context, key string, cache map[string]string) (string, error) {
	if c, ok := cache[key]; ok {
		return c, nil
	}
	c, err := a.categories.ConversionCategory(ctx, key)
	if err != nil {
		return "", err
	}
	cache[key] = c
	return c, nil
}

// purchaseUnit converts a standard-unit total into the human purchase unit:
// below 0.5 of the standard unit it switches one level down (kg->g, L->ml)
// with one decimal, otherwise it keeps the standard unit with two decimals.
// Counted items round to one decimal with no unit.
func purchaseUnit(total float64, unit string) (float64, string) {
	switch unit {
	case "":
		return round1(total), ""
	case "kg":
		if total < 0.5 {
			return round1(total * 1000), "g"
		}
		return round2(total), "kg"
	case "l":
		if total < 0.5 {
			return round1(total * 1000), "ml"
		}
		return round2(total), "l"
	}
	return round2(total), unit
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// chooseDisplayName picks the nicest original spelling among the variants
// grouped under one normalized key: ligature spellings beat ASCII-folded
// ones, capitalized beat lowercase, forms without parentheses beat forms
// with, and the shortest string wins remaining ties.
func chooseDisplayName(variants []string) string {
	if len(variants) == 0 {
		return ""
	}
	best := variants[0]
	for _, v := range variants[1:] {
		if betterDisplayName(v, best) {
			best = v
		}
	}
	return best
}

func betterDisplayName(a, b string) bool {
	if la, lb := hasLigature(a), hasLigature(b); la != lb {
		return la
	}
	if ca, cb := isCapitalized(a), isCapitalized(b); ca != cb {
		return ca
	}
	if pa, pb := strings.ContainsRune(a, '('), strings.ContainsRune(b, '('); pa != pb {
		return !pa
	}
	return len(a) < len(b)
}

func hasLigature(s string) bool {
	return strings.ContainsAny(s, "œŒæÆ")
}

func isCapitalized(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r)
	}
	return false
}

func joinNotes(notes []string) string {
	seen := make(map[string]bool, len(notes))
	var out []string
	for _, n := range notes {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return strings.Join(out, "; ")
}
