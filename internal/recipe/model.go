package recipe

import "github.com/eppchris/recettes/internal/catalog"

// Recipe is one recipe with its bilingual title.
type Recipe struct {
	ID       int64  `json:"id"`
	TitleFr  string `json:"title_fr"`
	TitleJp  string `json:"title_jp"`
	Servings int    `json:"servings"`
}

// Title returns the display title translation.
func (r Recipe) Title() catalog.Translation {
	return catalog.Translation{Fr: r.TitleFr, Jp: r.TitleJp}
}

// IngredientLine is one ingredient row of a recipe in one language.
// Quantity zero means a vague quantity ("a pinch") that bypasses numeric
// conversion.
type IngredientLine struct {
	ID       int64   `json:"id"`
	RecipeID int64   `json:"recipe_id"`
	Lang     string  `json:"lang"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
	Notes    string  `json:"notes"`
	Position int     `json:"position"`
}

// Event is a planned occasion grouping recipes.
type Event struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	DateISO string `json:"date"`
}

// EventRecipe is the inclusion of one recipe in an event. The servings
// multiplier scales every ingredient line of the recipe within the event's
// shopping list and budget.
type EventRecipe struct {
	EventID            int64   `json:"event_id"`
	RecipeID           int64   `json:"recipe_id"`
	ServingsMultiplier float64 `json:"servings_multiplier"`
	Position           int     `json:"position"`
	TitleFr            string  `json:"title_fr"`
	TitleJp            string  `json:"title_jp"`
}

// Title returns the included recipe's title translation.
func (er EventRecipe) Title() catalog.Translation {
	return catalog.Translation{Fr: er.TitleFr, Jp: er.TitleJp}
}
