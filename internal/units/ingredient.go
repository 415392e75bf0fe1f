package units

import (
	"context"

	"github.com/eppchris/recettes/internal/catalog"
)

// SpecificSource answers ingredient-scoped conversion lookups.
type SpecificSource interface {
	SpecificConversion(ctx context.Context, ingredientName, fromUnit string) (*catalog.SpecificConversion, error)
}

// IngredientConverter converts quantities to a standard unit for one named
// ingredient. The generic table is tried first; when it has no path, the
// ingredient-specific conversion is applied as a first hop and the walk
// continues from its target unit, mirroring the cost resolution order.
type IngredientConverter struct {
	Table     *Table
	Specifics SpecificSource
}

// ToStandard re-expresses a quantity of the named (normalized) ingredient in
// the standard aggregation unit. Returns nil when no path exists.
func (c *IngredientConverter) ToStandard(ctx context.Context, ingredient string, qty float64, unit, standard string) (*float64, error) {
	v, err := c.Table.ToStandard(ctx, qty, unit, standard)
	if err != nil || v != nil {
		return v, err
	}
	if ingredient == "" || c.Specifics == nil {
		return nil, nil
	}
	sc, err := c.Specifics.SpecificConversion(ctx, ingredient, unit)
	if err != nil {
		return nil, err
	}
	if sc == nil {
		return nil, nil
	}
	return c.Table.ToStandard(ctx, qty*sc.Factor, sc.ToUnit, standard)
}
