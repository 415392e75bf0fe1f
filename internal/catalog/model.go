package catalog

import "strings"

// Currency identifies which price column of a catalog entry to read.
type Currency string

const (
	EUR Currency = "EUR"
	JPY Currency = "JPY"
)

// Valid reports whether the currency is one the catalog stores prices for.
func (c Currency) Valid() bool {
	return c == EUR || c == JPY
}

// Translation holds the French and Japanese variants of a displayable value.
type Translation struct {
	Fr string
	Jp string
}

// Select returns the variant for the requested language, falling back to
// French when the Japanese variant is empty.
func (t Translation) Select(lang string) string {
	if strings.EqualFold(lang, "jp") && t.Jp != "" {
		return t.Jp
	}
	return t.Fr
}

// Entry is one row of the ingredient price catalog: a priced reference for
// one ingredient in one pack unit. PackQty is the amount the stored price
// refers to (price for 250 g, not per gram).
type Entry struct {
	ID                 int64    `db:"id" json:"id"`
	NameFr             string   `db:"name_fr" json:"name_fr"`
	NameFrNormalized   string   `db:"name_fr_normalized" json:"name_fr_normalized"`
	NameJp             string   `db:"name_jp" json:"name_jp"`
	UnitFr             string   `db:"unit_fr" json:"unit_fr"`
	UnitJp             string   `db:"unit_jp" json:"unit_jp"`
	PriceEUR           *float64 `db:"price_eur" json:"price_eur"`
	PriceJPY           *float64 `db:"price_jpy" json:"price_jpy"`
	PackQty            float64  `db:"pack_qty" json:"pack_qty"`
	ConversionCategory string   `db:"conversion_category" json:"conversion_category"`
}

// Name returns the display name translation for the entry.
func (e Entry) Name() Translation {
	return Translation{Fr: e.NameFr, Jp: e.NameJp}
}

// Price returns the stored price for the requested currency, nil when the
// entry has no price in that currency. EUR and JPY columns are independent:
// a missing JPY price is never substituted with the EUR figure.
func (e Entry) Price(currency Currency) *float64 {
	switch currency {
	case EUR:
		return e.PriceEUR
	case JPY:
		return e.PriceJPY
	}
	return nil
}

// HasAnyPrice reports whether the entry is priced in at least one currency.
func (e Entry) HasAnyPrice() bool {
	return e.PriceEUR != nil || e.PriceJPY != nil
}

// UnitMatches reports whether the given unit names this entry's pack unit,
// matching case-insensitively against the French and Japanese unit names.
func (e Entry) UnitMatches(unit string) bool {
	return strings.EqualFold(unit, e.UnitFr) || (e.UnitJp != "" && strings.EqualFold(unit, e.UnitJp))
}

// UnitConversion is a directed generic conversion edge from_unit -> to_unit
// with a multiplicative factor, scoped by conversion category. The reverse
// edge, when wanted, is a separate row.
type UnitConversion struct {
	ID       int64   `db:"id"`
	FromUnit string  `db:"from_unit"`
	ToUnit   string  `db:"to_unit"`
	Factor   float64 `db:"factor"`
	Category string  `db:"category"`
}

// SpecificConversion overrides the generic table for one named ingredient.
// Rows with Factor 1.0 and a warning note are auto-created fallbacks pending
// human correction.
type SpecificConversion struct {
	ID             int64   `db:"id"`
	IngredientName string  `db:"ingredient_name"`
	FromUnit       string  `db:"from_unit"`
	ToUnit         string  `db:"to_unit"`
	Factor         float64 `db:"factor"`
	Note           string  `db:"note"`
}

// Unit is one row of the units reference table mapping a technical code to
// its French and Japanese display names.
type Unit struct {
	Code   string `db:"code"`
	NameFr string `db:"name_fr"`
	NameJp string `db:"name_jp"`
}

// Name returns the unit display translation.
func (u Unit) Name() Translation {
	return Translation{Fr: u.NameFr, Jp: u.NameJp}
}
