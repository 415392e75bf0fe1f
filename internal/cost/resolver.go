// Package cost computes estimated ingredient and recipe costs against the
// price catalog, resolving unit conversions in priority order: direct
// catalog match, generic conversion, ingredient-specific conversion, then
// an auto-created fallback conversion.
package cost

import (
	"context"

	"github.com/eppchris/recettes/internal/catalog"
)

// Status classifies the outcome of a cost resolution. "No price available"
// is an expected outcome, not an error: callers branch on the status.
type Status string

const (
	StatusOK                Status = "ok"
	StatusISCCreated        Status = "isc_created"
	StatusMissingData       Status = "missing_data"
	StatusMissingPrice      Status = "missing_price"
	StatusInvalidPackQty    Status = "invalid_pack_qty"
	StatusMissingConversion Status = "missing_conversion"
	StatusInvalidCurrency   Status = "invalid_currency"
)

// Strategy tags one step of the resolution path.
type Strategy string

const (
	StrategyDirect   Strategy = "direct"
	StrategyGeneric  Strategy = "uc"
	StrategySpecific Strategy = "isc"
	StrategyFallback Strategy = "fallback"
)

// Step records one attempted resolution step. Unmatched steps stay in the
// trace: when a from_unit has several outgoing conversion edges, the trace
// shows which edges were tried and which one priced.
type Step struct {
	Strategy Strategy `json:"strategy"`
	FromUnit string   `json:"from_unit,omitempty"`
	ToUnit   string   `json:"to_unit,omitempty"`
	Factor   float64  `json:"factor,omitempty"`
	EntryID  int64    `json:"entry_id,omitempty"`
	Matched  bool     `json:"matched"`
}

// Trace is the ordered resolution path.
type Trace struct {
	Path []Step `json:"path"`
}

func (t *Trace) add(s Step) {
	t.Path = append(t.Path, s)
}

// Strategies returns the strategy tags of the matched steps, in order.
func (t Trace) Strategies() []Strategy {
	var out []Strategy
	for _, s := range t.Path {
		if s.Matched {
			out = append(out, s.Strategy)
		}
	}
	return out
}

// Result is the outcome of resolving one ingredient line.
type Result struct {
	Cost   float64 `json:"cost"`
	Status Status  `json:"status"`
	Trace  Trace   `json:"trace"`
}

// Store defines the catalog operations the resolver needs.
type Store interface {
	EntriesByName(ctx context.Context, normalizedName string) ([]catalog.Entry, error)
	ConversionCategory(ctx context.Context, normalizedName string) (string, error)
	GenericConversionsFrom(ctx context.Context, fromUnit, category string) ([]catalog.UnitConversion, error)
	SpecificConversion(ctx context.Context, ingredientName, fromUnit string) (*catalog.SpecificConversion, error)
	CreateSpecificConversion(ctx context.Context, sc *catalog.SpecificConversion) (bool, error)
}

// Transactor is implemented by stores that can scope one resolution's reads
// and fallback write to a single transaction.
type Transactor interface {
	Transact(ctx context.Context, fn func(Store) error) error
}

// Resolver resolves ingredient costs against a catalog store.
type Resolver struct {
	store Store
}

// NewResolver creates a cost resolver.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

func fallbackNote(lang string) string {
	if lang == "jp" {
		return "自動換算（係数1.0）要確認"
	}
	return "Conversion automatique (facteur 1.0), à vérifier"
}

// ResolveIngredient computes the estimated cost of (qty, unit) of the named
// ingredient in the requested currency. A zero or negative quantity is a
// vague quantity ("a pinch") and prices at zero without touching the
// conversion tables. Stores that support it get the whole resolution,
// fallback write included, in one transaction.
func (r *Resolver) ResolveIngredient(ctx context.Context, name string, qty float64, unit string, currency catalog.Currency, lang string) (Result, error) {
	if !currency.Valid() {
		return Result{Status: StatusInvalidCurrency}, nil
	}
	if qty <= 0 {
		return Result{Status: StatusOK}, nil
	}

	if tx, ok := r.store.(Transactor); ok {
		var res Result
		err := tx.Transact(ctx, func(s Store) error {
			var err error
			res, err = resolveIngredient(ctx, s, name, qty, unit, currency, lang)
			return err
		})
		return res, err
	}
	return resolveIngredient(ctx, r.store, name, qty, unit, currency, lang)
}

func resolveIngredient(ctx context.Context, store Store, name string, qty float64, unit string, currency catalog.Currency, lang string) (Result, error) {
	normalized := catalog.NormalizeName(name)
	entries, err := store.EntriesByName(ctx, normalized)
	if err != nil {
		return Result{}, err
	}
	if len(entries) == 0 {
		return Result{Status: StatusMissingData}, nil
	}

	priced := 0
	for _, e := range entries {
		if e.Price(currency) != nil {
			priced++
		}
	}

	var trace Trace
	zeroPack := false

	// Direct: a catalog row priced in the recipe's own unit. Rows tried and
	// rejected on unit mismatch stay in the trace unmatched.
	for _, e := range entries {
		p := e.Price(currency)
		if p == nil {
			continue
		}
		if !e.UnitMatches(unit) {
			trace.add(Step{Strategy: StrategyDirect, FromUnit: unit, ToUnit: e.UnitFr, EntryID: e.ID})
			continue
		}
		if e.PackQty == 0 {
			zeroPack = true
			trace.add(Step{Strategy: StrategyDirect, FromUnit: unit, ToUnit: e.UnitFr, EntryID: e.ID})
			continue
		}
		trace.add(Step{Strategy: StrategyDirect, FromUnit: unit, ToUnit: e.UnitFr, EntryID: e.ID, Matched: true})
		return Result{Cost: qty / e.PackQty * *p, Status: StatusOK, Trace: trace}, nil
	}

	category, err := store.ConversionCategory(ctx, normalized)
	if err != nil {
		return Result{}, err
	}

	// Generic conversions: every outgoing edge for the unit/category pair is
	// tried, because only one of several edges may land on a catalog unit.
	if category != "" {
		conversions, err := store.GenericConversionsFrom(ctx, unit, category)
		if err != nil {
			return Result{}, err
		}
		for _, conv := range conversions {
			if res, ok := priceConverted(entries, currency, qty*conv.Factor, conv.ToUnit, &trace, &zeroPack,
				Step{Strategy: StrategyGeneric, FromUnit: conv.FromUnit, ToUnit: conv.ToUnit, Factor: conv.Factor}); ok {
				return res, nil
			}
		}
	}

	// Ingredient-specific conversion, priced directly or chained once more
	// through a generic edge.
	sc, err := store.SpecificConversion(ctx, normalized, unit)
	if err != nil {
		return Result{}, err
	}
	if sc != nil {
		res, ok, err := resolveSpecific(ctx, store, entries, currency, qty, sc, category, &trace, &zeroPack)
		if err != nil {
			return Result{}, err
		}
		if ok {
			return res, nil
		}
	}

	// Auto-creation fallback: a priced row and a category exist but no unit
	// path. Persist a factor-1.0 specific conversion so the next call for
	// this (ingredient, unit) pair resolves through it.
	if category != "" && priced > 0 {
		for _, e := range entries {
			p := e.Price(currency)
			if p == nil || e.PackQty == 0 {
				continue
			}
			created := &catalog.SpecificConversion{
				IngredientName: normalized,
				FromUnit:       unit,
				ToUnit:         e.UnitFr,
				Factor:         1.0,
				Note:           fallbackNote(lang),
			}
			inserted, err := store.CreateSpecificConversion(ctx, created)
			if err != nil {
				return Result{}, err
			}
			if !inserted {
				// Someone else created it between our read and write:
				// re-read and resolve through theirs.
				existing, err := store.SpecificConversion(ctx, normalized, unit)
				if err != nil {
					return Result{}, err
				}
				if existing != nil {
					res, ok, err := resolveSpecific(ctx, store, entries, currency, qty, existing, category, &trace, &zeroPack)
					if err != nil {
						return Result{}, err
					}
					if ok {
						return res, nil
					}
				}
				break
			}
			trace.add(Step{Strategy: StrategyFallback, FromUnit: unit, ToUnit: e.UnitFr, Factor: 1.0, EntryID: e.ID, Matched: true})
			return Result{Cost: qty / e.PackQty * *p, Status: StatusISCCreated, Trace: trace}, nil
		}
	}

	switch {
	case priced == 0:
		return Result{Status: StatusMissingPrice, Trace: trace}, nil
	case zeroPack:
		return Result{Status: StatusInvalidPackQty, Trace: trace}, nil
	default:
		return Result{Status: StatusMissingConversion, Trace: trace}, nil
	}
}

// priceConverted tries to price an already-converted quantity against every
// catalog row matching the target unit. The attempted step is recorded
// either way.
func priceConverted(entries []catalog.Entry, currency catalog.Currency, converted float64, targetUnit string, trace *Trace, zeroPack *bool, step Step) (Result, bool) {
	for _, e := range entries {
		p := e.Price(currency)
		if p == nil || !e.UnitMatches(targetUnit) {
			continue
		}
		if e.PackQty == 0 {
			*zeroPack = true
			continue
		}
		step.EntryID = e.ID
		step.Matched = true
		trace.add(step)
		return Result{Cost: converted / e.PackQty * *p, Status: StatusOK, Trace: *trace}, true
	}
	trace.add(step)
	return Result{}, false
}

func resolveSpecific(ctx context.Context, store Store, entries []catalog.Entry, currency catalog.Currency, qty float64, sc *catalog.SpecificConversion, category string, trace *Trace, zeroPack *bool) (Result, bool, error) {
	converted := qty * sc.Factor
	if res, ok := priceConverted(entries, currency, converted, sc.ToUnit, trace, zeroPack,
		Step{Strategy: StrategySpecific, FromUnit: sc.FromUnit, ToUnit: sc.ToUnit, Factor: sc.Factor}); ok {
		return res, true, nil
	}
	iscIdx := len(trace.Path) - 1

	conversions, err := store.GenericConversionsFrom(ctx, sc.ToUnit, category)
	if err != nil {
		return Result{}, false, err
	}
	for _, conv := range conversions {
		if res, ok := priceConverted(entries, currency, converted*conv.Factor, conv.ToUnit, trace, zeroPack,
			Step{Strategy: StrategyGeneric, FromUnit: conv.FromUnit, ToUnit: conv.ToUnit, Factor: conv.Factor}); ok {
			// The specific conversion fed the chain, so it counts as used.
			trace.Path[iscIdx].Matched = true
			res.Trace = *trace
			return res, true, nil
		}
	}
	return Result{}, false, nil
}
