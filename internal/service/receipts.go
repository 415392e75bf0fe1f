package service

import (
	"context"
	"fmt"
	"log"

	"github.com/eppchris/recettes/internal/catalog"
	"github.com/eppchris/recettes/internal/platform/gemini"
)

// PriceStore defines the catalog writes the receipt importer needs on top of
// the matcher reads.
type PriceStore interface {
	MatcherStore
	UpdatePrice(ctx context.Context, id int64, currency catalog.Currency, price float64, packQty float64) error
}

// Invalidator lets the importer drop the in-memory conversion cache after
// prices change.
type Invalidator interface {
	Invalidate()
}

// ReceiptImporter applies receipt lines extracted by OCR to the price
// catalog.
type ReceiptImporter struct {
	Store       PriceStore
	Matcher     *Matcher
	Conversions Invalidator
}

// ImportResult summarizes one receipt import.
type ImportResult struct {
	Updated   int                  `json:"updated"`
	Unmatched []gemini.ReceiptLine `json:"unmatched"`
}

// Import matches each receipt line to a catalog entry and updates that
// entry's price in the line's currency. Lines without a match, a positive
// price or a valid currency are reported back unmatched for manual review.
func (s *ReceiptImporter) Import(ctx context.Context, lines []gemini.ReceiptLine) (*ImportResult, error) {
	result := &ImportResult{Unmatched: []gemini.ReceiptLine{}}
	for _, line := range lines {
		currency := catalog.Currency(line.Currency)
		if line.Name == "" || line.Price <= 0 || !currency.Valid() {
			result.Unmatched = append(result.Unmatched, line)
			continue
		}
		entry, err := s.Matcher.Match(ctx, line.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to match receipt line %q: %w", line.Name, err)
		}
		if entry == nil {
			result.Unmatched = append(result.Unmatched, line)
			continue
		}
		if err := s.Store.UpdatePrice(ctx, entry.ID, currency, line.Price, line.Quantity); err != nil {
			return nil, fmt.Errorf("failed to update price for %q: %w", entry.NameFr, err)
		}
		log.Printf("Receipt import: %q matched catalog entry %d (%s), price set to %.2f %s",
			line.Name, entry.ID, entry.NameFr, line.Price, currency)
		result.Updated++
	}
	if result.Updated > 0 && s.Conversions != nil {
		s.Conversions.Invalidate()
	}
	return result, nil
}
