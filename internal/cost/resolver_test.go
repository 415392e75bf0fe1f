package cost

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eppchris/recettes/internal/catalog"
)

func f(v float64) *float64 { return &v }

// mockStore is an in-memory catalog keyed the way the resolver queries it.
type mockStore struct {
	entries   map[string][]catalog.Entry
	generics  []catalog.UnitConversion
	specifics map[string]*catalog.SpecificConversion
	created   int
}

func newMockStore() *mockStore {
	return &mockStore{
		entries:   make(map[string][]catalog.Entry),
		specifics: make(map[string]*catalog.SpecificConversion),
	}
}

func specificKey(name, fromUnit string) string {
	return name + "|" + strings.ToLower(fromUnit)
}

func (m *mockStore) EntriesByName(ctx context.Context, normalizedName string) ([]catalog.Entry, error) {
	return m.entries[normalizedName], nil
}

func (m *mockStore) ConversionCategory(ctx context.Context, normalizedName string) (string, error) {
	for _, e := range m.entries[normalizedName] {
		if e.ConversionCategory != "" {
			return e.ConversionCategory, nil
		}
	}
	return "", nil
}

func (m *mockStore) GenericConversionsFrom(ctx context.Context, fromUnit, category string) ([]catalog.UnitConversion, error) {
	var out []catalog.UnitConversion
	for _, c := range m.generics {
		if strings.EqualFold(c.FromUnit, fromUnit) && c.Category == category {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockStore) SpecificConversion(ctx context.Context, ingredientName, fromUnit string) (*catalog.SpecificConversion, error) {
	return m.specifics[specificKey(ingredientName, fromUnit)], nil
}

func (m *mockStore) CreateSpecificConversion(ctx context.Context, sc *catalog.SpecificConversion) (bool, error) {
	key := specificKey(sc.IngredientName, sc.FromUnit)
	if _, exists := m.specifics[key]; exists {
		return false, nil
	}
	m.specifics[key] = sc
	m.created++
	return true, nil
}

func TestResolveDirect(t *testing.T) {
	store := newMockStore()
	store.entries["tomate"] = []catalog.Entry{
		{ID: 1, NameFr: "Tomate", NameFrNormalized: "tomate", UnitFr: "kg", PriceEUR: f(3.0), PackQty: 1.0},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "Tomate", 0.5, "kg", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 1.5, res.Cost, 1e-9)
	assert.Equal(t, []Strategy{StrategyDirect}, res.Trace.Strategies())
}

func TestResolveDirectPackQty(t *testing.T) {
	// Price refers to a 250 g pack, not per gram.
	store := newMockStore()
	store.entries["beurre"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "beurre", UnitFr: "g", PriceEUR: f(2.5), PackQty: 250},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "beurre", 100, "g", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 1.0, res.Cost, 1e-9)
}

func TestResolveTriesEveryGenericEdge(t *testing.T) {
	// cs has two outgoing edges; only cs->kg lands on a catalog unit. The
	// resolver must not give up after the dead cs->g edge.
	store := newMockStore()
	store.entries["farine"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "farine", UnitFr: "kg", PriceEUR: f(1.2), PackQty: 1.0, ConversionCategory: "poids"},
	}
	store.generics = []catalog.UnitConversion{
		{FromUnit: "cs", ToUnit: "g", Factor: 15, Category: "poids"},
		{FromUnit: "cs", ToUnit: "kg", Factor: 0.015, Category: "poids"},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "farine", 1, "cs", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 1*0.015*1.2, res.Cost, 1e-9)
	assert.Equal(t, []Strategy{StrategyGeneric}, res.Trace.Strategies())
	// The rejected direct attempt and the dead edge stay visible.
	require.Len(t, res.Trace.Path, 3)
	assert.Equal(t, StrategyDirect, res.Trace.Path[0].Strategy)
	assert.False(t, res.Trace.Path[0].Matched)
	assert.False(t, res.Trace.Path[1].Matched)
	assert.Equal(t, "g", res.Trace.Path[1].ToUnit)
}

func TestResolveTraceRecordsRejectedDirectRows(t *testing.T) {
	// Both priced rows are tried directly before any conversion; the trace
	// keeps one unmatched direct step per rejected row.
	store := newMockStore()
	store.entries["beurre"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "beurre", UnitFr: "g", PriceEUR: f(2.5), PackQty: 250},
		{ID: 2, NameFrNormalized: "beurre", UnitFr: "plaquette", PriceEUR: f(2.0), PackQty: 1.0},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "beurre", 1, "motte", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusMissingConversion, res.Status)
	require.Len(t, res.Trace.Path, 2)
	for i, step := range res.Trace.Path {
		assert.Equal(t, StrategyDirect, step.Strategy)
		assert.False(t, step.Matched)
		assert.Equal(t, int64(i+1), step.EntryID)
	}
}

func TestResolveSpecificChainedThroughGeneric(t *testing.T) {
	// carotte priced per kg; specific conversion pièce->g, generic g->kg.
	store := newMockStore()
	store.entries["carotte"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "carotte", UnitFr: "kg", PriceEUR: f(0.20), PackQty: 1.0, ConversionCategory: "poids"},
	}
	store.generics = []catalog.UnitConversion{
		{FromUnit: "g", ToUnit: "kg", Factor: 0.001, Category: "poids"},
	}
	store.specifics[specificKey("carotte", "pièce")] = &catalog.SpecificConversion{
		IngredientName: "carotte", FromUnit: "pièce", ToUnit: "g", Factor: 150,
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "Carotte", 1, "pièce", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 0.03, res.Cost, 1e-9)
	assert.Equal(t, []Strategy{StrategySpecific, StrategyGeneric}, res.Trace.Strategies())
}

func TestResolveFallbackCreatesExactlyOneConversion(t *testing.T) {
	store := newMockStore()
	store.entries["levure"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "levure", UnitFr: "g", PriceEUR: f(0.5), PackQty: 10, ConversionCategory: "poids"},
	}
	r := NewResolver(store)

	// First call: no path, fallback auto-creates a factor-1.0 conversion.
	res, err := r.ResolveIngredient(context.Background(), "levure", 1, "sachet", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusISCCreated, res.Status)
	assert.InDelta(t, 1.0/10*0.5, res.Cost, 1e-9)
	assert.Equal(t, 1, store.created)

	sc := store.specifics[specificKey("levure", "sachet")]
	require.NotNil(t, sc)
	assert.Equal(t, 1.0, sc.Factor)
	assert.NotEmpty(t, sc.Note)

	// Second call resolves through the created conversion, no new row.
	res, err = r.ResolveIngredient(context.Background(), "levure", 1, "sachet", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, 1, store.created)
	assert.Contains(t, res.Trace.Strategies(), StrategySpecific)
}

func TestResolveFallbackNoteLocale(t *testing.T) {
	store := newMockStore()
	store.entries["miso"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "miso", UnitFr: "g", PriceJPY: f(400), PackQty: 500, ConversionCategory: "poids"},
	}
	r := NewResolver(store)

	_, err := r.ResolveIngredient(context.Background(), "miso", 1, "paquet", catalog.JPY, "jp")
	require.NoError(t, err)
	sc := store.specifics[specificKey("miso", "paquet")]
	require.NotNil(t, sc)
	assert.Contains(t, sc.Note, "要確認")
}

func TestResolveCurrencyIsolation(t *testing.T) {
	store := newMockStore()
	store.entries["riz"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "riz", UnitFr: "kg", PriceEUR: f(2.0), PackQty: 1.0},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "riz", 1, "kg", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 2.0, res.Cost, 1e-9)

	// JPY price is null: never silently reuse the EUR figure.
	res, err = r.ResolveIngredient(context.Background(), "riz", 1, "kg", catalog.JPY, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusMissingPrice, res.Status)
	assert.Zero(t, res.Cost)
}

func TestResolveMissingData(t *testing.T) {
	r := NewResolver(newMockStore())
	res, err := r.ResolveIngredient(context.Background(), "safran", 1, "g", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusMissingData, res.Status)
}

func TestResolveMissingConversion(t *testing.T) {
	// Priced row, unit mismatch, no category to auto-create from.
	store := newMockStore()
	store.entries["vanille"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "vanille", UnitFr: "gousse", PriceEUR: f(1.5), PackQty: 1.0},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "vanille", 2, "g", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusMissingConversion, res.Status)
	assert.Zero(t, store.created)
}

func TestResolveInvalidPackQty(t *testing.T) {
	store := newMockStore()
	store.entries["sel"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "sel", UnitFr: "kg", PriceEUR: f(0.8), PackQty: 0},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "sel", 1, "kg", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidPackQty, res.Status)
}

func TestResolveInvalidCurrency(t *testing.T) {
	r := NewResolver(newMockStore())
	res, err := r.ResolveIngredient(context.Background(), "sel", 1, "kg", catalog.Currency("USD"), "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusInvalidCurrency, res.Status)
}

func TestResolveVagueQuantity(t *testing.T) {
	// "a pinch": no quantity, no store access, zero cost.
	r := NewResolver(newMockStore())
	res, err := r.ResolveIngredient(context.Background(), "sel", 0, "pincée", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.Zero(t, res.Cost)
}

func TestResolveNormalizesLookupName(t *testing.T) {
	store := newMockStore()
	store.entries["oeufs"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "oeufs", UnitFr: "pièce", PriceEUR: f(0.3), PackQty: 1.0},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "Œufs", 6, "pièce", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, res.Status)
	assert.InDelta(t, 1.8, res.Cost, 1e-9)
}

// txMockStore wraps mockStore with transaction scoping, counting how many
// resolutions ran inside a transaction.
type txMockStore struct {
	*mockStore
	transactions int
}

func (m *txMockStore) Transact(ctx context.Context, fn func(Store) error) error {
	m.transactions++
	return fn(m.mockStore)
}

func TestResolveRunsInTransactionWhenSupported(t *testing.T) {
	store := &txMockStore{mockStore: newMockStore()}
	store.entries["levure"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "levure", UnitFr: "g", PriceEUR: f(0.5), PackQty: 10, ConversionCategory: "poids"},
	}
	r := NewResolver(store)

	res, err := r.ResolveIngredient(context.Background(), "levure", 1, "sachet", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, StatusISCCreated, res.Status)
	assert.Equal(t, 1, store.transactions, "reads and the fallback write share one transaction")
	assert.Equal(t, 1, store.created)

	// Vague quantities never open a transaction.
	_, err = r.ResolveIngredient(context.Background(), "levure", 0, "sachet", catalog.EUR, "fr")
	require.NoError(t, err)
	assert.Equal(t, 1, store.transactions)
}

func TestResolveRecipeSumsOnlyResolvedLines(t *testing.T) {
	store := newMockStore()
	store.entries["tomate"] = []catalog.Entry{
		{ID: 1, NameFrNormalized: "tomate", UnitFr: "kg", PriceEUR: f(3.0), PackQty: 1.0},
	}
	r := NewResolver(store)

	lines := []Line{
		{Name: "tomate", Quantity: 1, Unit: "kg"},
		{Name: "safran", Quantity: 1, Unit: "g"},
		{Name: "tomate", Quantity: 0.5, Unit: "kg"},
	}
	res, err := r.ResolveRecipe(context.Background(), lines, catalog.EUR, "fr")
	require.NoError(t, err)
	assert.InDelta(t, 4.5, res.Total, 1e-9)
	require.Len(t, res.Lines, 3)
	assert.Equal(t, StatusMissingData, res.Lines[1].Result.Status)
}
